package ledger

import "sort"

// ExtractBalanceDeltas returns the balance changes of every account index whose
// pre or post owner is the wallet. An index present on only one side is kept with
// the other side nil. The result is ordered by account index.
func ExtractBalanceDeltas(meta *TransactionMeta, wallet string) []BalanceDelta {
	if meta == nil {
		return nil
	}

	pre := indexBalances(meta.PreTokenBalances)
	post := indexBalances(meta.PostTokenBalances)

	indices := make([]int, 0, len(pre)+len(post))
	for idx := range pre {
		indices = append(indices, idx)
	}
	for idx := range post {
		if _, ok := pre[idx]; !ok {
			indices = append(indices, idx)
		}
	}
	sort.Ints(indices)

	var deltas []BalanceDelta
	for _, idx := range indices {
		p, q := pre[idx], post[idx]
		if ownedBy(p, wallet) || ownedBy(q, wallet) {
			deltas = append(deltas, BalanceDelta{AccountIndex: idx, Pre: p, Post: q})
		}
	}
	return deltas
}

// indexBalances maps account index to balance; a repeated index keeps the last entry.
func indexBalances(balances []TokenBalance) map[int]*TokenBalance {
	m := make(map[int]*TokenBalance, len(balances))
	for i := range balances {
		m[balances[i].AccountIndex] = &balances[i]
	}
	return m
}

func ownedBy(b *TokenBalance, wallet string) bool {
	return b != nil && b.Owner == wallet
}
