package ledger

import (
	"context"
	"time"
)

// Transaction is the slice of a parsed transaction the ledger needs.
// It is produced by the RPC layer and never mutated here.
type Transaction struct {
	Signature string           `json:"signature"`
	BlockTime int64            `json:"blockTime"`
	Meta      *TransactionMeta `json:"meta"`
}

// TransactionMeta holds the token balances before and after execution plus
// the parsed inner instructions.
type TransactionMeta struct {
	PreTokenBalances  []TokenBalance          `json:"preTokenBalances"`
	PostTokenBalances []TokenBalance          `json:"postTokenBalances"`
	InnerInstructions []InnerInstructionGroup `json:"innerInstructions"`
}

// TokenBalance is one token account balance entry.
// A nil UITokenAmount means the field was absent; a nil UIAmount inside it means JSON null.
type TokenBalance struct {
	AccountIndex  int            `json:"accountIndex"`
	Owner         string         `json:"owner"`
	Mint          string         `json:"mint"`
	UITokenAmount *UITokenAmount `json:"uiTokenAmount,omitempty"`
}

type UITokenAmount struct {
	UIAmount *float64 `json:"uiAmount"`
}

// amount returns the ui amount and whether it was present and non-null.
func (b *TokenBalance) amount() (float64, bool) {
	if b == nil || b.UITokenAmount == nil || b.UITokenAmount.UIAmount == nil {
		return 0, false
	}
	return *b.UITokenAmount.UIAmount, true
}

type InnerInstructionGroup struct {
	Index        int                 `json:"index"`
	Instructions []ParsedInstruction `json:"instructions"`
}

// ParsedInstruction carries the decoded "info" object of a parsed instruction.
// Info is nil for instructions the node could not parse.
type ParsedInstruction struct {
	Program string         `json:"program,omitempty"`
	Type    string         `json:"type,omitempty"`
	Info    map[string]any `json:"info,omitempty"`
}

// BalanceDelta pairs the pre and post balance of one account index.
// At least one side is non-nil.
type BalanceDelta struct {
	AccountIndex int           `json:"accountIndex"`
	Pre          *TokenBalance `json:"preBalance"`
	Post         *TokenBalance `json:"postBalance"`
}

type TradeType string

const (
	Buy  TradeType = "buy"
	Sell TradeType = "sell"
)

// sign is the multiplier applied to amount*price: buys cost money, sells return it.
func (t TradeType) sign() float64 {
	if t == Buy {
		return -1
	}
	return 1
}

// TradeEvent is one classified, priced balance change.
type TradeEvent struct {
	Token            string    `json:"token"`
	Type             TradeType `json:"type"`
	PreAmount        float64   `json:"pre_amount"`
	PostAmount       float64   `json:"post_amount"`
	AmountDifference float64   `json:"amount_difference"`
	PriceUSD         float64   `json:"price_usd"`
	ValueUSD         float64   `json:"value_usd"`
	Timestamp        int64     `json:"timestamp"`
}

// TransactionStats is the processed record kept per transaction.
type TransactionStats struct {
	TxnHash string       `json:"txn_hash"`
	Stats   []TradeEvent `json:"stats"`
}

// PricedTxn is a trade event marked to the current price.
type PricedTxn struct {
	TradeEvent
	Time            time.Time `json:"time"`
	CurrentPriceUSD float64   `json:"current_price_usd"`
	CurrentValueUSD float64   `json:"current_value_usd"`
}

type TokenPerformance struct {
	Token             string      `json:"token"`
	Transactions      []PricedTxn `json:"transactions"`
	TotalValue        float64     `json:"total_value"`
	TotalValueCurrent float64     `json:"total_value_current"`
}

// Win reports whether the token closed with a strictly positive realized value.
func (p *TokenPerformance) Win() bool {
	return p.TotalValue > 0
}

type WalletPerformance struct {
	PerToken           map[string]*TokenPerformance `json:"tokens"`
	UniqueTokens       int                          `json:"unique_tokens"`
	WinRate            float64                      `json:"winrate"`
	ValueAtTransaction float64                      `json:"value_at_transaction"`
	CurrentValue       float64                      `json:"current_value"`
}

// MintEvent records a token action authorized by the wallet.
// PriceUSD is only meaningful when Resolved is true.
type MintEvent struct {
	Mint      string  `json:"mint"`
	Signature string  `json:"signature"`
	Timestamp int64   `json:"timestamp"`
	PriceUSD  float64 `json:"price_usd"`
	Resolved  bool    `json:"resolved"`
	New       bool    `json:"new"`
}

// PriceOracle resolves the USD price of a token near a unix timestamp.
// ok is false when no sample exists; err is reserved for transport failures.
type PriceOracle interface {
	GetPrice(ctx context.Context, token string, ts int64) (price float64, ok bool, err error)
}

type retryMissKey struct{}

// WithRetryMiss marks lookups made with ctx as second attempts at a price that
// was not found before. Caching oracles ask their source again instead of
// answering with a cached miss.
func WithRetryMiss(ctx context.Context) context.Context {
	return context.WithValue(ctx, retryMissKey{}, true)
}

// IsRetryMiss reports whether ctx was marked by WithRetryMiss.
func IsRetryMiss(ctx context.Context) bool {
	retry, _ := ctx.Value(retryMissKey{}).(bool)
	return retry
}
