package analyzer

import (
	"context"
	"errors"
	"fmt"

	"github.com/nootey/walko/service/store"
)

// TopPerformers analyzes the largest holders of a token. Each holder is analyzed
// with scope multi, in the order the RPC node returns them. Under FailFast the
// first failing holder stops the run and the reports gathered so far are returned
// along with the error. The summaries of all analyzed holders are published as
// one batch.
func (a *Analyzer) TopPerformers(ctx context.Context, token string) (reports []*Report, err error) {
	if a.search == nil {
		return nil, errors.New("token search is not configured")
	}

	pair, err := a.search.Search(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to look up token %s: %w", token, err)
	}

	a.logger.InfoContext(ctx, "token found",
		"token", token,
		"name", pair.BaseToken.Name,
		"symbol", pair.BaseToken.Symbol,
		"chain", pair.ChainID,
		"dex", pair.DexID,
		"url", pair.URL,
	)

	if pair.ChainID != "solana" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChain, pair.ChainID)
	}

	accounts, err := a.chain.LargestAccounts(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to get largest accounts for %s: %w", token, err)
	}

	a.logger.InfoContext(ctx, "analyzing top holders", "token", token, "holders", len(accounts))

	reports = make([]*Report, 0, len(accounts))
	defer func() { a.publishBatch(ctx, reports) }()

	for _, acc := range accounts {
		report, err := a.analyze(ctx, acc.Address, store.ScopeMulti)
		if err != nil {
			if a.policy == SkipAndLog && ctx.Err() == nil {
				a.logger.WarnContext(ctx, "skipping holder",
					"wallet", acc.Address,
					"error", err,
				)
				continue
			}
			return reports, fmt.Errorf("failed to analyze holder %s: %w", acc.Address, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}
