package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/nootey/walko/service/metrics"
)

// Aggregator folds trade events into per-token and wallet-wide performance.
type Aggregator struct {
	oracle  PriceOracle
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithNow sets the clock used for the mark-to-now valuation.
func WithNow(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator creates an Aggregator. If metrics is nil, no metrics will be recorded.
// A nil logger means slog.Default().
func NewAggregator(oracle PriceOracle, m *metrics.Metrics, logger *slog.Logger, opts ...AggregatorOption) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{
		oracle:  oracle,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate computes the wallet's performance from its processed transaction records.
//
// An event priced at exactly zero is treated as unresolved and priced again at its
// timestamp, bypassing cached misses; if that fails too the event is dropped. After folding, every token is
// marked to the price at the aggregator's current time (zero when unknown).
// The input is not modified.
func (a *Aggregator) Aggregate(ctx context.Context, records []TransactionStats, wallet string) *WalletPerformance {
	perf := &WalletPerformance{PerToken: make(map[string]*TokenPerformance)}
	var order []string

	a.logger.InfoContext(ctx, "calculating performance",
		"wallet", wallet,
		"transactions", len(records),
	)

	for _, rec := range records {
		for _, ev := range rec.Stats {
			if ev.Token == "" {
				continue
			}

			if ev.PriceUSD == 0 {
				price, ok := a.resolve(WithRetryMiss(ctx), ev.Token, ev.Timestamp)
				if !ok {
					a.logger.DebugContext(ctx, "dropping event without price",
						"wallet", wallet,
						"txn_hash", rec.TxnHash,
						"token", ev.Token,
					)
					if a.metrics != nil {
						a.metrics.RecordTradeEventDropped("unpriced")
					}
					continue
				}
				ev.PriceUSD = price
			}
			ev.ValueUSD = ev.Type.sign() * ev.AmountDifference * ev.PriceUSD

			tp, ok := perf.PerToken[ev.Token]
			if !ok {
				tp = &TokenPerformance{Token: ev.Token}
				perf.PerToken[ev.Token] = tp
				order = append(order, ev.Token)
				perf.UniqueTokens++
			}
			tp.Transactions = append(tp.Transactions, PricedTxn{
				TradeEvent: ev,
				Time:       time.Unix(ev.Timestamp, 0).UTC(),
			})
			tp.TotalValue += ev.ValueUSD
		}
	}

	nowTS := a.now().Unix()
	wins := 0
	for _, token := range order {
		tp := perf.PerToken[token]

		current, _ := a.resolve(ctx, token, nowTS)
		tp.TotalValueCurrent = 0
		for i := range tp.Transactions {
			txn := &tp.Transactions[i]
			txn.CurrentPriceUSD = current
			txn.CurrentValueUSD = txn.AmountDifference * current
			tp.TotalValueCurrent += txn.CurrentValueUSD
		}

		if tp.Win() {
			wins++
		}
		perf.ValueAtTransaction += tp.TotalValue
		perf.CurrentValue += tp.TotalValueCurrent
	}

	if perf.UniqueTokens > 0 {
		perf.WinRate = float64(wins) / float64(perf.UniqueTokens)
	}
	return perf
}

func (a *Aggregator) resolve(ctx context.Context, token string, ts int64) (float64, bool) {
	if a.oracle == nil {
		return 0, false
	}
	price, ok, err := a.oracle.GetPrice(ctx, token, ts)
	if err != nil {
		a.logger.WarnContext(ctx, "price lookup failed",
			"token", token,
			"timestamp", ts,
			"error", err,
		)
		return 0, false
	}
	if !ok {
		return 0, false
	}
	return price, true
}
