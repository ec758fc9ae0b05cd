package ledger

import (
	"context"
	"log/slog"
	"math"

	"github.com/nootey/walko/service/metrics"
)

// Valuator turns a transaction's balance deltas into priced trade events.
type Valuator struct {
	oracle  PriceOracle
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewValuator creates a Valuator. If metrics is nil, no metrics will be recorded.
// A nil logger means slog.Default().
func NewValuator(oracle PriceOracle, m *metrics.Metrics, logger *slog.Logger) *Valuator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Valuator{
		oracle:  oracle,
		metrics: m,
		logger:  logger,
	}
}

// Valuation is the outcome of valuing a single transaction.
type Valuation struct {
	Events []TradeEvent
	Mints  []MintEvent
}

// ValueTransaction classifies and prices every balance change of tx attributable
// to wallet. Mint actions found in the inner instructions are recorded into seen.
//
// Missing prices are never an error: the event is emitted with a zero price and
// left for the aggregator to resolve. A nil transaction or meta yields an empty result.
func (v *Valuator) ValueTransaction(ctx context.Context, tx *Transaction, wallet string, seen *MintSet) Valuation {
	var out Valuation
	if tx == nil || tx.Meta == nil {
		return out
	}

	deltas := ExtractBalanceDeltas(tx.Meta, wallet)
	if len(deltas) == 0 {
		return out
	}

	out.Mints = DetectMints(ctx, tx, wallet, seen, v.oracle, v.logger)
	if v.metrics != nil {
		for _, m := range out.Mints {
			v.metrics.RecordMintDetected(m.New)
		}
	}

	for _, d := range deltas {
		ev, ok := v.valueDelta(ctx, tx, d)
		if !ok {
			continue
		}
		out.Events = append(out.Events, ev)
		if v.metrics != nil {
			v.metrics.RecordTradeEvent(string(ev.Type))
		}
	}
	return out
}

func (v *Valuator) valueDelta(ctx context.Context, tx *Transaction, d BalanceDelta) (TradeEvent, bool) {
	if d.Pre == nil && d.Post == nil {
		return TradeEvent{}, false
	}

	ev := TradeEvent{Timestamp: tx.BlockTime}

	if amount, ok := d.Post.amount(); ok {
		ev.PostAmount = amount
		ev.Token = d.Post.Mint
		ev.PriceUSD = v.price(ctx, ev.Token, tx.BlockTime)
	}

	if d.Pre != nil && d.Pre.UITokenAmount != nil {
		amount, ok := d.Pre.amount()
		if !ok {
			// Present but null: nothing sensible to compare against.
			v.logger.DebugContext(ctx, "skipping delta with null pre amount",
				"signature", tx.Signature,
				"account_index", d.AccountIndex,
			)
			if v.metrics != nil {
				v.metrics.RecordTradeEventDropped("null_pre_amount")
			}
			return TradeEvent{}, false
		}
		ev.PreAmount = amount
		ev.Token = d.Pre.Mint
	}

	classify(&ev)
	return ev, true
}

// classify fills in the difference, type and value from the amounts and price.
func classify(ev *TradeEvent) {
	ev.AmountDifference = math.Abs(ev.PreAmount - ev.PostAmount)
	if ev.PostAmount > ev.PreAmount {
		ev.Type = Buy
	} else {
		ev.Type = Sell
	}
	ev.ValueUSD = ev.Type.sign() * ev.AmountDifference * ev.PriceUSD
}

// price resolves a price, returning 0 when the oracle has none or fails.
func (v *Valuator) price(ctx context.Context, token string, ts int64) float64 {
	if v.oracle == nil || token == "" {
		return 0
	}
	p, ok, err := v.oracle.GetPrice(ctx, token, ts)
	if err != nil {
		v.logger.WarnContext(ctx, "price lookup failed",
			"token", token,
			"timestamp", ts,
			"error", err,
		)
		return 0
	}
	if !ok {
		return 0
	}
	return p
}
