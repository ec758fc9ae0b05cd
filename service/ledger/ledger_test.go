package ledger

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

const testWallet = "WaLLet1111111111111111111111111111111111111"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// oracleFunc adapts a function to PriceOracle and records every call.
type oracleFunc struct {
	mu    sync.Mutex
	fn    func(token string, ts int64) (float64, bool, error)
	calls []priceCall
}

type priceCall struct {
	Token string
	TS    int64
	Retry bool
}

func newOracle(fn func(token string, ts int64) (float64, bool, error)) *oracleFunc {
	return &oracleFunc{fn: fn}
}

func (o *oracleFunc) GetPrice(ctx context.Context, token string, ts int64) (float64, bool, error) {
	o.mu.Lock()
	o.calls = append(o.calls, priceCall{Token: token, TS: ts, Retry: IsRetryMiss(ctx)})
	o.mu.Unlock()
	return o.fn(token, ts)
}

func (o *oracleFunc) Calls() []priceCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]priceCall, len(o.calls))
	copy(out, o.calls)
	return out
}

// fixedPrices returns the same price per token regardless of timestamp.
func fixedPrices(prices map[string]float64) *oracleFunc {
	return newOracle(func(token string, ts int64) (float64, bool, error) {
		p, ok := prices[token]
		return p, ok, nil
	})
}

func f64(v float64) *float64 {
	return &v
}

func balance(index int, owner, mint string, amount *float64) TokenBalance {
	return TokenBalance{
		AccountIndex:  index,
		Owner:         owner,
		Mint:          mint,
		UITokenAmount: &UITokenAmount{UIAmount: amount},
	}
}
