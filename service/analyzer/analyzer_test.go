package analyzer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nootey/walko/service/dexscreener"
	"github.com/nootey/walko/service/ledger"
	"github.com/nootey/walko/service/nats"
	"github.com/nootey/walko/service/solana"
	"github.com/nootey/walko/service/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWallet = "WaLLet1111111111111111111111111111111111111"

var testNow = time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

// fakeChain implements Chain for testing.
type fakeChain struct {
	mu sync.Mutex

	sigs      []string
	sigErr    error
	pageCalls []string

	txs    map[string]*ledger.Transaction
	txErrs map[string]error
	delays map[string]time.Duration
	calls  []string

	largest    []solana.TokenAccount
	largestErr error
}

func (f *fakeChain) FinalizedSignatures(ctx context.Context, wallet string) ([]string, error) {
	if f.sigErr != nil {
		return nil, f.sigErr
	}
	return f.sigs, nil
}

// SignaturePage pages through sigs; the cursor is the last signature of the previous page.
func (f *fakeChain) SignaturePage(ctx context.Context, wallet, before string, limit int) ([]string, string, error) {
	if f.sigErr != nil {
		return nil, "", f.sigErr
	}
	f.mu.Lock()
	f.pageCalls = append(f.pageCalls, before)
	f.mu.Unlock()

	start := 0
	if before != "" {
		start = slices.Index(f.sigs, before) + 1
	}
	end := min(start+limit, len(f.sigs))
	page := f.sigs[start:end]
	if len(page) < limit {
		return page, "", nil
	}
	return page, page[len(page)-1], nil
}

func (f *fakeChain) FetchTransaction(ctx context.Context, signature string) (*ledger.Transaction, error) {
	f.mu.Lock()
	f.calls = append(f.calls, signature)
	delay := f.delays[signature]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err := f.txErrs[signature]; err != nil {
		return nil, err
	}
	return f.txs[signature], nil
}

func (f *fakeChain) LargestAccounts(ctx context.Context, mint string) ([]solana.TokenAccount, error) {
	if f.largestErr != nil {
		return nil, f.largestErr
	}
	return f.largest, nil
}

func (f *fakeChain) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// priceByTime prices a token by timestamp; the current price is keyed by testNow.
type priceByTime map[string]map[int64]float64

func (p priceByTime) GetPrice(ctx context.Context, token string, ts int64) (float64, bool, error) {
	price, ok := p[token][ts]
	return price, ok, nil
}

type fakeSearcher struct {
	pair *dexscreener.Pair
	err  error
}

func (f *fakeSearcher) Search(ctx context.Context, address string) (*dexscreener.Pair, error) {
	return f.pair, f.err
}

func f64(v float64) *float64 {
	return &v
}

// tradeTx moves the wallet's ABC balance from pre to post at ts.
func tradeTx(sig string, ts int64, pre, post float64) *ledger.Transaction {
	bal := func(amount float64) []ledger.TokenBalance {
		return []ledger.TokenBalance{{
			AccountIndex:  1,
			Owner:         testWallet,
			Mint:          "ABC",
			UITokenAmount: &ledger.UITokenAmount{UIAmount: f64(amount)},
		}}
	}
	return &ledger.Transaction{
		Signature: sig,
		BlockTime: ts,
		Meta: &ledger.TransactionMeta{
			PreTokenBalances:  bal(pre),
			PostTokenBalances: bal(post),
		},
	}
}

// noiseTx only touches another owner's balance.
func noiseTx(sig string) *ledger.Transaction {
	return &ledger.Transaction{
		Signature: sig,
		BlockTime: 50,
		Meta: &ledger.TransactionMeta{
			PostTokenBalances: []ledger.TokenBalance{{
				AccountIndex:  0,
				Owner:         "someone-else",
				Mint:          "ABC",
				UITokenAmount: &ledger.UITokenAmount{UIAmount: f64(1)},
			}},
		},
	}
}

func tradingChain() *fakeChain {
	return &fakeChain{
		sigs: []string{"sell", "noise", "buy"},
		txs: map[string]*ledger.Transaction{
			"buy":   tradeTx("buy", 100, 5, 12),
			"sell":  tradeTx("sell", 200, 12, 5),
			"noise": noiseTx("noise"),
		},
	}
}

func testPrices() priceByTime {
	return priceByTime{"ABC": {100: 2, 200: 3, testNow.Unix(): 4}}
}

type testEnv struct {
	chain     *fakeChain
	store     *store.FileStore
	publisher *nats.MockPublisher
	analyzer  *Analyzer
}

func newTestEnv(t *testing.T, chain *fakeChain, mutate func(*Config)) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		chain:     chain,
		store:     store.NewFileStore(t.TempDir(), nil, logger),
		publisher: nats.NewMockPublisher(),
	}
	cfg := Config{
		Chain:     chain,
		Oracle:    testPrices(),
		Store:     env.store,
		Publisher: env.publisher,
		Logger:    logger,
		Now:       func() time.Time { return testNow },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	env.analyzer = New(cfg)
	return env
}

func TestAnalyzeWallet(t *testing.T) {
	env := newTestEnv(t, tradingChain(), nil)

	report, err := env.analyzer.AnalyzeWallet(context.Background(), testWallet, store.ScopeSingle)
	require.NoError(t, err)

	assert.Equal(t, testWallet, report.Wallet)
	assert.False(t, report.Cached)
	require.NotNil(t, report.Summary)
	assert.Equal(t, 1, report.Summary.UniqueTokens)
	assert.Equal(t, 7.0, report.Summary.ValueAtTransaction)
	assert.Equal(t, 1.0, report.Summary.WinRate)
	assert.Equal(t, 56.0, report.Summary.CurrentValue)

	abc := report.Summary.PerToken["ABC"]
	require.NotNil(t, abc)
	require.Len(t, abc.Transactions, 2)
	assert.Equal(t, ledger.Sell, abc.Transactions[0].Type)
	assert.Equal(t, 21.0, abc.Transactions[0].ValueUSD)
	assert.Equal(t, ledger.Buy, abc.Transactions[1].Type)
	assert.Equal(t, -14.0, abc.Transactions[1].ValueUSD)

	var records []ledger.TransactionStats
	found, err := env.store.Load(context.Background(), store.NewKey(store.KindProcessed, store.ScopeSingle, testWallet, testNow), &records)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, records, 2, "transactions without wallet deltas are not kept")
	assert.Equal(t, "sell", records[0].TxnHash)
	assert.Equal(t, "buy", records[1].TxnHash)

	found, err = env.store.Load(context.Background(), store.NewKey(store.KindResults, store.ScopeSingle, testWallet, testNow), &ledger.WalletPerformance{})
	require.NoError(t, err)
	assert.True(t, found)

	events := env.publisher.GetPublishedEventsForWallet(testWallet)
	require.Len(t, events, 1)
	assert.Equal(t, 7.0, events[0].ValueAtTransaction)
	assert.Equal(t, "single", events[0].Scope)
}

func TestAnalyzeWallet_ReusesStoredArtifacts(t *testing.T) {
	chain := tradingChain()
	env := newTestEnv(t, chain, nil)
	ctx := context.Background()

	first, err := env.analyzer.AnalyzeWallet(ctx, testWallet, store.ScopeSingle)
	require.NoError(t, err)
	fetched := len(chain.Calls())

	second, err := env.analyzer.AnalyzeWallet(ctx, testWallet, store.ScopeSingle)
	require.NoError(t, err)

	assert.Equal(t, fetched, len(chain.Calls()), "second run must not hit the chain")
	assert.True(t, second.Cached)
	assert.Equal(t, first.Summary.ValueAtTransaction, second.Summary.ValueAtTransaction)
	assert.Equal(t, first.Summary.WinRate, second.Summary.WinRate)
}

func TestAnalyzeWallet_ScopesAreSeparate(t *testing.T) {
	chain := tradingChain()
	env := newTestEnv(t, chain, nil)
	ctx := context.Background()

	_, err := env.analyzer.AnalyzeWallet(ctx, testWallet, store.ScopeSingle)
	require.NoError(t, err)
	report, err := env.analyzer.AnalyzeWallet(ctx, testWallet, store.ScopeMulti)
	require.NoError(t, err)

	assert.False(t, report.Cached)
	assert.Len(t, chain.Calls(), 6)
}

func TestAnalyzeWallet_EmptyHistory(t *testing.T) {
	env := newTestEnv(t, &fakeChain{}, nil)

	report, err := env.analyzer.AnalyzeWallet(context.Background(), testWallet, store.ScopeSingle)
	require.NoError(t, err)

	assert.Zero(t, report.Summary.UniqueTokens)
	assert.Zero(t, report.Summary.WinRate)

	found, err := env.store.Load(context.Background(), store.NewKey(store.KindProcessed, store.ScopeSingle, testWallet, testNow), new([]ledger.TransactionStats))
	require.NoError(t, err)
	assert.False(t, found, "empty processed records are not saved")
}

func TestAnalyzeWallet_FailFast(t *testing.T) {
	chain := &fakeChain{
		sigs:   []string{"a", "b", "c", "d"},
		txs:    map[string]*ledger.Transaction{"a": tradeTx("a", 100, 0, 1)},
		txErrs: map[string]error{"b": solana.ErrTransport},
	}
	env := newTestEnv(t, chain, nil)

	report, err := env.analyzer.AnalyzeWallet(context.Background(), testWallet, store.ScopeSingle)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, solana.ErrTransport)
	assert.ErrorContains(t, err, "b")
	assert.Equal(t, []string{"a", "b"}, chain.Calls())
	assert.Zero(t, env.publisher.GetPublishedEventCount())
}

func TestAnalyzeWallet_SkipAndLog(t *testing.T) {
	chain := tradingChain()
	chain.sigs = []string{"sell", "broken", "buy", "missing"}
	chain.txErrs = map[string]error{"broken": solana.ErrProtocol}
	env := newTestEnv(t, chain, func(c *Config) { c.Policy = SkipAndLog })

	report, err := env.analyzer.AnalyzeWallet(context.Background(), testWallet, store.ScopeSingle)
	require.NoError(t, err)

	assert.Len(t, chain.Calls(), 4)
	assert.Equal(t, 7.0, report.Summary.ValueAtTransaction)
}

func TestAnalyzeWallet_SignatureError(t *testing.T) {
	env := newTestEnv(t, &fakeChain{sigErr: solana.ErrRateLimitExhausted}, nil)

	_, err := env.analyzer.AnalyzeWallet(context.Background(), testWallet, store.ScopeSingle)
	assert.ErrorIs(t, err, solana.ErrRateLimitExhausted)
}

func TestAnalyzeWallet_PublishFailureIsIgnored(t *testing.T) {
	env := newTestEnv(t, tradingChain(), nil)
	env.publisher.SetPublishError(errors.New("nats down"))

	report, err := env.analyzer.AnalyzeWallet(context.Background(), testWallet, store.ScopeSingle)
	require.NoError(t, err)
	assert.NotNil(t, report.Summary)
}

func TestAnalyzeWallet_ReportsMints(t *testing.T) {
	chain := tradingChain()
	chain.txs["buy"].Meta.InnerInstructions = []ledger.InnerInstructionGroup{{
		Instructions: []ledger.ParsedInstruction{{
			Program: "spl-token",
			Type:    "mintToChecked",
			Info: map[string]any{
				"authority":   testWallet,
				"mint":        "ABC",
				"tokenAmount": map[string]any{"uiAmount": 7.0},
			},
		}},
	}}
	env := newTestEnv(t, chain, nil)

	report, err := env.analyzer.AnalyzeWallet(context.Background(), testWallet, store.ScopeSingle)
	require.NoError(t, err)

	require.Len(t, report.Mints, 1)
	assert.Equal(t, "ABC", report.Mints[0].Mint)
	assert.True(t, report.Mints[0].New)

	events := env.publisher.GetPublishedEvents()
	require.Len(t, events, 1)
	assert.Equal(t, []string{"ABC"}, events[0].Mints)
}

func TestProcessTransactions_ConcurrentKeepsOrder(t *testing.T) {
	chain := &fakeChain{
		txs:    map[string]*ledger.Transaction{},
		delays: map[string]time.Duration{},
	}
	var sigs []string
	for i := 0; i < 8; i++ {
		sig := string(rune('a' + i))
		sigs = append(sigs, sig)
		chain.txs[sig] = tradeTx(sig, 100, float64(i), float64(i+1))
		// Earlier signatures finish last.
		chain.delays[sig] = time.Duration(8-i) * 5 * time.Millisecond
	}
	env := newTestEnv(t, chain, func(c *Config) { c.Concurrency = 4 })

	batch, err := env.analyzer.ProcessTransactions(context.Background(), testWallet, sigs, ledger.NewMintSet())
	require.NoError(t, err)

	require.Len(t, batch.Records, len(sigs))
	for i, rec := range batch.Records {
		assert.Equal(t, sigs[i], rec.TxnHash)
	}
	assert.Zero(t, batch.Skipped)
}

func TestProcessTransactions_SharedMintSet(t *testing.T) {
	mintInfo := []ledger.InnerInstructionGroup{{
		Instructions: []ledger.ParsedInstruction{{
			Info: map[string]any{"authority": testWallet, "mint": "ABC", "tokenAmount": map[string]any{}},
		}},
	}}
	chain := tradingChain()
	chain.txs["buy"].Meta.InnerInstructions = mintInfo
	chain.txs["sell"].Meta.InnerInstructions = mintInfo
	env := newTestEnv(t, chain, nil)
	seen := ledger.NewMintSet()

	first, err := env.analyzer.ProcessTransactions(context.Background(), testWallet, []string{"buy"}, seen)
	require.NoError(t, err)
	second, err := env.analyzer.ProcessTransactions(context.Background(), testWallet, []string{"sell"}, seen)
	require.NoError(t, err)

	require.Len(t, first.Mints, 1)
	require.Len(t, second.Mints, 1)
	assert.True(t, first.Mints[0].New)
	assert.False(t, second.Mints[0].New)
}

func TestProcessTransactions_Cancelled(t *testing.T) {
	env := newTestEnv(t, tradingChain(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.analyzer.ProcessTransactions(ctx, testWallet, []string{"buy", "sell"}, ledger.NewMintSet())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, env.chain.Calls())
}

func TestParseFetchPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    FetchPolicy
		wantErr bool
	}{
		{in: "", want: FailFast},
		{in: "fail-fast", want: FailFast},
		{in: "skip", want: SkipAndLog},
		{in: "retry", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFetchPolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
