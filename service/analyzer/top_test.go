package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/nootey/walko/service/dexscreener"
	"github.com/nootey/walko/service/ledger"
	"github.com/nootey/walko/service/solana"
	"github.com/nootey/walko/service/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solanaPair() *dexscreener.Pair {
	return &dexscreener.Pair{
		ChainID:   "solana",
		DexID:     "raydium",
		BaseToken: dexscreener.Token{Name: "Test", Symbol: "TST", Address: "ABC"},
	}
}

func TestTopPerformers(t *testing.T) {
	chain := tradingChain()
	chain.largest = []solana.TokenAccount{{Address: testWallet}, {Address: "holder-2"}}
	env := newTestEnv(t, chain, func(c *Config) {
		c.Search = &fakeSearcher{pair: solanaPair()}
	})

	reports, err := env.analyzer.TopPerformers(context.Background(), "ABC")
	require.NoError(t, err)

	require.Len(t, reports, 2)
	assert.Equal(t, testWallet, reports[0].Wallet)
	assert.Equal(t, store.ScopeMulti, reports[0].Scope)
	assert.Equal(t, 7.0, reports[0].Summary.ValueAtTransaction)
	// The fake chain returns the same history for every wallet, but deltas are
	// owner-filtered, so the second holder has no trades.
	assert.Equal(t, "holder-2", reports[1].Wallet)
	assert.Zero(t, reports[1].Summary.UniqueTokens)

	found, err := env.store.Load(context.Background(), store.NewKey(store.KindResults, store.ScopeMulti, testWallet, testNow), &ledger.WalletPerformance{})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, env.publisher.GetPublishedEventCount())
}

func TestTopPerformers_UnsupportedChain(t *testing.T) {
	pair := solanaPair()
	pair.ChainID = "ethereum"
	chain := &fakeChain{largest: []solana.TokenAccount{{Address: testWallet}}}
	env := newTestEnv(t, chain, func(c *Config) {
		c.Search = &fakeSearcher{pair: pair}
	})

	reports, err := env.analyzer.TopPerformers(context.Background(), "ABC")
	assert.ErrorIs(t, err, ErrUnsupportedChain)
	assert.ErrorContains(t, err, "ethereum")
	assert.Nil(t, reports)
	assert.Empty(t, chain.Calls())
}

func TestTopPerformers_SearchError(t *testing.T) {
	env := newTestEnv(t, &fakeChain{}, func(c *Config) {
		c.Search = &fakeSearcher{err: dexscreener.ErrNoPairs}
	})

	_, err := env.analyzer.TopPerformers(context.Background(), "ABC")
	assert.ErrorIs(t, err, dexscreener.ErrNoPairs)
}

func TestTopPerformers_NoSearcher(t *testing.T) {
	env := newTestEnv(t, &fakeChain{}, nil)

	_, err := env.analyzer.TopPerformers(context.Background(), "ABC")
	assert.Error(t, err)
}

func TestTopPerformers_LargestAccountsError(t *testing.T) {
	env := newTestEnv(t, &fakeChain{largestErr: solana.ErrProtocol}, func(c *Config) {
		c.Search = &fakeSearcher{pair: solanaPair()}
	})

	_, err := env.analyzer.TopPerformers(context.Background(), "ABC")
	assert.ErrorIs(t, err, solana.ErrProtocol)
}

func TestTopPerformers_FailFastReturnsPartial(t *testing.T) {
	chain := &fakeChain{
		sigs:    []string{"x"},
		txErrs:  map[string]error{"x": solana.ErrTransport},
		largest: []solana.TokenAccount{{Address: testWallet}, {Address: "holder-2"}},
	}
	env := newTestEnv(t, chain, func(c *Config) {
		c.Search = &fakeSearcher{pair: solanaPair()}
	})

	reports, err := env.analyzer.TopPerformers(context.Background(), "ABC")
	assert.ErrorIs(t, err, solana.ErrTransport)
	assert.Empty(t, reports)
	assert.Len(t, chain.Calls(), 1)
}

func TestTopPerformers_SkipAndLogContinues(t *testing.T) {
	chain := &fakeChain{
		sigErr:  solana.ErrTransport,
		largest: []solana.TokenAccount{{Address: testWallet}, {Address: "holder-2"}},
	}
	env := newTestEnv(t, chain, func(c *Config) {
		c.Search = &fakeSearcher{pair: solanaPair()}
		c.Policy = SkipAndLog
	})

	reports, err := env.analyzer.TopPerformers(context.Background(), "ABC")
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestTopPerformers_PublishesOneBatch(t *testing.T) {
	chain := tradingChain()
	chain.largest = []solana.TokenAccount{{Address: testWallet}, {Address: "holder-2"}}
	env := newTestEnv(t, chain, func(c *Config) {
		c.Search = &fakeSearcher{pair: solanaPair()}
	})
	env.publisher.SetPublishError(errors.New("single publishes are not used"))

	_, err := env.analyzer.TopPerformers(context.Background(), "ABC")
	require.NoError(t, err)

	events := env.publisher.GetPublishedEvents()
	require.Len(t, events, 2)
	assert.Equal(t, testWallet, events[0].Wallet)
	assert.Equal(t, "multi", events[0].Scope)
	assert.Equal(t, "holder-2", events[1].Wallet)
}

func TestTopPerformers_BatchPublishFailureIsIgnored(t *testing.T) {
	chain := tradingChain()
	chain.largest = []solana.TokenAccount{{Address: testWallet}}
	env := newTestEnv(t, chain, func(c *Config) {
		c.Search = &fakeSearcher{pair: solanaPair()}
	})
	env.publisher.SetPublishBatchError(errors.New("nats down"))

	reports, err := env.analyzer.TopPerformers(context.Background(), "ABC")
	require.NoError(t, err)
	assert.Len(t, reports, 1)
	assert.Zero(t, env.publisher.GetPublishedEventCount())
}

func TestTopPerformers_FailFastPublishesPartial(t *testing.T) {
	chain := tradingChain()
	chain.largest = []solana.TokenAccount{{Address: testWallet}, {Address: "holder-2"}}
	chain.txErrs = map[string]error{}
	env := newTestEnv(t, chain, func(c *Config) {
		c.Search = &fakeSearcher{pair: solanaPair()}
	})
	ctx := context.Background()

	// Break the history once the first holder is stored.
	_, err := env.analyzer.AnalyzeWallet(ctx, testWallet, store.ScopeMulti)
	require.NoError(t, err)
	env.publisher.Reset()
	chain.txErrs["buy"] = solana.ErrTransport

	reports, err := env.analyzer.TopPerformers(ctx, "ABC")
	assert.ErrorIs(t, err, solana.ErrTransport)
	require.Len(t, reports, 1)
	events := env.publisher.GetPublishedEvents()
	require.Len(t, events, 1)
	assert.Equal(t, testWallet, events[0].Wallet)
}
