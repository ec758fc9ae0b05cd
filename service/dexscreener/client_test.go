package dexscreener

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, status int, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/dex/search/", r.URL.Path)
		assert.Equal(t, "So11111111111111111111111111111111111111112", r.URL.Query().Get("q"))
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSearch_FirstPair(t *testing.T) {
	c := newTestClient(t, http.StatusOK, `{
		"schemaVersion": "1.0.0",
		"pairs": [
			{"chainId": "solana", "dexId": "raydium", "url": "https://dexscreener.com/solana/abc",
			 "baseToken": {"address": "So11111111111111111111111111111111111111112", "name": "Wrapped SOL", "symbol": "SOL"},
			 "priceUsd": "150.12"},
			{"chainId": "ethereum", "dexId": "uniswap", "url": "https://dexscreener.com/ethereum/def",
			 "baseToken": {"address": "0xabc", "name": "Other", "symbol": "OTH"}}
		]
	}`)

	pair, err := c.Search(context.Background(), "So11111111111111111111111111111111111111112")

	require.NoError(t, err)
	assert.Equal(t, "solana", pair.ChainID)
	assert.Equal(t, "raydium", pair.DexID)
	assert.Equal(t, "https://dexscreener.com/solana/abc", pair.URL)
	assert.Equal(t, Token{Name: "Wrapped SOL", Symbol: "SOL", Address: "So11111111111111111111111111111111111111112"}, pair.BaseToken)
}

func TestSearch_NoPairs(t *testing.T) {
	for _, body := range []string{`{"pairs": []}`, `{"pairs": null}`, `{}`} {
		c := newTestClient(t, http.StatusOK, body)
		_, err := c.Search(context.Background(), "So11111111111111111111111111111111111111112")
		assert.ErrorIs(t, err, ErrNoPairs, body)
	}
}

func TestSearch_HTTPError(t *testing.T) {
	c := newTestClient(t, http.StatusTooManyRequests, `rate limited`)

	_, err := c.Search(context.Background(), "So11111111111111111111111111111111111111112")

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoPairs)
	assert.Contains(t, err.Error(), "429")
}
