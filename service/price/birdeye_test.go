package price

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBirdeyeServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/defi/history_price", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-KEY"))
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestBirdeyeOracle_Query(t *testing.T) {
	var query map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		_, _ = io.WriteString(w, `{"success":true,"data":{"items":[{"unixTime":1700000000,"value":1.25}]}}`)
	}))
	defer srv.Close()

	o := NewBirdeyeOracle(srv.URL+"/", "test-key", nil, nil, nil, newTestLogger())
	price, ok, err := o.GetPrice(context.Background(), testToken, 1700000000)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1.25, price)
	assert.Equal(t, map[string]string{
		"address":      testToken,
		"address_type": "token",
		"type":         "1m",
		"time_from":    "1699999970",
		"time_to":      "1700000030",
	}, query)
}

func TestBirdeyeOracle_FirstSampleWins(t *testing.T) {
	srv, _ := newBirdeyeServer(t, http.StatusOK,
		`{"success":true,"data":{"items":[{"unixTime":1,"value":2.5},{"unixTime":2,"value":9}]}}`)
	o := NewBirdeyeOracle(srv.URL, "test-key", nil, nil, nil, newTestLogger())

	price, ok, err := o.GetPrice(context.Background(), testToken, 1)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2.5, price)
}

func TestBirdeyeOracle_NoPrice(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty items", body: `{"success":true,"data":{"items":[]}}`},
		{name: "unsuccessful", body: `{"success":false,"message":"Not found"}`},
		{name: "item without value", body: `{"success":true,"data":{"items":[{"unixTime":1}]}}`},
		{name: "no data", body: `{"success":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newBirdeyeServer(t, http.StatusOK, tt.body)
			o := NewBirdeyeOracle(srv.URL, "test-key", nil, nil, nil, newTestLogger())

			price, ok, err := o.GetPrice(context.Background(), testToken, 1)

			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, 0.0, price)
		})
	}
}

func TestBirdeyeOracle_EmptyToken(t *testing.T) {
	srv, calls := newBirdeyeServer(t, http.StatusOK, `{}`)
	o := NewBirdeyeOracle(srv.URL, "test-key", nil, nil, nil, newTestLogger())

	_, ok, err := o.GetPrice(context.Background(), "", 1)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(0), calls.Load())
}

func TestBirdeyeOracle_HTTPError(t *testing.T) {
	srv, _ := newBirdeyeServer(t, http.StatusUnauthorized, `{"message":"Unauthorized"}`)
	o := NewBirdeyeOracle(srv.URL, "test-key", nil, nil, nil, newTestLogger())

	_, ok, err := o.GetPrice(context.Background(), testToken, 1)

	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "401")
}
