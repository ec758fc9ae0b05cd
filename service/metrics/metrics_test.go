package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func labels(m *dto.Metric) map[string]string {
	out := make(map[string]string)
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

func TestRecordHelpers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordRPCCall("getTransaction", "success", "helius", 0.2)
	m.RecordRateLimitHit("helius")
	m.RecordPriceCache("redis", true)
	m.RecordPriceCache("redis", false)
	m.RecordPriceCache("redis", false)
	m.RecordStoreOp("save", "postgres", 0.01, errors.New("boom"))
	m.RecordTransactionsSkipped("failed", 3)

	families := gather(t, reg)

	calls := families["solana_rpc_calls_total"]
	require.NotNil(t, calls)
	require.Len(t, calls.GetMetric(), 1)
	assert.Equal(t, map[string]string{"method": "getTransaction", "status": "success", "endpoint": "helius"}, labels(calls.GetMetric()[0]))
	assert.Equal(t, 1.0, calls.GetMetric()[0].GetCounter().GetValue())

	cache := families["price_cache_requests_total"]
	require.NotNil(t, cache)
	byResult := map[string]float64{}
	for _, metric := range cache.GetMetric() {
		byResult[labels(metric)["result"]] = metric.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"hit": 1, "miss": 2}, byResult)

	skipped := families["transactions_skipped_total"]
	require.NotNil(t, skipped)
	assert.Equal(t, 3.0, skipped.GetMetric()[0].GetCounter().GetValue())
}

func TestStatusCodeToString(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{302, "3xx"},
		{429, "4xx"},
		{503, "5xx"},
		{0, "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCodeToString(tt.code))
	}
}

func TestTransport_RecordsRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c := NewHTTPClient(m, "birdeye", time.Second)

	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	requests := gather(t, reg)["http_client_requests_total"]
	require.NotNil(t, requests)
	require.Len(t, requests.GetMetric(), 1)
	assert.Equal(t, map[string]string{"client": "birdeye", "method": "GET", "status": "4xx"}, labels(requests.GetMetric()[0]))
}

func TestTransport_NilMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	resp, err := NewHTTPClient(nil, "dexscreener", time.Second).Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
