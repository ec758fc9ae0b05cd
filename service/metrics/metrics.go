package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
// Callers hold a possibly nil *Metrics and check before recording.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal        *prometheus.CounterVec
	solanaRPCCallDuration      *prometheus.HistogramVec
	solanaRPCRateLimitHits     *prometheus.CounterVec
	solanaRPCRetries           *prometheus.CounterVec
	solanaRPCSignaturesPerPage *prometheus.HistogramVec

	// Price Oracle Metrics
	priceLookupsTotal   *prometheus.CounterVec
	priceLookupDuration *prometheus.HistogramVec
	priceCacheTotal     *prometheus.CounterVec

	// Ledger Metrics
	tradeEventsTotal   *prometheus.CounterVec
	tradeEventsDropped *prometheus.CounterVec
	mintsDetectedTotal *prometheus.CounterVec

	// Analysis Metrics
	analysisDuration        *prometheus.HistogramVec
	analysisExecutionsTotal *prometheus.CounterVec
	transactionsProcessed   *prometheus.CounterVec
	transactionsSkipped     *prometheus.CounterVec
	activityDuration        *prometheus.HistogramVec

	// Store Metrics
	storeOpDuration *prometheus.HistogramVec
	storeOpsTotal   *prometheus.CounterVec

	// Outbound HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),
		solanaRPCSignaturesPerPage: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_signatures_per_page",
				Help:    "Number of raw signatures returned per getSignaturesForAddress page",
				Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
			},
			[]string{"endpoint"},
		),

		// Price Oracle Metrics
		priceLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_lookups_total",
				Help: "Total number of price oracle lookups by outcome (found, missing, error)",
			},
			[]string{"source", "outcome"},
		),
		priceLookupDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "price_lookup_duration_seconds",
				Help:    "Duration of price oracle lookups in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"source"},
		),
		priceCacheTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_cache_requests_total",
				Help: "Total number of price cache requests by result (hit, miss)",
			},
			[]string{"backend", "result"},
		),

		// Ledger Metrics
		tradeEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trade_events_total",
				Help: "Total number of trade events produced by the valuator",
			},
			[]string{"type"},
		),
		tradeEventsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trade_events_dropped_total",
				Help: "Total number of balance deltas or events dropped",
			},
			[]string{"reason"},
		),
		mintsDetectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mints_detected_total",
				Help: "Total number of wallet-authorized mint actions detected",
			},
			[]string{"new"},
		),

		// Analysis Metrics
		analysisDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wallet_analysis_duration_seconds",
				Help:    "Duration of a full wallet analysis in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 300, 900, 3600},
			},
			[]string{"scope", "status"},
		),
		analysisExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_analysis_executions_total",
				Help: "Total number of wallet analyses",
			},
			[]string{"scope", "status"},
		),
		transactionsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_processed_total",
				Help: "Total number of transactions fetched and valued",
			},
			[]string{"status"},
		),
		transactionsSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_skipped_total",
				Help: "Total number of transactions skipped",
			},
			[]string{"reason"},
		),
		activityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analysis_activity_duration_seconds",
				Help:    "Duration of analysis workflow activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"activity"},
		),

		// Store Metrics
		storeOpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "store_operation_duration_seconds",
				Help:    "Duration of artifact store operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "backend"},
		),
		storeOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_operations_total",
				Help: "Total number of artifact store operations",
			},
			[]string{"operation", "status"},
		),

		// Outbound HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_client_request_duration_seconds",
				Help:    "Duration of outbound HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"client", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_client_requests_total",
				Help: "Total number of outbound HTTP requests",
			},
			[]string{"client", "method", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// RecordSignaturesPerPage records the raw size of one signature page.
func (m *Metrics) RecordSignaturesPerPage(endpoint string, count int) {
	m.solanaRPCSignaturesPerPage.WithLabelValues(endpoint).Observe(float64(count))
}

// Price metric helpers

// RecordPriceLookup records a price oracle lookup. outcome is "found", "missing" or "error".
func (m *Metrics) RecordPriceLookup(source, outcome string, duration float64) {
	m.priceLookupsTotal.WithLabelValues(source, outcome).Inc()
	m.priceLookupDuration.WithLabelValues(source).Observe(duration)
}

// RecordPriceCache records a cache hit or miss.
func (m *Metrics) RecordPriceCache(backend string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.priceCacheTotal.WithLabelValues(backend, result).Inc()
}

// Ledger metric helpers

// RecordTradeEvent records one emitted trade event.
func (m *Metrics) RecordTradeEvent(tradeType string) {
	m.tradeEventsTotal.WithLabelValues(tradeType).Inc()
}

// RecordTradeEventDropped records a delta or event that did not make it into the output.
func (m *Metrics) RecordTradeEventDropped(reason string) {
	m.tradeEventsDropped.WithLabelValues(reason).Inc()
}

// RecordMintDetected records a wallet-authorized mint action.
func (m *Metrics) RecordMintDetected(isNew bool) {
	label := "false"
	if isNew {
		label = "true"
	}
	m.mintsDetectedTotal.WithLabelValues(label).Inc()
}

// Analysis metric helpers

// RecordAnalysis records a wallet analysis with duration.
func (m *Metrics) RecordAnalysis(scope, status string, duration float64) {
	m.analysisDuration.WithLabelValues(scope, status).Observe(duration)
	m.analysisExecutionsTotal.WithLabelValues(scope, status).Inc()
}

// RecordTransactionProcessed records a transaction fetch+valuation attempt.
func (m *Metrics) RecordTransactionProcessed(status string) {
	m.transactionsProcessed.WithLabelValues(status).Inc()
}

// RecordTransactionsSkipped records skipped transactions.
func (m *Metrics) RecordTransactionsSkipped(reason string, count int) {
	m.transactionsSkipped.WithLabelValues(reason).Add(float64(count))
}

// RecordActivityDuration records workflow activity duration.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	m.activityDuration.WithLabelValues(activity).Observe(duration)
}

// Store metric helpers

// RecordStoreOp records an artifact store operation with duration.
func (m *Metrics) RecordStoreOp(operation, backend string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.storeOpDuration.WithLabelValues(operation, backend).Observe(duration)
	m.storeOpsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an outbound HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(client, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(client, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(client, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "error"
	}
}
