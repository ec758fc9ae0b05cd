package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nootey/walko/service/metrics"
	"github.com/nootey/walko/service/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AnalysisStarter starts wallet analyses on the worker.
type AnalysisStarter interface {
	StartAnalysis(ctx context.Context, wallet, scope string) (workflowID string, runID string, err error)
}

// ArtifactLister lists stored artifacts for a wallet. PGStore implements it.
type ArtifactLister interface {
	List(ctx context.Context, wallet string) ([]store.Artifact, error)
}

// Server represents the HTTP API in front of the analysis store and worker.
type Server struct {
	addr         string
	store        store.Store
	starter      AnalysisStarter
	ssePublisher *SSEPublisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time
	server       *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The starter is optional - if nil, analyses can't be started over HTTP.
// The ssePublisher is optional - if nil, SSE endpoints won't be available.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, st store.Store, starter AnalysisStarter, ssePublisher *SSEPublisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:         addr,
		store:        st,
		starter:      starter,
		ssePublisher: ssePublisher,
		metrics:      m,
		logger:       logger,
		now:          time.Now,
	}
}

// Handler returns the routed handler, wrapped with CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Analyses
	if s.starter != nil {
		mux.Handle("POST /api/v1/analyses", handleStartAnalysis(s.starter, s.logger))
	} else {
		s.logger.Warn("temporal client not configured, analyses can't be started over HTTP")
	}

	// Stored artifacts
	mux.Handle("GET /api/v1/wallets/{address}/results", handleGetArtifact(s.store, store.KindResults, s.now, s.logger))
	mux.Handle("GET /api/v1/wallets/{address}/processed", handleGetArtifact(s.store, store.KindProcessed, s.now, s.logger))
	if lister, ok := s.store.(ArtifactLister); ok {
		mux.Handle("GET /api/v1/wallets/{address}/artifacts", handleListArtifacts(lister, s.logger))
	}

	// SSE streaming endpoints (if SSE publisher is configured)
	if s.ssePublisher != nil {
		mux.Handle("GET /api/v1/stream/summaries/{address}", handleStreamSummaries(s.ssePublisher, s.logger))
		mux.Handle("GET /api/v1/stream/summaries", handleStreamSummaries(s.ssePublisher, s.logger))
		s.logger.Info("SSE streaming endpoints enabled")
	} else {
		s.logger.Warn("SSE publisher not configured, streaming endpoints disabled")
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE responses stay open
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close SSE publisher first (disconnects all clients)
	if s.ssePublisher != nil {
		s.ssePublisher.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
