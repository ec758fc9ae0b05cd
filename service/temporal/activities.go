package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nootey/walko/service/analyzer"
	"github.com/nootey/walko/service/ledger"
	"github.com/nootey/walko/service/metrics"
	natspkg "github.com/nootey/walko/service/nats"
	"github.com/nootey/walko/service/solana"
	"github.com/nootey/walko/service/store"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// Application error types of failures that retrying cannot fix.
const (
	ErrTypeDataShape = "DataShapeError"
	ErrTypeScanState = "ScanStateError"
)

// AnalyzeWalletInput contains the input parameters for analyzing a wallet.
type AnalyzeWalletInput struct {
	Wallet string `json:"wallet"`
	Scope  string `json:"scope"` // "single" or "multi"
	// Resume carries an unfinished scan into a continued run.
	Resume *ScanProgress `json:"resume,omitempty"`
}

// ScanProgress is the state of a paged scan handed over between workflow runs.
type ScanProgress struct {
	ScanID     string   `json:"scan_id"`
	Day        string   `json:"day"`
	Before     string   `json:"before"`
	Signatures int      `json:"signatures"`
	Records    int      `json:"records"`
	Skipped    int      `json:"skipped"`
	Mints      []string `json:"mints,omitempty"`
}

// AnalyzeWalletResult contains the result of analyzing a wallet.
type AnalyzeWalletResult struct {
	Wallet     string   `json:"wallet"`
	Scope      string   `json:"scope"`
	Signatures int      `json:"signatures"`
	Records    int      `json:"records"`
	Skipped    int      `json:"skipped"`
	Mints      []string `json:"mints,omitempty"`
	// Cached is true when today's results were already stored.
	Cached    bool                  `json:"cached"`
	Summary   *natspkg.SummaryEvent `json:"summary,omitempty"`
	StartedAt time.Time             `json:"started_at"`
	Error     *string               `json:"error,omitempty"`
}

// LoadArtifactsInput contains parameters for the LoadArtifacts activity.
type LoadArtifactsInput struct {
	Wallet string `json:"wallet"`
	Scope  string `json:"scope"`
}

// LoadArtifactsResult describes what is already stored for the wallet today.
type LoadArtifactsResult struct {
	Day          string                `json:"day"`
	HasProcessed bool                  `json:"has_processed"`
	Records      int                   `json:"records"`
	Summary      *natspkg.SummaryEvent `json:"summary,omitempty"`
}

// ScanPageInput contains parameters for the ScanPage activity.
type ScanPageInput struct {
	ScanID string `json:"scan_id"`
	Wallet string `json:"wallet"`
	Scope  string `json:"scope"`
	Day    string `json:"day"`
	// Before is the cursor of the page, empty for the newest.
	Before string `json:"before"`
	Limit  int    `json:"limit"`
}

// ScanPageResult summarizes one staged page.
type ScanPageResult struct {
	Signatures int `json:"signatures"`
	Records    int `json:"records"`
	Skipped    int `json:"skipped"`
	// NewMints are the mints first seen on this page.
	NewMints []string `json:"new_mints,omitempty"`
	Next     string   `json:"next"`
}

// CalculatePerformanceInput contains parameters for the CalculatePerformance activity.
type CalculatePerformanceInput struct {
	ScanID string `json:"scan_id"`
	Wallet string `json:"wallet"`
	Scope  string `json:"scope"`
	Day    string `json:"day"`
}

// CalculatePerformanceResult contains the wallet totals.
type CalculatePerformanceResult struct {
	Summary *natspkg.SummaryEvent `json:"summary"`
}

// PublishSummaryInput contains parameters for the PublishSummary activity.
type PublishSummaryInput struct {
	Summary *natspkg.SummaryEvent `json:"summary"`
}

// AnalyzerInterface defines the pipeline operations needed by activities.
// This allows for easy mocking in tests.
type AnalyzerInterface interface {
	LoadStored(ctx context.Context, wallet string, scope store.Scope) (*analyzer.Stored, error)
	ScanPage(ctx context.Context, scan analyzer.Scan, before string, limit int) (*analyzer.Page, error)
	Finalize(ctx context.Context, scan analyzer.Scan) (*ledger.WalletPerformance, error)
}

// PublisherInterface defines the NATS publishing operations needed by activities.
// This allows for easy mocking in tests.
type PublisherInterface interface {
	PublishSummary(ctx context.Context, event *natspkg.SummaryEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	analyzer  AnalyzerInterface
	publisher PublisherInterface
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// publisher and metrics may be nil.
func NewActivities(a AnalyzerInterface, publisher PublisherInterface, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		analyzer:  a,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

func (a *Activities) recordDuration(activity string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordActivityDuration(activity, time.Since(start).Seconds())
	}
}

// activityError marks data shape failures and broken scans as non-retryable.
// Everything else, including exhausted rate limit retries, is left to the
// activity retry policy.
func activityError(msg string, err error) error {
	switch {
	case errors.Is(err, solana.ErrDataShape):
		return temporalsdk.NewNonRetryableApplicationError(msg, ErrTypeDataShape, err)
	case errors.Is(err, analyzer.ErrScanState):
		return temporalsdk.NewNonRetryableApplicationError(msg, ErrTypeScanState, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func parseScope(scope string) (store.Scope, error) {
	s, err := store.ParseScope(scope)
	if err != nil {
		return "", temporalsdk.NewNonRetryableApplicationError("invalid scope", ErrTypeDataShape, err)
	}
	return s, nil
}

// LoadArtifacts reports what is already stored for the wallet and fixes the
// artifact day of the run.
func (a *Activities) LoadArtifacts(ctx context.Context, input LoadArtifactsInput) (*LoadArtifactsResult, error) {
	defer a.recordDuration("LoadArtifacts", time.Now())

	scope, err := parseScope(input.Scope)
	if err != nil {
		return nil, err
	}

	stored, err := a.analyzer.LoadStored(ctx, input.Wallet, scope)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to load stored artifacts",
			"wallet", input.Wallet,
			"error", err,
		)
		return nil, fmt.Errorf("failed to load stored artifacts: %w", err)
	}

	result := &LoadArtifactsResult{
		Day:          stored.Day,
		HasProcessed: stored.HasProcessed,
		Records:      stored.Records,
	}
	if stored.Results != nil {
		result.Summary = natspkg.FromPerformance(input.Wallet, input.Scope, stored.Results, nil, time.Now())
	}

	a.logger.InfoContext(ctx, "loaded stored artifacts",
		"wallet", input.Wallet,
		"day", stored.Day,
		"has_processed", stored.HasProcessed,
		"has_results", stored.Results != nil,
	)
	return result, nil
}

// ScanPage fetches, values and stages one page of the wallet's history.
func (a *Activities) ScanPage(ctx context.Context, input ScanPageInput) (*ScanPageResult, error) {
	defer a.recordDuration("ScanPage", time.Now())

	scope, err := parseScope(input.Scope)
	if err != nil {
		return nil, err
	}

	scan := analyzer.Scan{ID: input.ScanID, Wallet: input.Wallet, Scope: scope, Day: input.Day}
	page, err := a.analyzer.ScanPage(ctx, scan, input.Before, input.Limit)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to scan page",
			"wallet", input.Wallet,
			"before", input.Before,
			"error", err,
		)
		return nil, activityError("failed to scan page", err)
	}

	result := &ScanPageResult{
		Signatures: page.Signatures,
		Records:    page.Records,
		Skipped:    page.Skipped,
		Next:       page.Next,
	}
	for _, m := range page.Mints {
		if m.New {
			result.NewMints = append(result.NewMints, m.Mint)
		}
	}

	a.logger.InfoContext(ctx, "scanned page successfully",
		"wallet", input.Wallet,
		"signatures", result.Signatures,
		"records", result.Records,
		"skipped", result.Skipped,
		"last_page", result.Next == "",
	)
	return result, nil
}

// CalculatePerformance aggregates the stored or staged records and stores the results.
func (a *Activities) CalculatePerformance(ctx context.Context, input CalculatePerformanceInput) (*CalculatePerformanceResult, error) {
	defer a.recordDuration("CalculatePerformance", time.Now())

	scope, err := parseScope(input.Scope)
	if err != nil {
		return nil, err
	}

	scan := analyzer.Scan{ID: input.ScanID, Wallet: input.Wallet, Scope: scope, Day: input.Day}
	perf, err := a.analyzer.Finalize(ctx, scan)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to calculate performance",
			"wallet", input.Wallet,
			"error", err,
		)
		return nil, fmt.Errorf("failed to calculate performance: %w", err)
	}

	a.logger.InfoContext(ctx, "calculated performance successfully",
		"wallet", input.Wallet,
		"unique_tokens", perf.UniqueTokens,
		"winrate", perf.WinRate,
	)
	return &CalculatePerformanceResult{
		Summary: natspkg.FromPerformance(input.Wallet, input.Scope, perf, nil, time.Now()),
	}, nil
}

// PublishSummary publishes the summary to NATS. Publishing is best effort: failures
// are logged and never fail the activity.
func (a *Activities) PublishSummary(ctx context.Context, input PublishSummaryInput) error {
	defer a.recordDuration("PublishSummary", time.Now())

	if a.publisher == nil {
		a.logger.DebugContext(ctx, "no publisher configured, skipping summary")
		return nil
	}

	if input.Summary == nil {
		return nil
	}
	if err := a.publisher.PublishSummary(ctx, input.Summary); err != nil {
		a.logger.ErrorContext(ctx, "failed to publish summary to NATS",
			"wallet", input.Summary.Wallet,
			"error", err,
		)
		return nil
	}

	a.logger.DebugContext(ctx, "published summary to NATS", "wallet", input.Summary.Wallet)
	return nil
}
