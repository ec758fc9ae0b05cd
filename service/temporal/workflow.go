package temporal

import (
	"fmt"
	"time"

	natspkg "github.com/nootey/walko/service/nats"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// BatchSize is the number of signatures handled by one ScanPage activity.
const BatchSize = 100

// pagesPerRun bounds the history of a single run. The scan continues as new
// after this many pages.
var pagesPerRun = 200

// AnalyzeWalletWorkflow is the Temporal workflow that computes a wallet's PnL.
//
// The workflow performs these steps:
// 1. Load today's stored artifacts (LoadArtifacts activity); stored results end the run
// 2. Without stored processed records, scan the history page by page in order,
// staging records in the store (ScanPage activity)
// 3. Aggregate and store the results (CalculatePerformance activity)
// 4. Publish the summary to NATS, best effort (PublishSummary activity)
//
// Only cursors and counters travel between activities; records stay in the store.
func AnalyzeWalletWorkflow(ctx workflow.Context, input AnalyzeWalletInput) (*AnalyzeWalletResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("AnalyzeWalletWorkflow started", "wallet", input.Wallet, "scope", input.Scope)

	result := &AnalyzeWalletResult{
		Wallet:    input.Wallet,
		Scope:     input.Scope,
		StartedAt: workflow.Now(ctx),
	}
	fail := func(msg string, err error) (*AnalyzeWalletResult, error) {
		errMsg := fmt.Sprintf("%s: %v", msg, err)
		result.Error = &errMsg
		return result, fmt.Errorf("%s: %w", msg, err)
	}

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        30 * time.Second,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{ErrTypeDataShape, ErrTypeScanState},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	progress := input.Resume
	needScan := true
	if progress == nil {
		// Step 1: check the store
		var stored *LoadArtifactsResult
		err := workflow.ExecuteActivity(ctx, a.LoadArtifacts, LoadArtifactsInput{
			Wallet: input.Wallet,
			Scope:  input.Scope,
		}).Get(ctx, &stored)
		if err != nil {
			logger.Error("failed to load stored artifacts", "wallet", input.Wallet, "error", err)
			return fail("failed to load stored artifacts", err)
		}

		if stored.Summary != nil {
			logger.Info("results already stored for today", "wallet", input.Wallet, "day", stored.Day)
			result.Cached = true
			result.Records = stored.Records
			result.Summary = stored.Summary
			publish(ctx, result.Summary)
			return result, nil
		}

		progress = &ScanProgress{
			ScanID: workflow.GetInfo(ctx).WorkflowExecution.RunID,
			Day:    stored.Day,
		}
		if stored.HasProcessed {
			logger.Info("processed records already stored, skipping scan",
				"wallet", input.Wallet,
				"records", stored.Records,
			)
			needScan = false
			result.Records = stored.Records
		}
	} else {
		logger.Info("resuming scan", "wallet", input.Wallet, "before", progress.Before)
	}

	// Step 2: scan
	if needScan {
		done, err := scan(ctx, input, progress)
		if err != nil {
			return fail("failed to scan transactions", err)
		}
		if !done {
			return nil, continueScan(ctx, input, progress)
		}
		result.Signatures = progress.Signatures
		result.Records = progress.Records
		result.Skipped = progress.Skipped
		result.Mints = progress.Mints
	}

	logger.Info("processed transactions",
		"wallet", input.Wallet,
		"signatures", result.Signatures,
		"records", result.Records,
		"skipped", result.Skipped,
	)

	// Step 3: aggregate and store
	var perfResult *CalculatePerformanceResult
	err := workflow.ExecuteActivity(ctx, a.CalculatePerformance, CalculatePerformanceInput{
		ScanID: progress.ScanID,
		Wallet: input.Wallet,
		Scope:  input.Scope,
		Day:    progress.Day,
	}).Get(ctx, &perfResult)
	if err != nil {
		logger.Error("failed to calculate performance", "wallet", input.Wallet, "error", err)
		return fail("failed to calculate performance", err)
	}
	result.Summary = perfResult.Summary
	result.Summary.Mints = result.Mints

	// Step 4: publish
	publish(ctx, result.Summary)

	logger.Info("AnalyzeWalletWorkflow completed successfully",
		"wallet", input.Wallet,
		"records", result.Records,
		"unique_tokens", result.Summary.UniqueTokens,
	)

	return result, nil
}

// scan stages pages from progress.Before until the history ends or the run's
// page budget is spent. It reports whether the history was fully scanned.
// Pages run one after another so mint detection sees the history in order.
func scan(ctx workflow.Context, input AnalyzeWalletInput, progress *ScanProgress) (bool, error) {
	logger := workflow.GetLogger(ctx)

	for range pagesPerRun {
		var page *ScanPageResult
		err := workflow.ExecuteActivity(ctx, a.ScanPage, ScanPageInput{
			ScanID: progress.ScanID,
			Wallet: input.Wallet,
			Scope:  input.Scope,
			Day:    progress.Day,
			Before: progress.Before,
			Limit:  BatchSize,
		}).Get(ctx, &page)
		if err != nil {
			logger.Error("failed to scan page",
				"wallet", input.Wallet,
				"before", progress.Before,
				"error", err,
			)
			return false, err
		}

		progress.Signatures += page.Signatures
		progress.Records += page.Records
		progress.Skipped += page.Skipped
		progress.Mints = append(progress.Mints, page.NewMints...)
		if page.Next == "" {
			return true, nil
		}
		progress.Before = page.Next
	}
	return false, nil
}

func continueScan(ctx workflow.Context, input AnalyzeWalletInput, progress *ScanProgress) error {
	workflow.GetLogger(ctx).Info("continuing scan as new",
		"wallet", input.Wallet,
		"before", progress.Before,
		"signatures", progress.Signatures,
	)
	input.Resume = progress
	return workflow.NewContinueAsNewError(ctx, AnalyzeWalletWorkflow, input)
}

func publish(ctx workflow.Context, summary *natspkg.SummaryEvent) {
	err := workflow.ExecuteActivity(ctx, a.PublishSummary, PublishSummaryInput{Summary: summary}).Get(ctx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Warn("failed to publish summary", "wallet", summary.Wallet, "error", err)
	}
}
