package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
)

// Client starts and schedules wallet analyses on Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// StartAnalysis starts an AnalyzeWalletWorkflow and returns its workflow and run IDs.
// Starting a wallet that is already being analyzed in the same scope fails.
func (c *Client) StartAnalysis(ctx context.Context, wallet, scope string) (string, string, error) {
	id := workflowID(wallet, scope)

	c.logger.DebugContext(ctx, "starting wallet analysis",
		"wallet", wallet,
		"scope", scope,
		"workflow_id", id,
	)

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: c.taskQueue,
	}, AnalyzeWalletWorkflow, AnalyzeWalletInput{Wallet: wallet, Scope: scope})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to start workflow",
			"wallet", wallet,
			"workflow_id", id,
			"error", err,
		)
		return "", "", fmt.Errorf("failed to start workflow %q: %w", id, err)
	}

	c.logger.InfoContext(ctx, "wallet analysis started",
		"wallet", wallet,
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
	)
	return run.GetID(), run.GetRunID(), nil
}

// AnalysisResult blocks until the workflow finishes and returns its result.
// An empty runID means the latest run. Runs continued as new are followed to
// the final result.
func (c *Client) AnalysisResult(ctx context.Context, workflowID, runID string) (*AnalyzeWalletResult, error) {
	var result AnalyzeWalletResult
	if err := c.client.GetWorkflow(ctx, workflowID, runID).Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("workflow %q failed: %w", workflowID, err)
	}
	return &result, nil
}

// UpsertAnalysisSchedule creates or updates a schedule that re-analyzes the wallet
// every interval.
func (c *Client) UpsertAnalysisSchedule(ctx context.Context, wallet, scope string, interval time.Duration) error {
	id := scheduleID(wallet, scope)

	handle := c.client.ScheduleClient().GetHandle(ctx, id)
	if _, err := handle.Describe(ctx); err == nil {
		c.logger.DebugContext(ctx, "schedule exists, updating interval",
			"schedule_id", id,
			"interval", interval,
		)
		err = handle.Update(ctx, client.ScheduleUpdateOptions{
			DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
				input.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{
					{Every: interval},
				}
				return &client.ScheduleUpdate{
					Schedule: &input.Description.Schedule,
				}, nil
			},
		})
		if err != nil {
			return fmt.Errorf("failed to update schedule %q: %w", id, err)
		}
		c.logger.InfoContext(ctx, "analysis schedule updated", "schedule_id", id, "interval", interval)
		return nil
	}

	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: id,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: interval}},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        workflowID(wallet, scope),
			Workflow:  AnalyzeWalletWorkflow,
			TaskQueue: c.taskQueue,
			Args:      []interface{}{AnalyzeWalletInput{Wallet: wallet, Scope: scope}},
		},
		Memo: map[string]interface{}{
			"wallet":     wallet,
			"scope":      scope,
			"created_by": "walko",
		},
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to create schedule",
			"wallet", wallet,
			"schedule_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to create schedule %q: %w", id, err)
	}

	c.logger.InfoContext(ctx, "analysis schedule created",
		"wallet", wallet,
		"schedule_id", id,
		"interval", interval,
	)
	return nil
}

// DeleteAnalysisSchedule deletes the schedule for a wallet.
func (c *Client) DeleteAnalysisSchedule(ctx context.Context, wallet, scope string) error {
	id := scheduleID(wallet, scope)
	if err := c.client.ScheduleClient().GetHandle(ctx, id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete schedule %q: %w", id, err)
	}
	c.logger.InfoContext(ctx, "analysis schedule deleted", "wallet", wallet, "schedule_id", id)
	return nil
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

func workflowID(wallet, scope string) string {
	return "analyze-wallet-" + scope + "-" + wallet
}

func scheduleID(wallet, scope string) string {
	return "analyze-wallet-schedule-" + scope + "-" + wallet
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
