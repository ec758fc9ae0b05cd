package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nootey/walko/service/metrics"
	"github.com/nootey/walko/service/temporal"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

func workerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run the Temporal worker that executes wallet analyses",
		Description: `Registers AnalyzeWalletWorkflow and its activities on TEMPORAL_TASK_QUEUE and
serves Prometheus metrics on METRICS_ADDR until interrupted.`,
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			// nil uses the default registry, which promhttp.Handler serves
			metricsCollector := metrics.NewMetrics(nil)

			d, err := buildDeps(ctx, c.String("log-level"), metricsCollector)
			if err != nil {
				return err
			}
			defer d.Close()
			logger := d.logger

			logger.Info("starting temporal worker",
				"temporal_host", d.cfg.TemporalHost,
				"namespace", d.cfg.TemporalNamespace,
				"task_queue", d.cfg.TemporalTaskQueue,
				"fetch_policy", d.cfg.FetchPolicy,
				"fetch_concurrency", d.cfg.FetchConcurrency,
			)

			metricsServer := &http.Server{
				Addr:    d.cfg.MetricsAddr,
				Handler: promhttp.Handler(),
			}
			go func() {
				logger.Info("starting metrics HTTP server", "addr", d.cfg.MetricsAddr)
				if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("metrics server error", "error", err)
				}
			}()
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := metricsServer.Shutdown(shutdownCtx); err != nil {
					logger.Error("failed to shutdown metrics server", "error", err)
				}
			}()

			workerConfig := temporal.WorkerConfig{
				TemporalHost:      d.cfg.TemporalHost,
				TemporalNamespace: d.cfg.TemporalNamespace,
				TaskQueue:         d.cfg.TemporalTaskQueue,
				Analyzer:          d.analyzer,
				Publisher:         d.publisher,
				Metrics:           metricsCollector,
				Logger:            logger,
			}

			worker, err := temporal.NewWorker(workerConfig)
			if err != nil {
				return fmt.Errorf("failed to create temporal worker: %w", err)
			}

			workerErrors := make(chan error, 1)
			go func() {
				workerErrors <- worker.Start()
			}()

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-workerErrors:
				return fmt.Errorf("temporal worker error: %w", err)
			case sig := <-shutdown:
				logger.Info("shutdown signal received", "signal", sig.String())
				worker.Stop()
				logger.Info("shutdown complete")
				return nil
			}
		},
	}
}
