package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nootey/walko/client"
	"github.com/nootey/walko/service/metrics"
	"github.com/nootey/walko/service/server"
	"github.com/urfave/cli/v2"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Description: `Serves stored analysis artifacts, starts analyses on the Temporal worker and
streams published summaries over Server-Sent Events.

Routes:
  POST /api/v1/analyses                      {"wallet": "...", "scope": "single"}
  GET  /api/v1/wallets/{address}/results     ?scope=&date=
  GET  /api/v1/wallets/{address}/processed   ?scope=&date=
  GET  /api/v1/wallets/{address}/artifacts   (Postgres store only)
  GET  /api/v1/stream/summaries[/{address}]  (NATS only)
  GET  /health, GET /metrics`,
		Flags: append(append(storageFlags(), temporalFlags()...),
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "Listen address",
				EnvVars: []string{"SERVER_ADDR"},
				Value:   ":8080",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL (SSE disabled when empty)",
				EnvVars: []string{"NATS_URL"},
			},
			&cli.BoolFlag{
				Name:  "no-temporal",
				Usage: "Don't connect to Temporal; POST /api/v1/analyses is disabled",
			},
		),
		Action: func(c *cli.Context) error {
			ctx := c.Context
			logger := setupLogger(c.String("log-level"))
			metricsCollector := metrics.NewMetrics(nil)

			d := &deps{logger: logger}
			defer d.Close()

			st, err := openStore(ctx, c.String("database-url"), c.String("data-dir"), metricsCollector, logger, d)
			if err != nil {
				return err
			}

			var starter server.AnalysisStarter
			if !c.Bool("no-temporal") {
				tc, err := getTemporalClient(c)
				if err != nil {
					return err
				}
				d.closers = append(d.closers, tc.Close)
				starter = tc
			}

			var sse *server.SSEPublisher
			if natsURL := c.String("nats-url"); natsURL != "" {
				sse, err = server.NewSSEPublisher(natsURL, logger)
				if err != nil {
					return err
				}
			}

			srv := server.New(c.String("addr"), st, starter, sse, metricsCollector, logger)

			serverErrors := make(chan error, 1)
			go func() {
				serverErrors <- srv.Start()
			}()

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-serverErrors:
				return err
			case sig := <-shutdown:
				logger.Info("shutdown signal received", "signal", sig.String())
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("failed to shutdown server: %w", err)
				}
				logger.Info("shutdown complete")
				return nil
			}
		},
	}
}

func serverURLFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "server-url",
		Usage:   "walko API URL",
		EnvVars: []string{"WALKO_SERVER_URL"},
		Value:   "http://localhost:8080",
	}
}

func apiClient(c *cli.Context) *client.Client {
	return client.NewClient(c.String("server-url"), nil, setupLogger(c.String("log-level")))
}

// clientCommands talk to a running walko API instead of the backends directly.
func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "Commands that call the walko HTTP API",
		Subcommands: []*cli.Command{
			{
				Name:      "submit",
				Usage:     "Start an analysis through the API",
				ArgsUsage: "WALLET_ADDRESS",
				Flags:     []cli.Flag{serverURLFlag(), scopeFlag()},
				Action: func(c *cli.Context) error {
					wallet, scope, err := walletAndScope(c)
					if err != nil {
						return err
					}
					a, err := apiClient(c).StartAnalysis(c.Context, wallet, scope)
					if err != nil {
						return err
					}
					if wantsJSON(c) {
						return outputJSON(os.Stdout, a, c.String("jq"))
					}
					fmt.Printf("✅ Started analysis of %s\n", a.Wallet)
					fmt.Printf("   Workflow ID: %s\n", a.WorkflowID)
					fmt.Printf("   Run ID:      %s\n", a.RunID)
					return nil
				},
			},
			{
				Name:      "results",
				Usage:     "Fetch stored results through the API",
				ArgsUsage: "WALLET_ADDRESS",
				Flags: []cli.Flag{
					serverURLFlag(),
					scopeFlag(),
					&cli.StringFlag{
						Name:  "date",
						Usage: "Artifact day (YYYY-MM-DD, defaults to today on the server)",
					},
				},
				Action: func(c *cli.Context) error {
					wallet, scope, err := walletAndScope(c)
					if err != nil {
						return err
					}
					perf, err := apiClient(c).Results(c.Context, wallet, scope, c.String("date"))
					if err != nil {
						return err
					}
					if wantsJSON(c) {
						return outputJSON(os.Stdout, perf, c.String("jq"))
					}
					return writeReport(os.Stdout, storedReport(wallet, scope, perf))
				},
			},
			{
				Name:      "artifacts",
				Usage:     "List stored artifacts through the API",
				ArgsUsage: "WALLET_ADDRESS",
				Flags:     []cli.Flag{serverURLFlag()},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("requires exactly one argument: wallet address")
					}
					artifacts, err := apiClient(c).Artifacts(c.Context, c.Args().First())
					if err != nil {
						return err
					}
					if wantsJSON(c) {
						return outputJSON(os.Stdout, artifacts, c.String("jq"))
					}
					return writeArtifacts(os.Stdout, artifacts)
				},
			},
		},
	}
}
