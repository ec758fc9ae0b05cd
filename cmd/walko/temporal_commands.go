package main

import (
	"fmt"
	"os"
	"time"

	"github.com/nootey/walko/service/store"
	"github.com/nootey/walko/service/temporal"
	"github.com/urfave/cli/v2"
)

func temporalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "temporal-host",
			Usage:   "Temporal server address",
			EnvVars: []string{"TEMPORAL_HOST"},
			Value:   "localhost:7233",
		},
		&cli.StringFlag{
			Name:    "temporal-namespace",
			Usage:   "Temporal namespace",
			EnvVars: []string{"TEMPORAL_NAMESPACE"},
			Value:   "default",
		},
		&cli.StringFlag{
			Name:    "task-queue",
			Usage:   "Temporal task queue",
			EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
			Value:   "walko-analysis",
		},
	}
}

func getTemporalClient(c *cli.Context) (*temporal.Client, error) {
	return temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("task-queue"),
		setupLogger(c.String("log-level")),
	)
}

// walletAndScope reads the WALLET_ADDRESS argument and the --scope flag.
func walletAndScope(c *cli.Context) (string, store.Scope, error) {
	if c.NArg() != 1 {
		return "", "", fmt.Errorf("requires exactly one argument: wallet address")
	}
	scope, err := store.ParseScope(c.String("scope"))
	if err != nil {
		return "", "", err
	}
	return c.Args().First(), scope, nil
}

func submitCommand() *cli.Command {
	return &cli.Command{
		Name:      "submit",
		Usage:     "Start a wallet analysis on the Temporal worker",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: append(temporalFlags(),
			scopeFlag(),
			&cli.BoolFlag{
				Name:  "wait",
				Usage: "Block until the workflow finishes and print its result",
			},
		),
		Action: func(c *cli.Context) error {
			wallet, scope, err := walletAndScope(c)
			if err != nil {
				return err
			}

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			ctx := c.Context
			workflowID, runID, err := tc.StartAnalysis(ctx, wallet, string(scope))
			if err != nil {
				return err
			}

			if !c.Bool("wait") {
				if wantsJSON(c) {
					return outputJSON(os.Stdout, map[string]string{
						"workflow_id": workflowID,
						"run_id":      runID,
					}, c.String("jq"))
				}
				fmt.Printf("✅ Started analysis of %s\n", wallet)
				fmt.Printf("   Workflow ID: %s\n", workflowID)
				fmt.Printf("   Run ID:      %s\n", runID)
				return nil
			}

			result, err := tc.AnalysisResult(ctx, workflowID, runID)
			if err != nil {
				return err
			}
			if wantsJSON(c) {
				return outputJSON(os.Stdout, result, c.String("jq"))
			}

			if result.Error != nil {
				return fmt.Errorf("analysis failed: %s", *result.Error)
			}
			if result.Cached {
				fmt.Println("Results already stored for today")
			}
			fmt.Printf("Signatures:           %d\n", result.Signatures)
			fmt.Printf("Records:              %d\n", result.Records)
			fmt.Printf("Skipped:              %d\n", result.Skipped)
			fmt.Printf("Mints:                %d\n", len(result.Mints))
			if s := result.Summary; s != nil {
				fmt.Printf("Unique tokens:        %d\n", s.UniqueTokens)
				fmt.Printf("Win rate:             %.2f%%\n", s.WinRate*100)
				fmt.Printf("Value at transaction: $%.2f\n", s.ValueAtTransaction)
				fmt.Printf("Current value:        $%.2f\n", s.CurrentValue)
			}
			fmt.Printf("\nPer-token details: walko results show --scope %s %s\n", scope, wallet)
			return nil
		},
	}
}

func scheduleCommands() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Manage recurring wallet analyses",
		Subcommands: []*cli.Command{
			{
				Name:      "upsert",
				Usage:     "Create or update a recurring analysis",
				ArgsUsage: "WALLET_ADDRESS",
				Flags: append(temporalFlags(),
					scopeFlag(),
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "Time between analyses",
						Value: 24 * time.Hour,
					},
				),
				Action: func(c *cli.Context) error {
					wallet, scope, err := walletAndScope(c)
					if err != nil {
						return err
					}
					interval := c.Duration("interval")
					if interval <= 0 {
						return fmt.Errorf("interval must be positive")
					}

					tc, err := getTemporalClient(c)
					if err != nil {
						return err
					}
					defer tc.Close()

					if err := tc.UpsertAnalysisSchedule(c.Context, wallet, string(scope), interval); err != nil {
						return err
					}
					fmt.Printf("✅ %s analyzed every %s (scope %s)\n", wallet, interval, scope)
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a recurring analysis",
				Aliases:   []string{"rm"},
				ArgsUsage: "WALLET_ADDRESS",
				Flags:     append(temporalFlags(), scopeFlag()),
				Action: func(c *cli.Context) error {
					wallet, scope, err := walletAndScope(c)
					if err != nil {
						return err
					}

					tc, err := getTemporalClient(c)
					if err != nil {
						return err
					}
					defer tc.Close()

					if err := tc.DeleteAnalysisSchedule(c.Context, wallet, string(scope)); err != nil {
						return err
					}
					fmt.Printf("✅ Schedule deleted for %s (scope %s)\n", wallet, scope)
					return nil
				},
			},
		},
	}
}
