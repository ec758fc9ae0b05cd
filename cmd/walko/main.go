package main

import (
	"fmt"
	"log"
	"os"

	"github.com/nootey/walko/service/config"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Flags read their EnvVars while parsing, so the env file has to be loaded first.
	if err := config.LoadDotEnv(envFiles()...); err != nil {
		log.Fatal(err)
	}

	app := &cli.App{
		Name:  "walko",
		Usage: "Solana wallet PnL analysis",
		Description: `Reconstructs a wallet's trading history from its finalized transactions,
values every trade in USD and reports per-token and wallet-wide performance.

Analyses run in-process (wallet, top) or on a Temporal worker (worker, submit, schedule).
Computed artifacts are kept per day in Postgres when DATABASE_URL is set, otherwise under DATA_DIR.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			walletCommand(),
			topCommand(),
			workerCommand(),
			// Temporal commands
			submitCommand(),
			scheduleCommands(),
			// Stored artifacts
			resultsCommands(),
			// HTTP API
			serveCommand(),
			clientCommands(),
			// NATS summary streaming
			{
				Name:  "nats",
				Usage: "NATS summary streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "info",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq expression applied to the JSON output (implies --json)",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// envFiles returns the dotenv files to load. WALKO_ENV_FILE overrides the default .env.
func envFiles() []string {
	if p := os.Getenv("WALKO_ENV_FILE"); p != "" {
		return []string{p}
	}
	return []string{".env"}
}
