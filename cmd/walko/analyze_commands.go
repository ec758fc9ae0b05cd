package main

import (
	"fmt"
	"os"

	"github.com/nootey/walko/service/analyzer"
	"github.com/nootey/walko/service/ledger"
	"github.com/nootey/walko/service/store"
	"github.com/urfave/cli/v2"
)

func scopeFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "scope",
		Usage: "Artifact scope (single or multi)",
		Value: string(store.ScopeSingle),
	}
}

func walletCommand() *cli.Command {
	return &cli.Command{
		Name:      "wallet",
		Usage:     "Analyze a wallet's trading performance",
		ArgsUsage: "WALLET_ADDRESS",
		Description: `Scans the wallet's finalized transactions, values every token balance change
and prints per-token and overall performance.

Results are stored per day; running the same wallet twice on one day reuses them.

Examples:
  walko wallet 7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU
  walko wallet --jq '.summary.winrate' 7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU`,
		Flags: []cli.Flag{
			scopeFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("wallet address is required")
			}
			wallet := c.Args().First()

			scope, err := store.ParseScope(c.String("scope"))
			if err != nil {
				return err
			}

			ctx := c.Context
			d, err := buildDeps(ctx, c.String("log-level"), nil)
			if err != nil {
				return err
			}
			defer d.Close()

			report, err := d.analyzer.AnalyzeWallet(ctx, wallet, scope)
			if err != nil {
				return fmt.Errorf("failed to analyze wallet: %w", err)
			}

			if wantsJSON(c) {
				return outputJSON(os.Stdout, report, c.String("jq"))
			}
			return writeReport(os.Stdout, report)
		},
	}
}

func topCommand() *cli.Command {
	return &cli.Command{
		Name:      "top",
		Usage:     "Analyze the largest holders of a token",
		ArgsUsage: "TOKEN_ADDRESS",
		Description: `Looks the token up on DexScreener, fetches its largest token accounts and
analyzes each of them in the "multi" scope.

With FETCH_POLICY=fail-fast the run stops at the first holder that fails and
prints what was analyzed so far.`,
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("token address is required")
			}
			token := c.Args().First()

			ctx := c.Context
			d, err := buildDeps(ctx, c.String("log-level"), nil)
			if err != nil {
				return err
			}
			defer d.Close()

			reports, runErr := d.analyzer.TopPerformers(ctx, token)
			if len(reports) > 0 {
				var err error
				if wantsJSON(c) {
					err = outputJSON(os.Stdout, reports, c.String("jq"))
				} else {
					err = writeLeaderboard(os.Stdout, reports)
				}
				if err != nil {
					return err
				}
			}
			if runErr != nil {
				return fmt.Errorf("top performers: %w", runErr)
			}
			if len(reports) == 0 && !wantsJSON(c) {
				fmt.Println("No holders analyzed.")
			}
			return nil
		},
	}
}

// storedReport wraps a stored results artifact so it prints like a fresh analysis.
func storedReport(wallet string, scope store.Scope, perf *ledger.WalletPerformance) *analyzer.Report {
	return &analyzer.Report{
		Wallet:  wallet,
		Scope:   scope,
		Summary: perf,
		Cached:  true,
	}
}
