package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/nootey/walko/service/ledger"
	"github.com/nootey/walko/service/store"
	"github.com/urfave/cli/v2"
)

func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Postgres connection URL (file store when empty)",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "data-dir",
			Usage:   "File store root",
			EnvVars: []string{"DATA_DIR"},
			Value:   "./data",
		},
	}
}

func resultsCommands() *cli.Command {
	return &cli.Command{
		Name:  "results",
		Usage: "Inspect stored analysis artifacts",
		Subcommands: []*cli.Command{
			resultsShowCommand(),
			resultsListCommand(),
		},
	}
}

func resultsShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a stored artifact for a wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: append(storageFlags(),
			scopeFlag(),
			&cli.StringFlag{
				Name:  "date",
				Usage: "Artifact day (YYYY-MM-DD, defaults to today)",
			},
			&cli.BoolFlag{
				Name:  "processed",
				Usage: "Show the processed transaction records instead of the results",
			},
		),
		Action: func(c *cli.Context) error {
			wallet, scope, err := walletAndScope(c)
			if err != nil {
				return err
			}

			day := time.Now().Format(store.DateLayout)
			if c.String("date") != "" {
				t, err := time.Parse(store.DateLayout, c.String("date"))
				if err != nil {
					return fmt.Errorf("invalid date %q: %w", c.String("date"), err)
				}
				day = t.Format(store.DateLayout)
			}

			ctx := c.Context
			logger := setupLogger(c.String("log-level"))
			d := &deps{logger: logger}
			defer d.Close()
			st, err := openStore(ctx, c.String("database-url"), c.String("data-dir"), nil, logger, d)
			if err != nil {
				return err
			}

			kind := store.KindResults
			if c.Bool("processed") {
				kind = store.KindProcessed
			}
			key := store.Key{Kind: kind, Scope: scope, Date: day, Wallet: wallet}

			if kind == store.KindProcessed {
				var records []ledger.TransactionStats
				found, err := st.Load(ctx, key, &records)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("no artifact stored at %s", key)
				}
				if wantsJSON(c) {
					return outputJSON(os.Stdout, records, c.String("jq"))
				}
				return writeRecords(records)
			}

			var perf ledger.WalletPerformance
			found, err := st.Load(ctx, key, &perf)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no artifact stored at %s", key)
			}
			if wantsJSON(c) {
				return outputJSON(os.Stdout, &perf, c.String("jq"))
			}
			return writeReport(os.Stdout, storedReport(wallet, scope, &perf))
		},
	}
}

func writeRecords(records []ledger.TransactionStats) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SIGNATURE\tTOKEN\tTYPE\tAMOUNT\tPRICE\tVALUE\tTIME")
	for _, rec := range records {
		for _, ev := range rec.Stats {
			fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%g\t%.2f\t%s\n",
				rec.TxnHash,
				ev.Token,
				ev.Type,
				ev.AmountDifference,
				ev.PriceUSD,
				ev.ValueUSD,
				time.Unix(ev.Timestamp, 0).UTC().Format(time.RFC3339),
			)
		}
	}
	return w.Flush()
}

func resultsListCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "List stored artifacts for a wallet (Postgres store only)",
		Aliases:   []string{"ls"},
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Postgres connection URL",
				EnvVars:  []string{"DATABASE_URL"},
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}
			wallet := c.Args().First()

			ctx := c.Context
			pg, err := openPGStore(ctx, c.String("database-url"), nil, setupLogger(c.String("log-level")))
			if err != nil {
				return err
			}
			defer pg.pool.Close()

			artifacts, err := pg.List(ctx, wallet)
			if err != nil {
				return fmt.Errorf("failed to list artifacts: %w", err)
			}

			if wantsJSON(c) {
				return outputJSON(os.Stdout, artifacts, c.String("jq"))
			}

			return writeArtifacts(os.Stdout, artifacts)
		},
	}
}
