package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/itchyny/gojq"
	"github.com/nootey/walko/service/analyzer"
	"github.com/nootey/walko/service/store"
	"github.com/urfave/cli/v2"
)

// wantsJSON reports whether the command should print JSON instead of tables.
func wantsJSON(c *cli.Context) bool {
	return c.Bool("json") || c.String("jq") != ""
}

// outputJSON writes v as indented JSON. When jqExpr is set each result of the
// expression is written on its own line instead.
func outputJSON(w io.Writer, v any, jqExpr string) error {
	if jqExpr == "" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	query, err := gojq.Parse(jqExpr)
	if err != nil {
		return fmt.Errorf("failed to parse jq filter %q: %w", jqExpr, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return fmt.Errorf("failed to compile jq filter %q: %w", jqExpr, err)
	}

	// gojq only understands plain maps and slices.
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return fmt.Errorf("failed to decode output: %w", err)
	}

	enc := json.NewEncoder(w)
	iter := code.Run(input)
	for {
		out, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := out.(error); isErr {
			return fmt.Errorf("jq filter %q failed: %w", jqExpr, err)
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
}

// writeReport prints a human-readable report.
func writeReport(w io.Writer, r *analyzer.Report) error {
	source := "computed"
	if r.Cached {
		source = "cached"
	}
	fmt.Fprintf(w, "Wallet:              %s\n", r.Wallet)
	fmt.Fprintf(w, "Scope:               %s (%s)\n", r.Scope, source)

	perf := r.Summary
	if perf == nil || perf.UniqueTokens == 0 {
		fmt.Fprintf(w, "\nNo trades found.\n")
		return nil
	}
	fmt.Fprintf(w, "Unique tokens:       %d\n", perf.UniqueTokens)
	fmt.Fprintf(w, "Win rate:            %.2f%%\n", perf.WinRate*100)
	fmt.Fprintf(w, "Value at trade time: $%.2f\n", perf.ValueAtTransaction)
	fmt.Fprintf(w, "Current value:       $%.2f\n\n", perf.CurrentValue)

	tokens := make([]string, 0, len(perf.PerToken))
	for token := range perf.PerToken {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TOKEN\tTRADES\tVALUE AT TRADE\tCURRENT VALUE\tWIN")
	for _, token := range tokens {
		tp := perf.PerToken[token]
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%t\n",
			tp.Token,
			len(tp.Transactions),
			tp.TotalValue,
			tp.TotalValueCurrent,
			tp.Win(),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Mints) > 0 {
		fmt.Fprintf(w, "\nMints: %d\n", len(r.Mints))
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "MINT\tSIGNATURE\tNEW")
		for _, m := range r.Mints {
			fmt.Fprintf(tw, "%s\t%s\t%t\n", m.Mint, m.Signature, m.New)
		}
		return tw.Flush()
	}
	return nil
}

// writeLeaderboard prints one row per analyzed holder, best current value first.
func writeLeaderboard(w io.Writer, reports []*analyzer.Report) error {
	sorted := make([]*analyzer.Report, 0, len(reports))
	for _, r := range reports {
		if r != nil && r.Summary != nil {
			sorted = append(sorted, r)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Summary.CurrentValue > sorted[j].Summary.CurrentValue
	})

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WALLET\tTOKENS\tWIN RATE\tVALUE AT TRADE\tCURRENT VALUE")
	for _, r := range sorted {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%.2f\n",
			r.Wallet,
			r.Summary.UniqueTokens,
			r.Summary.WinRate,
			r.Summary.ValueAtTransaction,
			r.Summary.CurrentValue,
		)
	}
	return tw.Flush()
}

// writeArtifacts prints one row per stored artifact.
func writeArtifacts(w io.Writer, artifacts []store.Artifact) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tSCOPE\tKIND\tUPDATED")
	for _, a := range artifacts {
		updated := "-"
		if !a.UpdatedAt.IsZero() {
			updated = a.UpdatedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Date, a.Scope, a.Kind, updated)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "\nTotal: %d artifacts\n", len(artifacts))
	return nil
}
