// Package analyzer reconstructs a wallet's realized and current PnL from its
// on-chain history and keeps the results in a Store.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nootey/walko/service/dexscreener"
	"github.com/nootey/walko/service/ledger"
	"github.com/nootey/walko/service/metrics"
	"github.com/nootey/walko/service/nats"
	"github.com/nootey/walko/service/solana"
	"github.com/nootey/walko/service/store"
	"golang.org/x/sync/errgroup"
)

// ErrUnsupportedChain is returned by TopPerformers for tokens that don't live on Solana.
var ErrUnsupportedChain = errors.New("chain is not supported for wallet analysis")

// Chain is the subset of the Solana client the analyzer needs.
type Chain interface {
	FinalizedSignatures(ctx context.Context, wallet string) ([]string, error)
	SignaturePage(ctx context.Context, wallet, before string, limit int) ([]string, string, error)
	FetchTransaction(ctx context.Context, signature string) (*ledger.Transaction, error)
	LargestAccounts(ctx context.Context, mint string) ([]solana.TokenAccount, error)
}

// TokenSearcher looks up a token's market listing.
type TokenSearcher interface {
	Search(ctx context.Context, address string) (*dexscreener.Pair, error)
}

// FetchPolicy decides what happens when a single transaction cannot be fetched.
type FetchPolicy string

const (
	// FailFast aborts the whole wallet scan on the first failed fetch.
	FailFast FetchPolicy = "fail-fast"
	// SkipAndLog logs the failed signature and continues with the rest.
	SkipAndLog FetchPolicy = "skip"
)

// ParseFetchPolicy validates a policy name. An empty name means FailFast.
func ParseFetchPolicy(s string) (FetchPolicy, error) {
	switch FetchPolicy(s) {
	case "", FailFast:
		return FailFast, nil
	case SkipAndLog:
		return SkipAndLog, nil
	default:
		return "", fmt.Errorf("invalid fetch policy %q (want %q or %q)", s, FailFast, SkipAndLog)
	}
}

// Config holds the collaborators of an Analyzer. Chain, Oracle and Store are required.
type Config struct {
	Chain     Chain
	Search    TokenSearcher
	Oracle    ledger.PriceOracle
	Store     store.Store
	Publisher nats.Publisher

	Policy FetchPolicy
	// Concurrency bounds in-flight transaction fetches. Values below 2 fetch sequentially.
	Concurrency int

	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Analyzer runs the wallet pipeline: signatures, transactions, valuation, aggregation.
type Analyzer struct {
	chain      Chain
	search     TokenSearcher
	store      store.Store
	publisher  nats.Publisher
	valuator   *ledger.Valuator
	aggregator *ledger.Aggregator

	policy      FetchPolicy
	concurrency int

	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an Analyzer.
func New(cfg Config) *Analyzer {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := cfg.Policy
	if policy == "" {
		policy = FailFast
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Analyzer{
		chain:       cfg.Chain,
		search:      cfg.Search,
		store:       cfg.Store,
		publisher:   cfg.Publisher,
		valuator:    ledger.NewValuator(cfg.Oracle, cfg.Metrics, logger),
		aggregator:  ledger.NewAggregator(cfg.Oracle, cfg.Metrics, logger, ledger.WithNow(now)),
		policy:      policy,
		concurrency: concurrency,
		metrics:     cfg.Metrics,
		logger:      logger,
		now:         now,
	}
}

// Report is the outcome of analyzing one wallet.
type Report struct {
	Wallet  string                    `json:"wallet"`
	Scope   store.Scope               `json:"scope"`
	Summary *ledger.WalletPerformance `json:"summary"`
	// Mints is only populated when the history was scanned in this run.
	Mints []ledger.MintEvent `json:"mints,omitempty"`
	// Cached is true when the results were loaded from the store.
	Cached bool `json:"cached"`
}

// Batch is the valued outcome of a set of signatures.
type Batch struct {
	Records []ledger.TransactionStats `json:"records"`
	Mints   []ledger.MintEvent        `json:"mints"`
	Skipped int                       `json:"skipped"`
}

// AnalyzeWallet computes the wallet's performance for today and publishes the
// summary. Processed records and results already stored for today are reused
// instead of being recomputed.
func (a *Analyzer) AnalyzeWallet(ctx context.Context, wallet string, scope store.Scope) (*Report, error) {
	report, err := a.analyze(ctx, wallet, scope)
	if err != nil {
		return nil, err
	}
	a.Publish(ctx, report)
	return report, nil
}

func (a *Analyzer) analyze(ctx context.Context, wallet string, scope store.Scope) (report *Report, err error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			status := "success"
			if err != nil {
				status = "error"
			}
			a.metrics.RecordAnalysis(string(scope), status, time.Since(start).Seconds())
		}
	}()

	today := a.now()
	processedKey := store.NewKey(store.KindProcessed, scope, wallet, today)
	resultsKey := store.NewKey(store.KindResults, scope, wallet, today)
	report = &Report{Wallet: wallet, Scope: scope}

	a.logger.InfoContext(ctx, "analyzing wallet", "wallet", wallet, "scope", scope)

	var records []ledger.TransactionStats
	found, err := a.store.Load(ctx, processedKey, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to load processed records: %w", err)
	}
	if found {
		a.logger.InfoContext(ctx, "using stored processed records",
			"wallet", wallet,
			"records", len(records),
		)
	} else {
		sigs, err := a.CollectSignatures(ctx, wallet)
		if err != nil {
			return nil, err
		}
		batch, err := a.ProcessTransactions(ctx, wallet, sigs, ledger.NewMintSet())
		if err != nil {
			return nil, err
		}
		records = batch.Records
		report.Mints = batch.Mints

		if len(records) > 0 {
			if err := a.store.Save(ctx, processedKey, records); err != nil {
				return nil, fmt.Errorf("failed to save processed records: %w", err)
			}
		}
	}

	var perf ledger.WalletPerformance
	found, err = a.store.Load(ctx, resultsKey, &perf)
	if err != nil {
		return nil, fmt.Errorf("failed to load results: %w", err)
	}
	if found {
		report.Summary = &perf
		report.Cached = true
	} else {
		report.Summary = a.CalculatePerformance(ctx, wallet, records)
		if err := a.store.Save(ctx, resultsKey, report.Summary); err != nil {
			return nil, fmt.Errorf("failed to save results: %w", err)
		}
	}

	a.logger.InfoContext(ctx, "wallet analyzed",
		"wallet", wallet,
		"scope", scope,
		"unique_tokens", report.Summary.UniqueTokens,
		"winrate", report.Summary.WinRate,
		"value_at_transaction", report.Summary.ValueAtTransaction,
		"current_value", report.Summary.CurrentValue,
		"cached", report.Cached,
	)
	return report, nil
}

// CollectSignatures returns the wallet's finalized signatures, newest first.
func (a *Analyzer) CollectSignatures(ctx context.Context, wallet string) ([]string, error) {
	sigs, err := a.chain.FinalizedSignatures(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to collect signatures for %s: %w", wallet, err)
	}
	return sigs, nil
}

// ProcessTransactions fetches and values the given signatures in order. seen is
// shared across batches of the same wallet so a mint is only reported as new once.
func (a *Analyzer) ProcessTransactions(ctx context.Context, wallet string, signatures []string, seen *ledger.MintSet) (*Batch, error) {
	txs, skipped, err := a.fetchAll(ctx, signatures)
	if err != nil {
		return nil, err
	}

	batch := &Batch{Skipped: skipped}
	for _, tx := range txs {
		if tx == nil {
			continue
		}
		val := a.valuator.ValueTransaction(ctx, tx, wallet, seen)
		batch.Mints = append(batch.Mints, val.Mints...)
		if len(val.Events) == 0 {
			if a.metrics != nil {
				a.metrics.RecordTransactionProcessed("empty")
			}
			continue
		}
		if a.metrics != nil {
			a.metrics.RecordTransactionProcessed("valued")
		}
		batch.Records = append(batch.Records, ledger.TransactionStats{
			TxnHash: tx.Signature,
			Stats:   val.Events,
		})
	}

	a.logger.DebugContext(ctx, "processed transactions",
		"wallet", wallet,
		"signatures", len(signatures),
		"records", len(batch.Records),
		"mints", len(batch.Mints),
		"skipped", batch.Skipped,
	)
	return batch, nil
}

// fetchAll returns the transactions in the order of signatures. Missing and
// skipped transactions are left nil.
func (a *Analyzer) fetchAll(ctx context.Context, signatures []string) ([]*ledger.Transaction, int, error) {
	txs := make([]*ledger.Transaction, len(signatures))
	var skipped, missing atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i, sig := range signatures {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tx, err := a.chain.FetchTransaction(gctx, sig)
			if err != nil {
				if a.policy == SkipAndLog && gctx.Err() == nil {
					a.logger.WarnContext(gctx, "skipping transaction",
						"signature", sig,
						"error", err,
					)
					skipped.Add(1)
					return nil
				}
				return fmt.Errorf("failed to fetch transaction %s: %w", sig, err)
			}
			if tx == nil {
				a.logger.DebugContext(gctx, "transaction not found", "signature", sig)
				missing.Add(1)
				return nil
			}
			txs[i] = tx
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	if a.metrics != nil {
		a.metrics.RecordTransactionsSkipped("fetch_failed", int(skipped.Load()))
		a.metrics.RecordTransactionsSkipped("not_found", int(missing.Load()))
	}
	return txs, int(skipped.Load()), nil
}

// CalculatePerformance aggregates processed records into the wallet summary.
func (a *Analyzer) CalculatePerformance(ctx context.Context, wallet string, records []ledger.TransactionStats) *ledger.WalletPerformance {
	return a.aggregator.Aggregate(ctx, records, wallet)
}

// Publish sends the report summary to the configured publisher. Failures are
// logged and otherwise ignored.
func (a *Analyzer) Publish(ctx context.Context, report *Report) {
	if a.publisher == nil || report == nil {
		return
	}
	if err := a.publisher.PublishSummary(ctx, a.summaryEvent(report)); err != nil {
		a.logger.WarnContext(ctx, "failed to publish summary",
			"wallet", report.Wallet,
			"error", err,
		)
	}
}

// publishBatch sends the summaries of several reports in one batch.
func (a *Analyzer) publishBatch(ctx context.Context, reports []*Report) {
	if a.publisher == nil || len(reports) == 0 {
		return
	}
	events := make([]*nats.SummaryEvent, 0, len(reports))
	for _, r := range reports {
		events = append(events, a.summaryEvent(r))
	}
	if err := a.publisher.PublishSummaryBatch(ctx, events); err != nil {
		a.logger.WarnContext(ctx, "failed to publish summary batch",
			"count", len(events),
			"error", err,
		)
	}
}

func (a *Analyzer) summaryEvent(report *Report) *nats.SummaryEvent {
	return nats.FromPerformance(report.Wallet, string(report.Scope), report.Summary, newMints(report.Mints), a.now())
}

func newMints(events []ledger.MintEvent) []string {
	var mints []string
	for _, m := range events {
		if m.New {
			mints = append(mints, m.Mint)
		}
	}
	return mints
}
