package analyzer

import (
	"context"
	"errors"
	"fmt"

	"github.com/nootey/walko/service/ledger"
	"github.com/nootey/walko/service/store"
)

// ErrScanState is returned when a page is requested out of order for a staged scan.
var ErrScanState = errors.New("staged scan does not continue at this cursor")

// Scan identifies one paged history scan of a wallet. ID distinguishes runs so a
// retried page is recognized and a stale staging artifact is never extended.
type Scan struct {
	ID     string      `json:"id"`
	Wallet string      `json:"wallet"`
	Scope  store.Scope `json:"scope"`
	Day    string      `json:"day"`
}

func (s Scan) key(kind store.Kind) store.Key {
	return store.Key{Kind: kind, Scope: s.Scope, Date: s.Day, Wallet: s.Wallet}
}

// Stored describes what is already stored for a wallet on a day.
type Stored struct {
	Day          string
	HasProcessed bool
	Records      int
	Results      *ledger.WalletPerformance
}

// Page is the outcome of scanning one page of signatures.
type Page struct {
	Signatures int                `json:"signatures"`
	Records    int                `json:"records"`
	Skipped    int                `json:"skipped"`
	Mints      []ledger.MintEvent `json:"mints,omitempty"`
	// Next is the cursor of the following page, empty at the end of history.
	Next string `json:"next"`
}

// scanState is the staging artifact of a scan in progress.
type scanState struct {
	ID string `json:"id"`
	// Before is the cursor of the last staged page and Next the cursor after it.
	Before  string                    `json:"before"`
	Next    string                    `json:"next"`
	Pages   int                       `json:"pages"`
	Seen    []string                  `json:"seen"`
	Records []ledger.TransactionStats `json:"records"`
	Last    *Page                     `json:"last"`
}

// LoadStored reports today's stored artifacts for the wallet.
func (a *Analyzer) LoadStored(ctx context.Context, wallet string, scope store.Scope) (*Stored, error) {
	today := a.now()
	out := &Stored{Day: today.Format(store.DateLayout)}

	var records []ledger.TransactionStats
	found, err := a.store.Load(ctx, store.NewKey(store.KindProcessed, scope, wallet, today), &records)
	if err != nil {
		return nil, fmt.Errorf("failed to load processed records: %w", err)
	}
	out.HasProcessed = found
	out.Records = len(records)

	var perf ledger.WalletPerformance
	found, err = a.store.Load(ctx, store.NewKey(store.KindResults, scope, wallet, today), &perf)
	if err != nil {
		return nil, fmt.Errorf("failed to load results: %w", err)
	}
	if found {
		out.Results = &perf
	}
	return out, nil
}

// ScanPage fetches and values the page of at most limit signatures that starts
// at before, and stages its records. An empty before starts the scan over.
// Pages must be requested in order; repeating the last staged page returns its
// staged outcome without touching the chain.
func (a *Analyzer) ScanPage(ctx context.Context, scan Scan, before string, limit int) (*Page, error) {
	key := scan.key(store.KindStaging)

	var state scanState
	found, err := a.store.Load(ctx, key, &state)
	if err != nil {
		return nil, fmt.Errorf("failed to load staged scan: %w", err)
	}
	if found && state.ID == scan.ID && state.Before == before && state.Last != nil {
		a.logger.DebugContext(ctx, "page already staged",
			"wallet", scan.Wallet,
			"before", before,
		)
		return state.Last, nil
	}

	switch {
	case before == "":
		state = scanState{ID: scan.ID}
	case !found || state.ID != scan.ID || state.Next != before:
		return nil, fmt.Errorf("%w: scan %s, cursor %s", ErrScanState, scan.ID, before)
	}

	sigs, next, err := a.chain.SignaturePage(ctx, scan.Wallet, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to collect signatures for %s: %w", scan.Wallet, err)
	}

	seen := ledger.NewMintSet(state.Seen...)
	batch, err := a.ProcessTransactions(ctx, scan.Wallet, sigs, seen)
	if err != nil {
		return nil, err
	}

	page := &Page{
		Signatures: len(sigs),
		Records:    len(batch.Records),
		Skipped:    batch.Skipped,
		Mints:      batch.Mints,
		Next:       next,
	}
	state.Before = before
	state.Next = next
	state.Pages++
	state.Seen = seen.Mints()
	state.Records = append(state.Records, batch.Records...)
	state.Last = page

	if err := a.store.Save(ctx, key, &state); err != nil {
		return nil, fmt.Errorf("failed to stage scan: %w", err)
	}

	a.logger.DebugContext(ctx, "staged page",
		"wallet", scan.Wallet,
		"page", state.Pages,
		"signatures", page.Signatures,
		"records", page.Records,
		"staged_records", len(state.Records),
	)
	return page, nil
}

// Finalize aggregates the wallet's records and stores the results for the scan
// day. Stored processed records win over staged ones; staged records are saved
// as the processed artifact when non-empty.
func (a *Analyzer) Finalize(ctx context.Context, scan Scan) (*ledger.WalletPerformance, error) {
	var records []ledger.TransactionStats
	found, err := a.store.Load(ctx, scan.key(store.KindProcessed), &records)
	if err != nil {
		return nil, fmt.Errorf("failed to load processed records: %w", err)
	}

	if !found {
		var state scanState
		staged, err := a.store.Load(ctx, scan.key(store.KindStaging), &state)
		if err != nil {
			return nil, fmt.Errorf("failed to load staged scan: %w", err)
		}
		if staged && state.ID == scan.ID {
			records = state.Records
		}
		if len(records) > 0 {
			if err := a.store.Save(ctx, scan.key(store.KindProcessed), records); err != nil {
				return nil, fmt.Errorf("failed to save processed records: %w", err)
			}
		}
	}

	perf := a.CalculatePerformance(ctx, scan.Wallet, records)
	if err := a.store.Save(ctx, scan.key(store.KindResults), perf); err != nil {
		return nil, fmt.Errorf("failed to save results: %w", err)
	}
	return perf, nil
}
