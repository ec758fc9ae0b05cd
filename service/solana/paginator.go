package solana

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// PageSize is the number of signatures requested per getSignaturesForAddress call.
// A page shorter than this means the history is exhausted.
const PageSize = 1000

// SignatureIterator walks a wallet's signature history backward, newest first,
// yielding only finalized, successful transactions. It is not restartable and
// not safe for concurrent use.
//
//	it := client.Signatures(wallet)
//	for it.Next(ctx) {
//	    rec := it.Record()
//	}
//	if err := it.Err(); err != nil { ... }
type SignatureIterator struct {
	client *Client
	wallet string
	pk     solana.PublicKey
	before *solana.Signature
	limit  int

	buf   []SignatureRecord
	cur   SignatureRecord
	done  bool
	err   error
	pages int
}

// Signatures returns an iterator over the wallet's finalized history. No RPC call
// is made until the first Next.
func (c *Client) Signatures(wallet string) *SignatureIterator {
	it := &SignatureIterator{client: c, wallet: wallet, limit: PageSize}
	pk, err := parseWallet(wallet)
	if err != nil {
		it.err = &FetchError{Op: "getSignaturesForAddress", Target: wallet, Kind: ErrDataShape, Err: err}
		it.done = true
		return it
	}
	it.pk = pk
	return it
}

// Next advances to the next record, fetching pages as needed.
// It returns false at the end of history or on the first error.
func (it *SignatureIterator) Next(ctx context.Context) bool {
	for len(it.buf) == 0 {
		if it.done {
			return false
		}
		if err := it.fetchPage(ctx); err != nil {
			it.err = err
			it.done = true
			it.buf = nil
			return false
		}
	}
	it.cur = it.buf[0]
	it.buf = it.buf[1:]
	return true
}

// Record returns the record Next advanced to.
func (it *SignatureIterator) Record() SignatureRecord {
	return it.cur
}

// Err returns the error that stopped iteration, if any.
func (it *SignatureIterator) Err() error {
	return it.err
}

// Pages returns the number of pages requested so far.
func (it *SignatureIterator) Pages() int {
	return it.pages
}

// Collect drains the iterator. On error no partial result is returned.
func (it *SignatureIterator) Collect(ctx context.Context) ([]SignatureRecord, error) {
	var out []SignatureRecord
	for it.Next(ctx) {
		out = append(out, it.Record())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// FinalizedSignatures returns every finalized, successful signature of the wallet,
// newest first.
func (c *Client) FinalizedSignatures(ctx context.Context, wallet string) ([]string, error) {
	it := c.Signatures(wallet)
	records, err := it.Collect(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(records))
	for i, rec := range records {
		out[i] = rec.Signature
	}
	c.logger.InfoContext(ctx, "collected signatures",
		"wallet", wallet,
		"count", len(out),
		"pages", it.Pages(),
	)
	return out, nil
}

// SignaturePage fetches a single page of at most limit raw signatures older than
// before, or from the newest when before is empty. It returns the finalized,
// successful signatures of the page and the cursor of the next page, which is
// empty once the history is exhausted.
func (c *Client) SignaturePage(ctx context.Context, wallet, before string, limit int) ([]string, string, error) {
	const op = "getSignaturesForAddress"
	if limit <= 0 || limit > PageSize {
		limit = PageSize
	}

	it := c.Signatures(wallet)
	if it.err != nil {
		return nil, "", it.err
	}
	it.limit = limit
	if before != "" {
		sig, err := solana.SignatureFromBase58(before)
		if err != nil {
			return nil, "", &FetchError{Op: op, Target: wallet, Kind: ErrDataShape, Err: fmt.Errorf("invalid cursor %q: %w", before, err)}
		}
		it.before = &sig
	}

	if err := it.fetchPage(ctx); err != nil {
		return nil, "", err
	}

	sigs := make([]string, len(it.buf))
	for i, rec := range it.buf {
		sigs[i] = rec.Signature
	}
	var next string
	if !it.done {
		next = it.before.String()
	}
	return sigs, next, nil
}

func (it *SignatureIterator) fetchPage(ctx context.Context) error {
	const op = "getSignaturesForAddress"
	c := it.client

	limit := it.limit
	opts := &rpc.GetSignaturesForAddressOpts{
		Limit: &limit,
	}
	var cursor string
	if it.before != nil {
		opts.Before = *it.before
		cursor = it.before.String()
	}

	c.logger.DebugContext(ctx, "calling GetSignaturesForAddress",
		"wallet", it.wallet,
		"limit", limit,
		"before", cursor,
		"page", it.pages+1,
	)

	c.limiter.Acquire()
	start := time.Now()
	raw, err := c.rpc.GetSignaturesForAddress(ctx, it.pk, opts)
	c.recordCall(op, err, start)
	it.pages++
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to get signatures",
			"wallet", it.wallet,
			"page", it.pages,
			"error", err,
		)
		return &FetchError{Op: op, Target: it.wallet, Attempts: 1, Kind: classify(err), Err: err}
	}
	if c.metrics != nil {
		c.metrics.RecordSignaturesPerPage(c.endpoint, len(raw))
	}

	kept := make([]SignatureRecord, 0, len(raw))
	for _, sig := range raw {
		if sig == nil {
			continue
		}
		rec := signatureToRecord(sig)
		if rec.Finalized() {
			kept = append(kept, rec)
		}
	}
	it.buf = append(it.buf, kept...)

	c.logger.DebugContext(ctx, "fetched signature page",
		"wallet", it.wallet,
		"page", it.pages,
		"raw", len(raw),
		"kept", len(kept),
	)

	if len(raw) < limit {
		it.done = true
		return nil
	}
	// The cursor follows the raw page so filtered entries are never requested twice.
	last := raw[len(raw)-1]
	if last == nil {
		return &FetchError{Op: op, Target: it.wallet, Attempts: 1, Kind: ErrDataShape, Err: errNilCursor}
	}
	sig := last.Signature
	it.before = &sig
	return nil
}
