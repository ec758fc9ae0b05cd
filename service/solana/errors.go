package solana

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// Error taxonomy for RPC operations. A *FetchError matches exactly one of these
// with errors.Is.
var (
	// ErrTransport is a network or connection failure.
	ErrTransport = errors.New("transport error")

	// ErrProtocol is a non-2xx response or a JSON-RPC error object.
	ErrProtocol = errors.New("protocol error")

	// ErrRateLimitExhausted means every attempt was answered with HTTP 429.
	ErrRateLimitExhausted = errors.New("rate limit retries exhausted")

	// ErrDataShape is a response with missing or unexpected fields.
	ErrDataShape = errors.New("unexpected data shape")

	errNilCursor = errors.New("last signature of a full page is null")
)

// FetchError labels a failed RPC operation with the call that failed.
type FetchError struct {
	Op       string // RPC method, e.g. "getTransaction"
	Target   string // wallet, signature or mint the call was about
	Attempts int
	Kind     error // one of the Err* sentinels
	Err      error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s(%s)", e.Op, e.Target)
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	fmt.Fprintf(&b, ": %v", e.Kind)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *FetchError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// classify maps an error from the solana-go client onto the taxonomy.
func classify(err error) error {
	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) {
		return ErrProtocol
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return ErrProtocol
	}
	return ErrTransport
}

// isRateLimited reports whether err is an HTTP 429 response.
func isRateLimited(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code == http.StatusTooManyRequests
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == http.StatusTooManyRequests
	}
	return false
}
