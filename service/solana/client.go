package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/nootey/walko/service/ledger"
	"github.com/nootey/walko/service/metrics"
	"github.com/nootey/walko/service/ratelimit"
)

// DefaultMaxAttempts bounds the getTransaction retry on HTTP 429.
const DefaultMaxAttempts = 3

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	GetParsedTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetParsedTransactionOpts,
	) (*rpc.GetParsedTransactionResult, error)

	GetTokenLargestAccounts(
		ctx context.Context,
		mint solana.PublicKey,
	) ([]*rpc.TokenLargestAccountsResult, error)
}

// Client provides the wallet-history operations of the PnL pipeline.
// Every RPC call first acquires the shared limiter.
type Client struct {
	rpc         RPCClient
	limiter     *ratelimit.Limiter
	logger      *slog.Logger
	metrics     *metrics.Metrics
	endpoint    string // RPC endpoint identifier for metrics (e.g., "mainnet", rpc host)
	maxAttempts int
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling (e.g., "mainnet", "devnet", or RPC hostname).
// If metrics is nil, no metrics will be recorded. If limiter is nil, calls are not rate limited.
func NewClient(rpcClient RPCClient, limiter *ratelimit.Limiter, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	if limiter == nil {
		limiter = ratelimit.NewUnlimited()
	}
	return &Client{
		rpc:         rpcClient,
		limiter:     limiter,
		logger:      logger,
		metrics:     m,
		endpoint:    endpoint,
		maxAttempts: DefaultMaxAttempts,
	}
}

// FetchTransaction retrieves the parsed transaction for signature.
//
// A 429 response acquires the limiter again and retries, up to three attempts in
// total. Any other failure aborts immediately. A transaction the node does not
// know about is returned as nil with a nil error.
func (c *Client) FetchTransaction(ctx context.Context, signature string) (*ledger.Transaction, error) {
	const op = "getTransaction"

	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, &FetchError{Op: op, Target: signature, Attempts: 0, Kind: ErrDataShape, Err: err}
	}

	opts := &rpc.GetParsedTransactionOpts{
		Commitment:                     rpc.CommitmentFinalized,
		MaxSupportedTransactionVersion: &[]uint64{0}[0],
	}

	attempts := 0
	policy := ratelimit.Policy{
		MaxAttempts: c.maxAttempts,
		Retryable:   isRateLimited,
		BeforeRetry: func(attempt int, err error) {
			c.logger.WarnContext(ctx, "rate limited, waiting for limiter before retry",
				"signature", signature,
				"attempt", attempt,
			)
			if c.metrics != nil {
				c.metrics.RecordRateLimitHit(c.endpoint)
				c.metrics.RecordRPCRetry(op, "rate_limit")
			}
			c.limiter.Acquire()
		},
	}

	c.limiter.Acquire()
	result, err := ratelimit.Retry(ctx, policy, func(attempt int) (*rpc.GetParsedTransactionResult, error) {
		attempts = attempt
		start := time.Now()
		res, err := c.rpc.GetParsedTransaction(ctx, sig, opts)
		c.recordCall(op, err, start)
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return res, err
	})
	if err != nil {
		var exhausted *ratelimit.ExhaustedError
		if errors.As(err, &exhausted) {
			if c.metrics != nil {
				c.metrics.RecordRateLimitHit(c.endpoint)
			}
			return nil, &FetchError{Op: op, Target: signature, Attempts: exhausted.Attempts, Kind: ErrRateLimitExhausted, Err: exhausted.Err}
		}
		c.logger.ErrorContext(ctx, "failed to get transaction",
			"signature", signature,
			"error", err,
		)
		return nil, &FetchError{Op: op, Target: signature, Attempts: attempts, Kind: classify(err), Err: err}
	}

	if result == nil {
		c.logger.DebugContext(ctx, "transaction not found", "signature", signature)
		return nil, nil
	}

	tx, err := toLedgerTransaction(signature, result)
	if err != nil {
		return nil, &FetchError{Op: op, Target: signature, Attempts: attempts, Kind: ErrDataShape, Err: err}
	}
	return tx, nil
}

// LargestAccounts returns the largest token accounts of mint.
func (c *Client) LargestAccounts(ctx context.Context, mint string) ([]TokenAccount, error) {
	const op = "getTokenLargestAccounts"

	pk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return nil, &FetchError{Op: op, Target: mint, Kind: ErrDataShape, Err: err}
	}

	c.limiter.Acquire()
	start := time.Now()
	res, err := c.rpc.GetTokenLargestAccounts(ctx, pk)
	c.recordCall(op, err, start)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to get largest accounts",
			"mint", mint,
			"error", err,
		)
		return nil, &FetchError{Op: op, Target: mint, Attempts: 1, Kind: classify(err), Err: err}
	}

	accounts := make([]TokenAccount, 0, len(res))
	for _, r := range res {
		if r == nil {
			continue
		}
		accounts = append(accounts, TokenAccount{
			Address:        r.Address.String(),
			Amount:         r.Amount,
			Decimals:       r.Decimals,
			UIAmount:       r.UiAmount,
			UIAmountString: r.UiAmountString,
		})
	}

	c.logger.DebugContext(ctx, "fetched largest accounts",
		"mint", mint,
		"count", len(accounts),
	)
	return accounts, nil
}

func (c *Client) recordCall(method string, err error, start time.Time) {
	if c.metrics == nil {
		return
	}
	status := "success"
	switch {
	case err == nil, errors.Is(err, rpc.ErrNotFound):
	case isRateLimited(err):
		status = "rate_limited"
	default:
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
}

func parseWallet(wallet string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid wallet address %q: %w", wallet, err)
	}
	return pk, nil
}
