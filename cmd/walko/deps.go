package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nootey/walko/service/analyzer"
	"github.com/nootey/walko/service/config"
	"github.com/nootey/walko/service/dexscreener"
	"github.com/nootey/walko/service/metrics"
	natspkg "github.com/nootey/walko/service/nats"
	"github.com/nootey/walko/service/price"
	"github.com/nootey/walko/service/ratelimit"
	"github.com/nootey/walko/service/solana"
	"github.com/nootey/walko/service/store"
)

// deps is the wired analysis pipeline plus everything that must be closed afterwards.
type deps struct {
	cfg       *config.Config
	logger    *slog.Logger
	analyzer  *analyzer.Analyzer
	publisher natspkg.Publisher // nil when NATS is not configured
	closers   []func()
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// buildDeps loads configuration and wires the analyzer. A nil m disables metrics.
func buildDeps(ctx context.Context, logLevel string, m *metrics.Metrics) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	logger := setupLogger(logLevel)

	policy, err := analyzer.ParseFetchPolicy(cfg.FetchPolicy)
	if err != nil {
		return nil, err
	}

	d := &deps{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			d.Close()
		}
	}()

	// RPC and Birdeye calls draw from the same budget.
	limiter := ratelimit.New(cfg.RPCRateLimit, cfg.RPCRateWindow)

	chain := solana.NewClient(
		solana.NewRPCClient(cfg.SolanaRPCURL),
		limiter,
		endpointLabel(cfg.SolanaRPCURL),
		m,
		logger,
	)
	logger.Info("initialized solana RPC client",
		"endpoint", endpointLabel(cfg.SolanaRPCURL),
		"rate_limit", limiter.Permits(),
		"rate_window", limiter.Window(),
	)

	birdeye := price.NewBirdeyeOracle(
		cfg.BirdeyeBaseURL,
		cfg.BirdeyeAPIKey,
		metrics.NewHTTPClient(m, "birdeye", cfg.HTTPTimeout),
		limiter,
		m,
		logger,
	)

	var (
		cache   price.Cache
		backend string
	)
	if cfg.RedisURL != "" {
		rc, err := price.NewRedisCache(ctx, cfg.RedisURL, cfg.PriceCacheTTL)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() { rc.Close() })
		cache, backend = rc, "redis"
	} else {
		cache, backend = price.NewMemoryCache(), "memory"
	}
	logger.Info("price cache ready", "backend", backend)
	oracle := price.NewCachedOracle(birdeye, cache, backend, m, logger, price.WithMissTTL(cfg.PriceMissTTL))

	search := dexscreener.NewClient(
		cfg.DexscreenerBaseURL,
		metrics.NewHTTPClient(m, "dexscreener", cfg.HTTPTimeout),
		m,
		logger,
	)

	st, err := openStore(ctx, cfg.DatabaseURL, cfg.DataDir, m, logger, d)
	if err != nil {
		return nil, err
	}

	if cfg.NATSURL != "" {
		pub, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() { pub.Close() })
		d.publisher = pub
	}

	d.analyzer = analyzer.New(analyzer.Config{
		Chain:       chain,
		Search:      search,
		Oracle:      oracle,
		Store:       st,
		Publisher:   d.publisher,
		Policy:      policy,
		Concurrency: cfg.FetchConcurrency,
		Metrics:     m,
		Logger:      logger,
	})

	ok = true
	return d, nil
}

// openStore returns a Postgres store when databaseURL is set and a file store
// rooted at dataDir otherwise. Cleanup is registered on d.
func openStore(ctx context.Context, databaseURL, dataDir string, m *metrics.Metrics, logger *slog.Logger, d *deps) (store.Store, error) {
	if databaseURL == "" {
		logger.Info("using file store", "dir", dataDir)
		return store.NewFileStore(dataDir, m, logger), nil
	}

	pg, err := openPGStore(ctx, databaseURL, m, logger)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, pg.pool.Close)
	return pg.PGStore, nil
}

type pgStore struct {
	*store.PGStore
	pool *pgxpool.Pool
}

func openPGStore(ctx context.Context, databaseURL string, m *metrics.Metrics, logger *slog.Logger) (*pgStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := store.NewPGStore(pool, m, logger)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("using postgres store")
	return &pgStore{PGStore: s, pool: pool}, nil
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// endpointLabel extracts a short identifier from the Solana RPC URL for metrics labeling.
// Examples:
//   - "https://api.mainnet-beta.solana.com" -> "mainnet"
//   - "https://mainnet.helius-rpc.com/?api-key=..." -> "helius"
//   - "https://docs-demo.solana-mainnet.quiknode.pro/" -> "quiknode"
func endpointLabel(rpcURL string) string {
	parsed, err := url.Parse(rpcURL)
	if err != nil || parsed.Hostname() == "" {
		return "unknown"
	}
	host := parsed.Hostname()

	for _, provider := range []string{"helius", "quiknode", "alchemy", "triton", "rpcpool"} {
		if strings.Contains(host, provider) {
			return provider
		}
	}
	if strings.Contains(host, "quicknode") {
		return "quiknode"
	}
	for _, cluster := range []string{"mainnet", "devnet", "testnet"} {
		if strings.Contains(host, cluster) {
			return cluster
		}
	}
	return host
}
