package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Fetch policies accepted by FETCH_POLICY.
const (
	FetchPolicyFailFast = "fail-fast"
	FetchPolicySkip     = "skip"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	LogLevel    string
	MetricsAddr string
	ServerAddr  string

	// Solana RPC
	SolanaRPCURL  string
	RPCRateLimit  int
	RPCRateWindow time.Duration

	// Price and token search APIs
	BirdeyeAPIKey      string
	BirdeyeBaseURL     string
	DexscreenerBaseURL string
	HTTPTimeout        time.Duration

	// Pipeline
	FetchConcurrency int
	FetchPolicy      string

	// Storage. Artifacts go to Postgres when DatabaseURL is set, otherwise under DataDir.
	DataDir     string
	DatabaseURL string

	// Price cache. In-memory when RedisURL is empty.
	RedisURL      string
	PriceCacheTTL time.Duration
	// PriceMissTTL bounds how long a price that was not found stays cached.
	PriceMissTTL time.Duration

	// NATS publishing is disabled when NATSURL is empty.
	NATSURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
}

// LoadDotEnv loads variables from the given files into the environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9090")
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")

	// Solana RPC
	cfg.SolanaRPCURL = getEnvOrDefault("SOLANA_RPC_URL", "https://docs-demo.solana-mainnet.quiknode.pro/")

	rateLimit, err := parseInt("RPC_RATE_LIMIT", 10)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RPCRateLimit = rateLimit
	}

	rateWindow, err := parseDuration("RPC_RATE_WINDOW", "10s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RPCRateWindow = rateWindow
	}

	// Price and token search APIs
	cfg.BirdeyeAPIKey = os.Getenv("BIRDEYE_API_KEY")
	if cfg.BirdeyeAPIKey == "" {
		errs = append(errs, fmt.Errorf("BIRDEYE_API_KEY is required"))
	}
	cfg.BirdeyeBaseURL = getEnvOrDefault("BIRDEYE_BASE_URL", "https://public-api.birdeye.so")
	cfg.DexscreenerBaseURL = getEnvOrDefault("DEXSCREENER_BASE_URL", "https://api.dexscreener.com")

	httpTimeout, err := parseDuration("HTTP_TIMEOUT", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.HTTPTimeout = httpTimeout
	}

	// Pipeline
	concurrency, err := parseInt("FETCH_CONCURRENCY", 1)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.FetchConcurrency = concurrency
	}
	cfg.FetchPolicy = getEnvOrDefault("FETCH_POLICY", FetchPolicyFailFast)

	// Storage
	cfg.DataDir = getEnvOrDefault("DATA_DIR", "./data")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.RedisURL = os.Getenv("REDIS_URL")
	cacheTTL, err := parseDuration("PRICE_CACHE_TTL", "168h")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PriceCacheTTL = cacheTTL
	}
	missTTL, err := parseDuration("PRICE_MISS_TTL", "1h")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PriceMissTTL = missTTL
	}

	cfg.NATSURL = os.Getenv("NATS_URL")

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "walko-analysis")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.BirdeyeAPIKey == "" {
		errs = append(errs, fmt.Errorf("BirdeyeAPIKey is required"))
	}

	if c.RPCRateLimit < 1 {
		errs = append(errs, fmt.Errorf("RPCRateLimit must be at least 1"))
	}

	if c.RPCRateWindow <= 0 {
		errs = append(errs, fmt.Errorf("RPCRateWindow must be positive"))
	}

	if c.FetchConcurrency < 1 {
		errs = append(errs, fmt.Errorf("FetchConcurrency must be at least 1"))
	}

	if c.FetchPolicy != FetchPolicyFailFast && c.FetchPolicy != FetchPolicySkip {
		errs = append(errs, fmt.Errorf("FetchPolicy must be %q or %q, got %q", FetchPolicyFailFast, FetchPolicySkip, c.FetchPolicy))
	}

	if c.DatabaseURL == "" && c.DataDir == "" {
		errs = append(errs, fmt.Errorf("one of DataDir or DatabaseURL is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
