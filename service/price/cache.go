package price

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nootey/walko/service/ledger"
	"github.com/nootey/walko/service/metrics"
)

// DefaultMissTTL is how long a cached miss is trusted.
const DefaultMissTTL = time.Hour

// Entry is a cached lookup result. Found is false for a cached miss.
type Entry struct {
	Price    float64   `json:"price"`
	Found    bool      `json:"found"`
	CachedAt time.Time `json:"cached_at"`
}

// Cache stores price lookups by key.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Entry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
	return nil
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// CachedOracle memoizes another oracle's answers. Misses are cached for a
// short while and never answer a lookup marked with ledger.WithRetryMiss.
// Failed lookups are not cached.
type CachedOracle struct {
	next    ledger.PriceOracle
	cache   Cache
	backend string
	missTTL time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// CacheOption configures a CachedOracle.
type CacheOption func(*CachedOracle)

// WithMissTTL sets how long a cached miss is trusted.
func WithMissTTL(ttl time.Duration) CacheOption {
	return func(o *CachedOracle) {
		o.missTTL = ttl
	}
}

// WithClock sets the clock used to age cached misses.
func WithClock(now func() time.Time) CacheOption {
	return func(o *CachedOracle) {
		o.now = now
	}
}

// NewCachedOracle wraps next with cache. backend labels cache metrics (e.g. "memory", "redis").
func NewCachedOracle(next ledger.PriceOracle, cache Cache, backend string, m *metrics.Metrics, logger *slog.Logger, opts ...CacheOption) *CachedOracle {
	o := &CachedOracle{
		next:    next,
		cache:   cache,
		backend: backend,
		missTTL: DefaultMissTTL,
		now:     time.Now,
		metrics: m,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

func cacheKey(token string, ts int64) string {
	return fmt.Sprintf("%s:%d", token, ts)
}

func (o *CachedOracle) GetPrice(ctx context.Context, token string, ts int64) (float64, bool, error) {
	if token == "" {
		return 0, false, nil
	}
	key := cacheKey(token, ts)

	e, hit, err := o.cache.Get(ctx, key)
	if err != nil {
		o.logger.WarnContext(ctx, "price cache read failed", "key", key, "error", err)
	}
	if hit && !e.Found && (ledger.IsRetryMiss(ctx) || o.now().Sub(e.CachedAt) >= o.missTTL) {
		hit = false
	}
	if o.metrics != nil {
		o.metrics.RecordPriceCache(o.backend, hit)
	}
	if hit {
		return e.Price, e.Found, nil
	}

	price, found, err := o.next.GetPrice(ctx, token, ts)
	if err != nil {
		return 0, false, err
	}

	if err := o.cache.Set(ctx, key, Entry{Price: price, Found: found, CachedAt: o.now().UTC()}); err != nil {
		o.logger.WarnContext(ctx, "price cache write failed", "key", key, "error", err)
	}
	return price, found, nil
}
