package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nootey/walko/service/metrics"
	"github.com/nootey/walko/service/ratelimit"
)

const (
	// DefaultBirdeyeURL is the public Birdeye API.
	DefaultBirdeyeURL = "https://public-api.birdeye.so"

	// Window is how far either side of the requested timestamp a sample may lie.
	Window = 30 * time.Second

	sourceBirdeye = "birdeye"
)

// BirdeyeOracle resolves historical token prices from Birdeye's 1-minute history.
type BirdeyeOracle struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewBirdeyeOracle creates a Birdeye-backed oracle. Requests share limiter with
// the RPC client. If httpClient is nil a metrics-instrumented client is used.
func NewBirdeyeOracle(baseURL, apiKey string, httpClient *http.Client, limiter *ratelimit.Limiter, m *metrics.Metrics, logger *slog.Logger) *BirdeyeOracle {
	if baseURL == "" {
		baseURL = DefaultBirdeyeURL
	}
	if httpClient == nil {
		httpClient = metrics.NewHTTPClient(m, sourceBirdeye, 30*time.Second)
	}
	if limiter == nil {
		limiter = ratelimit.NewUnlimited()
	}
	return &BirdeyeOracle{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		limiter:    limiter,
		metrics:    m,
		logger:     logger,
	}
}

type historyPriceResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Items []struct {
			UnixTime int64    `json:"unixTime"`
			Value    *float64 `json:"value"`
		} `json:"items"`
	} `json:"data"`
}

// GetPrice returns the first price sample within Window of ts.
// ok is false when the token is empty or no sample exists.
func (o *BirdeyeOracle) GetPrice(ctx context.Context, token string, ts int64) (float64, bool, error) {
	if token == "" {
		return 0, false, nil
	}

	start := time.Now()
	price, ok, err := o.fetch(ctx, token, ts)
	if o.metrics != nil {
		outcome := "found"
		switch {
		case err != nil:
			outcome = "error"
		case !ok:
			outcome = "missing"
		}
		o.metrics.RecordPriceLookup(sourceBirdeye, outcome, time.Since(start).Seconds())
	}
	return price, ok, err
}

func (o *BirdeyeOracle) fetch(ctx context.Context, token string, ts int64) (float64, bool, error) {
	window := int64(Window / time.Second)
	q := url.Values{}
	q.Set("address", token)
	q.Set("address_type", "token")
	q.Set("type", "1m")
	q.Set("time_from", strconv.FormatInt(ts-window, 10))
	q.Set("time_to", strconv.FormatInt(ts+window, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/defi/history_price?"+q.Encode(), nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-KEY", o.apiKey)
	req.Header.Set("Accept", "application/json")

	o.limiter.Acquire()
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("birdeye request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, false, fmt.Errorf("birdeye returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out historyPriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, false, fmt.Errorf("failed to decode birdeye response: %w", err)
	}

	if !out.Success || len(out.Data.Items) == 0 || out.Data.Items[0].Value == nil {
		o.logger.DebugContext(ctx, "no price sample",
			"token", token,
			"timestamp", ts,
		)
		return 0, false, nil
	}
	return *out.Data.Items[0].Value, true, nil
}
