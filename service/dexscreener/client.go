package dexscreener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nootey/walko/service/metrics"
)

// DefaultBaseURL is the public DexScreener API.
const DefaultBaseURL = "https://api.dexscreener.com"

// ErrNoPairs is returned when a search matches no market pair.
var ErrNoPairs = errors.New("no pairs found")

// Token identifies one side of a pair.
type Token struct {
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	Address string `json:"address"`
}

// Pair is a market pair as returned by the search endpoint.
type Pair struct {
	ChainID   string `json:"chainId"`
	DexID     string `json:"dexId"`
	URL       string `json:"url"`
	BaseToken Token  `json:"baseToken"`
	PriceUSD  string `json:"priceUsd,omitempty"`
}

// Client queries DexScreener.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a DexScreener client. If httpClient is nil a metrics-instrumented
// client is used.
func NewClient(baseURL string, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = metrics.NewHTTPClient(m, "dexscreener", 10*time.Second)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Search returns the first pair matching the token address.
func (c *Client) Search(ctx context.Context, address string) (*Pair, error) {
	u := fmt.Sprintf("%s/latest/dex/search/?q=%s", c.baseURL, url.QueryEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dexscreener returned status %d", resp.StatusCode)
	}

	var out struct {
		Pairs []Pair `json:"pairs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Pairs) == 0 {
		return nil, ErrNoPairs
	}

	pair := out.Pairs[0]
	c.logger.DebugContext(ctx, "dexscreener pair found",
		"address", address,
		"chain", pair.ChainID,
		"dex", pair.DexID,
		"symbol", pair.BaseToken.Symbol,
	)
	return &pair, nil
}
