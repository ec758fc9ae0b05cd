package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nootey/walko/service/ledger"
	"github.com/nootey/walko/service/store"
)

// Analysis identifies a started analysis workflow.
type Analysis struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	Wallet     string `json:"wallet"`
	Scope      string `json:"scope"`
}

// Client is the HTTP client for the walko API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new walko API client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// StartAnalysis asks the server to analyze a wallet on the worker.
func (c *Client) StartAnalysis(ctx context.Context, wallet string, scope store.Scope) (*Analysis, error) {
	body, err := json.Marshal(map[string]string{
		"wallet": wallet,
		"scope":  string(scope),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/analyses", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, c.parseErrorResponse(resp)
	}

	var a Analysis
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("analysis started", "wallet", wallet, "workflow_id", a.WorkflowID)
	return &a, nil
}

// Results fetches the stored performance of a wallet. An empty date means today on the server.
func (c *Client) Results(ctx context.Context, wallet string, scope store.Scope, date string) (*ledger.WalletPerformance, error) {
	var perf ledger.WalletPerformance
	if err := c.getArtifact(ctx, wallet, store.KindResults, scope, date, &perf); err != nil {
		return nil, err
	}
	return &perf, nil
}

// Processed fetches the stored per-transaction records of a wallet.
func (c *Client) Processed(ctx context.Context, wallet string, scope store.Scope, date string) ([]ledger.TransactionStats, error) {
	var records []ledger.TransactionStats
	if err := c.getArtifact(ctx, wallet, store.KindProcessed, scope, date, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Artifacts lists every artifact stored for a wallet. Only servers backed by Postgres support it.
func (c *Client) Artifacts(ctx context.Context, wallet string) ([]store.Artifact, error) {
	u := fmt.Sprintf("%s/api/v1/wallets/%s/artifacts", c.baseURL, url.PathEscape(wallet))
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
		return nil, c.parseErrorResponse(resp)
	}

	var response struct {
		Artifacts []store.Artifact `json:"artifacts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return response.Artifacts, nil
}

func (c *Client) getArtifact(ctx context.Context, wallet string, kind store.Kind, scope store.Scope, date string, v any) error {
	q := url.Values{}
	if scope != "" {
		q.Set("scope", string(scope))
	}
	if date != "" {
		q.Set("date", date)
	}
	u := fmt.Sprintf("%s/api/v1/wallets/%s/%s", c.baseURL, url.PathEscape(wallet), kind)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	var response struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if err := json.Unmarshal(response.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", kind, err)
	}

	c.logger.Debug("artifact fetched", "wallet", wallet, "kind", kind, "scope", scope)
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
