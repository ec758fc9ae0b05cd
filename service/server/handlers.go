package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/nootey/walko/service/store"
)

const (
	maxRequestBodySize = 1 << 16 // an analysis request is two short strings
	maxAddressLength   = 100     // Solana addresses are 32-44 chars, give buffer
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// analysisResponse is returned when an analysis is started.
type analysisResponse struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	Wallet     string `json:"wallet"`
	Scope      string `json:"scope"`
}

// artifactResponse wraps a stored artifact with its key.
type artifactResponse struct {
	Wallet string          `json:"wallet"`
	Scope  store.Scope     `json:"scope"`
	Date   string          `json:"date"`
	Kind   store.Kind      `json:"kind"`
	Data   json.RawMessage `json:"data"`
}

// handleStartAnalysis returns a handler that starts a wallet analysis workflow.
// POST /api/v1/analyses {"wallet": "...", "scope": "single"}
func handleStartAnalysis(starter AnalysisStarter, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Wallet string `json:"wallet"`
			Scope  string `json:"scope"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode analysis request", "error", err)
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, "request body too large", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		if err := validateAddress(req.Wallet); err != nil {
			logger.Debug("invalid wallet", "wallet", req.Wallet, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		scope, err := parseScope(req.Scope)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		workflowID, runID, err := starter.StartAnalysis(r.Context(), req.Wallet, string(scope))
		if err != nil {
			logger.Error("failed to start analysis", "wallet", req.Wallet, "scope", scope, "error", err)
			writeError(w, "failed to start analysis", http.StatusInternalServerError)
			return
		}

		logger.Info("analysis started",
			"wallet", req.Wallet,
			"scope", scope,
			"workflow_id", workflowID,
		)

		writeJSON(w, analysisResponse{
			WorkflowID: workflowID,
			RunID:      runID,
			Wallet:     req.Wallet,
			Scope:      string(scope),
		}, http.StatusAccepted)
	})
}

// handleGetArtifact returns a handler that serves one stored artifact of the given kind.
// GET /api/v1/wallets/{address}/results?scope=single&date=2024-03-09
func handleGetArtifact(st store.Store, kind store.Kind, now func() time.Time, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		query := r.URL.Query()

		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		scope, err := parseScope(query.Get("scope"))
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		date := now().Format(store.DateLayout)
		if d := query.Get("date"); d != "" {
			if _, err := time.Parse(store.DateLayout, d); err != nil {
				writeError(w, "invalid date: must be YYYY-MM-DD", http.StatusBadRequest)
				return
			}
			date = d
		}

		key := store.Key{Kind: kind, Scope: scope, Date: date, Wallet: address}
		var data json.RawMessage
		found, err := st.Load(r.Context(), key, &data)
		if err != nil {
			logger.Error("failed to load artifact", "key", key.String(), "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if !found {
			writeError(w, fmt.Sprintf("no %s stored for %s on %s", kind, address, date), http.StatusNotFound)
			return
		}

		logger.Debug("artifact served", "key", key.String())
		writeJSON(w, artifactResponse{
			Wallet: address,
			Scope:  scope,
			Date:   date,
			Kind:   kind,
			Data:   data,
		}, http.StatusOK)
	})
}

// handleListArtifacts returns a handler that lists every stored artifact for a wallet.
// GET /api/v1/wallets/{address}/artifacts
func handleListArtifacts(lister ArtifactLister, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		artifacts, err := lister.List(r.Context(), address)
		if err != nil {
			logger.Error("failed to list artifacts", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if artifacts == nil {
			artifacts = []store.Artifact{}
		}

		writeJSON(w, map[string]interface{}{
			"wallet":    address,
			"artifacts": artifacts,
		}, http.StatusOK)
	})
}

// parseScope defaults an empty scope to single.
func parseScope(s string) (store.Scope, error) {
	if s == "" {
		return store.ScopeSingle, nil
	}
	return store.ParseScope(s)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates a wallet address for format.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return errorf("invalid address format: must contain only valid base58 characters")
	}

	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
