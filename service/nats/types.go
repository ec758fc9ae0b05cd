package nats

import (
	"time"

	"github.com/nootey/walko/service/ledger"
)

// SummaryEvent represents a finished wallet analysis published to NATS.
// This is published to the subject "pnl.{wallet}" in JetStream.
type SummaryEvent struct {
	Wallet string `json:"wallet"`
	Scope  string `json:"scope,omitempty"`

	UniqueTokens       int     `json:"unique_tokens"`
	WinRate            float64 `json:"winrate"`
	ValueAtTransaction float64 `json:"value_at_transaction"`
	CurrentValue       float64 `json:"current_value"`

	// Mints lists the tokens whose mint was authorized by the wallet.
	Mints []string `json:"mints,omitempty"`

	ComputedAt time.Time `json:"computed_at"`
}

// FromPerformance converts an aggregated wallet performance to a SummaryEvent for publishing.
func FromPerformance(wallet, scope string, perf *ledger.WalletPerformance, mints []string, computedAt time.Time) *SummaryEvent {
	event := &SummaryEvent{
		Wallet:     wallet,
		Scope:      scope,
		Mints:      mints,
		ComputedAt: computedAt.UTC(),
	}
	if perf != nil {
		event.UniqueTokens = perf.UniqueTokens
		event.WinRate = perf.WinRate
		event.ValueAtTransaction = perf.ValueAtTransaction
		event.CurrentValue = perf.CurrentValue
	}
	return event
}
