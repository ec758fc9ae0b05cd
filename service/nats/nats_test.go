package nats

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/nootey/walko/service/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Publisher = (*MockPublisher)(nil)
var _ Publisher = (*JetStreamPublisher)(nil)

func TestFromPerformance(t *testing.T) {
	perf := &ledger.WalletPerformance{
		UniqueTokens:       3,
		WinRate:            1.0 / 3.0,
		ValueAtTransaction: 7,
		CurrentValue:       12.5,
	}
	at := time.Date(2024, 3, 9, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	event := FromPerformance("wallet1", "single", perf, []string{"mintA"}, at)

	assert.Equal(t, "wallet1", event.Wallet)
	assert.Equal(t, "single", event.Scope)
	assert.Equal(t, 3, event.UniqueTokens)
	assert.InDelta(t, 1.0/3.0, event.WinRate, 1e-9)
	assert.Equal(t, 7.0, event.ValueAtTransaction)
	assert.Equal(t, 12.5, event.CurrentValue)
	assert.Equal(t, []string{"mintA"}, event.Mints)
	assert.Equal(t, time.UTC, event.ComputedAt.Location())
	assert.True(t, at.Equal(event.ComputedAt))
}

func TestFromPerformance_Nil(t *testing.T) {
	event := FromPerformance("wallet1", "multi", nil, nil, time.Now())
	assert.Equal(t, "wallet1", event.Wallet)
	assert.Zero(t, event.UniqueTokens)
	assert.Zero(t, event.WinRate)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "pnl.wallet1", Subject("wallet1"))
}

func TestMockPublisher(t *testing.T) {
	ctx := context.Background()
	m := NewMockPublisher()

	require.NoError(t, m.PublishSummary(ctx, &SummaryEvent{Wallet: "a"}))
	require.NoError(t, m.PublishSummaryBatch(ctx, []*SummaryEvent{{Wallet: "b"}, {Wallet: "a"}}))

	assert.Equal(t, 3, m.GetPublishedEventCount())
	assert.Len(t, m.GetPublishedEventsForWallet("a"), 2)

	m.SetPublishError(errors.New("nats down"))
	assert.Error(t, m.PublishSummary(ctx, &SummaryEvent{Wallet: "c"}))
	assert.Equal(t, 3, m.GetPublishedEventCount())

	require.NoError(t, m.Close())
	assert.True(t, m.IsClosed())

	m.Reset()
	assert.Zero(t, m.GetPublishedEventCount())
	assert.False(t, m.IsClosed())
}

func TestJetStreamPublisher_Integration(t *testing.T) {
	natsURL := os.Getenv("TEST_NATS_URL")
	if natsURL == "" {
		t.Skip("Skipping NATS test (TEST_NATS_URL not set)")
	}

	p, err := NewPublisher(natsURL, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer p.Close()

	err = p.PublishSummary(context.Background(), &SummaryEvent{Wallet: "integration", ComputedAt: time.Now()})
	assert.NoError(t, err)
}
