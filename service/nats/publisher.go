package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/nootey/walko/service/metrics"
)

// Publisher defines the interface for publishing analysis summaries to NATS.
type Publisher interface {
	// PublishSummary publishes a single summary event to JetStream.
	// The event is published to the subject "pnl.{wallet}".
	PublishSummary(ctx context.Context, event *SummaryEvent) error

	// PublishSummaryBatch publishes multiple summary events.
	PublishSummaryBatch(ctx context.Context, events []*SummaryEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes summary events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

const (
	// StreamName is the name of the JetStream stream for wallet summaries.
	StreamName = "PNL"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "pnl.*"

	// StreamRetention is how long messages are retained (30 days by default).
	StreamRetention = 30 * 24 * time.Hour
)

// Subject returns the subject a wallet's summaries are published on.
func Subject(wallet string) string {
	return fmt.Sprintf("pnl.%s", wallet)
}

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists. If metrics is nil, no metrics will be recorded.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("walko-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	streamConfig := jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Wallet PnL summaries",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	if _, err := p.js.CreateStream(ctx, streamConfig); err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishSummary publishes a single summary event.
func (p *JetStreamPublisher) PublishSummary(ctx context.Context, event *SummaryEvent) (err error) {
	subject := Subject(event.Wallet)
	start := time.Now()
	defer func() {
		if p.metrics != nil {
			status := "success"
			if err != nil {
				status = "error"
			}
			p.metrics.RecordNATSPublish(StreamSubjects, status, time.Since(start).Seconds())
		}
	}()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal summary event: %w", err)
	}

	if _, err = p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish summary: %w", err)
	}

	p.logger.DebugContext(ctx, "published summary event",
		"subject", subject,
		"wallet", event.Wallet,
		"unique_tokens", event.UniqueTokens,
	)

	return nil
}

// PublishSummaryBatch publishes multiple summary events. A failed event is logged
// and does not stop the rest of the batch.
func (p *JetStreamPublisher) PublishSummaryBatch(ctx context.Context, events []*SummaryEvent) error {
	if len(events) == 0 {
		return nil
	}

	for _, event := range events {
		if err := p.PublishSummary(ctx, event); err != nil {
			p.logger.ErrorContext(ctx, "failed to publish summary in batch",
				"wallet", event.Wallet,
				"error", err,
			)
			continue
		}
	}

	p.logger.DebugContext(ctx, "published summary batch", "count", len(events))
	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
