package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	natspkg "github.com/nootey/walko/service/nats"
)

// SSEPublisher relays PnL summaries from JetStream to Server-Sent Events clients.
type SSEPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSSEPublisher creates a new SSE publisher that subscribes to NATS internally.
func NewSSEPublisher(natsURL string, logger *slog.Logger) (*SSEPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("walko-sse-publisher"),
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

	logger.Info("SSE publisher initialized", "nats_url", natsURL)

	return &SSEPublisher{
		nc:     nc,
		js:     js,
		logger: logger,
	}, nil
}

// Close closes the NATS connection.
func (p *SSEPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("SSE publisher closed")
	}
	return nil
}

// sseSubject returns the JetStream filter for a stream request. An empty address
// means every wallet.
func sseSubject(address string) string {
	if address == "" {
		return natspkg.StreamSubjects
	}
	return natspkg.Subject(address)
}

// writeSSE writes one event frame and flushes it.
func writeSSE(w http.ResponseWriter, event string, data []byte) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// handleStreamSummaries handles SSE streaming of PnL summaries.
// If the address path parameter is empty, streams all wallets.
func handleStreamSummaries(publisher *SSEPublisher, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if address != "" {
			if err := validateAddress(address); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		subject := sseSubject(address)
		ctx := r.Context()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}

		logger.DebugContext(ctx, "SSE client connected",
			"subject", subject,
			"remote_addr", r.RemoteAddr,
		)

		// Ephemeral consumer, removed by the server once this connection goes away.
		cons, err := publisher.js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, jetstream.ConsumerConfig{
			FilterSubject: subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			DeliverPolicy: jetstream.DeliverNewPolicy,
		})
		if err != nil {
			logger.ErrorContext(ctx, "failed to create consumer",
				"subject", subject,
				"error", err,
			)
			writeSSE(w, "error", []byte(`{"error": "failed to subscribe"}`))
			return
		}

		msgChan := make(chan jetstream.Msg, 10)
		cc, err := cons.Consume(func(msg jetstream.Msg) {
			select {
			case msgChan <- msg:
			case <-ctx.Done():
			}
		})
		if err != nil {
			logger.ErrorContext(ctx, "failed to start consuming messages", "error", err)
			writeSSE(w, "error", []byte(`{"error": "failed to subscribe"}`))
			return
		}
		defer cc.Stop()

		connected, _ := json.Marshal(map[string]string{"subject": subject})
		writeSSE(w, "connected", connected)

		keepalive := time.NewTicker(10 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				if flusher, ok := w.(http.Flusher); ok {
					flusher.Flush()
				}

			case msg := <-msgChan:
				var event natspkg.SummaryEvent
				if err := json.Unmarshal(msg.Data(), &event); err != nil {
					logger.WarnContext(ctx, "failed to unmarshal event", "error", err)
					msg.Ack()
					continue
				}

				data, err := json.Marshal(event)
				if err != nil {
					logger.WarnContext(ctx, "failed to marshal event", "error", err)
					msg.Ack()
					continue
				}
				writeSSE(w, "summary", data)
				msg.Ack()

				logger.DebugContext(ctx, "sent summary event", "wallet", event.Wallet)

			case <-ctx.Done():
				logger.DebugContext(ctx, "SSE client disconnected",
					"subject", subject,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}
