package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	natspkg "github.com/nootey/walko/service/nats"
	"github.com/urfave/cli/v2"
)

func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Stream PnL summaries as they are published",
		ArgsUsage: "[WALLET_ADDRESS]",
		Description: `Subscribe to the PNL JetStream stream and print each summary.
Without a wallet every summary is printed.

Examples:
  walko nats subscribe
  walko nats subscribe 7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU
  walko nats subscribe --durable --consumer-name dashboard`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:  "durable",
				Usage: "Use a durable consumer that resumes where it left off",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Name of the durable consumer",
				Value: "walko-cli",
			},
		},
		Action: func(c *cli.Context) error {
			subject := natspkg.StreamSubjects
			if c.NArg() > 0 {
				subject = natspkg.Subject(c.Args().First())
			}
			return streamSummaries(c.Context, c.String("nats-url"), subject, c.Bool("durable"), c.String("consumer-name"), wantsJSON(c))
		},
	}
}

// streamSummaries connects to NATS and prints summary events until interrupted.
func streamSummaries(ctx context.Context, natsURL, subject string, durable bool, consumerName string, jsonOutput bool) error {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if !jsonOutput {
		fmt.Printf("📡 Subscribing to: %s\n", subject)
		fmt.Printf("   NATS: %s\n", natsURL)
		if durable {
			fmt.Printf("   Consumer: %s (durable)\n", consumerName)
		}
		fmt.Printf("\nWaiting for summaries... (Ctrl-C to exit)\n\n")
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if durable {
		consumerConfig.Durable = consumerName
		consumerConfig.Name = consumerName
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	msgChan := make(chan jetstream.Msg, 10)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		msgChan <- msg
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer cc.Stop()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			var event natspkg.SummaryEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
				msg.Ack()
				continue
			}
			count++

			if jsonOutput {
				data, _ := json.Marshal(event)
				fmt.Println(string(data))
			} else {
				fmt.Printf("─────────────────────────────────────────────────────\n")
				fmt.Printf("Summary #%d\n", count)
				fmt.Printf("─────────────────────────────────────────────────────\n")
				fmt.Printf("Wallet:        %s\n", event.Wallet)
				if event.Scope != "" {
					fmt.Printf("Scope:         %s\n", event.Scope)
				}
				fmt.Printf("Unique tokens: %d\n", event.UniqueTokens)
				fmt.Printf("Win rate:      %.2f%%\n", event.WinRate*100)
				fmt.Printf("Value at txn:  $%.2f\n", event.ValueAtTransaction)
				fmt.Printf("Current value: $%.2f\n", event.CurrentValue)
				if len(event.Mints) > 0 {
					fmt.Printf("New mints:     %v\n", event.Mints)
				}
				fmt.Printf("Computed:      %s\n\n", event.ComputedAt.Format(time.RFC3339))
			}
			msg.Ack()

		case <-sigChan:
			if !jsonOutput {
				fmt.Printf("\n✅ Received %d summaries\n", count)
			}
			return nil

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
