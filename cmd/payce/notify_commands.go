package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itchyny/gojq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"

	"github.com/payce-finance/payce/service/notify"
)

// subscribeCommand streams notification messages from JetStream.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:  "subscribe",
		Usage: "Stream notification messages as they are published",
		Description: `Subscribe to the notification stream on NATS JetStream.

Messages are published to subjects of the form notifications.{template},
where template is one of business, client, sent, received. Without a
template argument all notifications are streamed.

Messages can be filtered with jq expressions evaluated against the full
message; only messages for which every filter is truthy are printed:

  payce notifications subscribe --jq '.payload.currency == "USDC"'
  payce notifications subscribe received --jq '.payload.amount == "100.50"'`,
		ArgsUsage: "[template]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Usage:   "jq filter expression that must evaluate to true (repeatable, all must match)",
				Aliases: []string{"jq"},
			},
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "payce-cli",
			},
		},
		Action: func(c *cli.Context) error {
			subject := notify.StreamSubjects
			if c.NArg() > 0 {
				subject = "notifications." + c.Args().First()
			}

			filters, err := compileJQFilters(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			return streamNotifications(
				subject,
				c.String("nats-url"),
				filters,
				c.Bool("durable"),
				c.String("consumer-name"),
				c.Bool("json"),
			)
		},
	}
}

// compileJQFilters parses and compiles jq filter expressions.
func compileJQFilters(exprs []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(exprs))
	for i, expr := range exprs {
		query, err := gojq.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
		}
	}
	return compiled, nil
}

// matchesFilters reports whether every jq filter is truthy for the value.
func matchesFilters(filters []*gojq.Code, value any) bool {
	for _, code := range filters {
		iter := code.Run(value)
		v, ok := iter.Next()
		if !ok {
			return false
		}
		if _, isErr := v.(error); isErr {
			return false
		}
		if !isTruthy(v) {
			return false
		}
	}
	return true
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

// streamNotifications connects to NATS and streams notification messages.
func streamNotifications(subject, natsURL string, filters []*gojq.Code, durable bool, consumerName string, jsonOutput bool) error {
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
		fmt.Printf("Subscribing to: %s\n", subject)
		fmt.Printf("   NATS: %s\n", natsURL)
		if durable {
			fmt.Printf("   Consumer: %s (durable)\n", consumerName)
		}
		fmt.Printf("\nWaiting for notifications... (Ctrl-C to exit)\n\n")
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if durable {
		consumerConfig.Durable = consumerName
		consumerConfig.Name = consumerName
	}

	cons, err := js.CreateOrUpdateConsumer(context.Background(), notify.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	msgChan := make(chan jetstream.Msg, 10)
	go func() {
		_, _ = cons.Consume(func(msg jetstream.Msg) {
			msgChan <- msg
		})
	}()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			var message notify.Message
			if err := json.Unmarshal(msg.Data(), &message); err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing message: %v\n", err)
				msg.Ack()
				continue
			}

			// jq filters run against the generic JSON form so field
			// access matches the wire names.
			if len(filters) > 0 {
				var generic any
				if err := json.Unmarshal(msg.Data(), &generic); err != nil || !matchesFilters(filters, generic) {
					msg.Ack()
					continue
				}
			}

			count++
			if jsonOutput {
				data, _ := json.Marshal(message)
				fmt.Println(string(data))
			} else {
				fmt.Printf("Notification #%d (%s)\n", count, message.Template)
				fmt.Printf("   To: %s\n", message.To)
				fmt.Printf("   Transaction: %s\n", message.Payload.TransactionID)
				fmt.Printf("   Amount: %s %s (%s)\n", message.Payload.Amount, message.Payload.Currency, message.Payload.Network)
				if message.Payload.Counterparty != "" {
					fmt.Printf("   Counterparty: %s\n", message.Payload.Counterparty)
				}
				fmt.Printf("   Published: %s\n\n", message.PublishedAt.Format(time.RFC3339))
			}
			msg.Ack()

		case <-sigChan:
			if !jsonOutput {
				fmt.Printf("\nReceived %d notification(s)\n", count)
			}
			return nil
		}
	}
}
