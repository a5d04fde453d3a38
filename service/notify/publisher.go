// Package notify publishes payment and invoice notifications to NATS
// JetStream. Downstream consumers render the templates and deliver
// email; this service only guarantees the message reaches the stream.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/payce-finance/payce/service/metrics"
)

// Notifier delivers notification messages.
type Notifier interface {
	// Send publishes one notification. Errors are for the caller to
	// log; payment flows must never fail on a notification error.
	Send(ctx context.Context, msg *Message) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamNotifier publishes notifications to NATS JetStream.
type JetStreamNotifier struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	logger  *slog.Logger
	metrics *metrics.Metrics
}

const (
	// StreamName is the name of the JetStream stream for notifications.
	StreamName = "NOTIFICATIONS"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "notifications.*"

	// StreamRetention is how long messages are retained.
	StreamRetention = 30 * 24 * time.Hour
)

// NewNotifier creates a new JetStream notifier.
// It connects to NATS and ensures the stream exists. If m is nil, no
// metrics are recorded.
func NewNotifier(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamNotifier, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("payce-notifier"),
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

	notifier := &JetStreamNotifier{
		nc:      nc,
		js:      js,
		logger:  logger,
		metrics: m,
	}

	if err := notifier.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS notifier initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return notifier, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (n *JetStreamNotifier) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := n.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			n.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	n.logger.Info("creating JetStream stream", "stream", StreamName)

	streamConfig := jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Payment and invoice notifications",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	_, err = n.js.CreateStream(ctx, streamConfig)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	n.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// Send publishes one notification to the subject
// "notifications.{template}".
func (n *JetStreamNotifier) Send(ctx context.Context, msg *Message) error {
	if msg.PublishedAt.IsZero() {
		msg.PublishedAt = time.Now().UTC()
	}
	subject := fmt.Sprintf("notifications.%s", msg.Template)

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	start := time.Now()
	_, err = n.js.Publish(ctx, subject, data)
	if n.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		n.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	n.logger.Debug("published notification",
		"subject", subject,
		"to", msg.To,
		"transaction_id", msg.Payload.TransactionID,
	)

	return nil
}

// Close closes the connection to NATS.
func (n *JetStreamNotifier) Close() error {
	if n.nc != nil {
		n.nc.Close()
		n.logger.Info("NATS notifier closed")
	}
	return nil
}
