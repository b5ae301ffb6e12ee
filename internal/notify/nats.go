// Package notify delivers terminal job reports over NATS.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/datapub/internal/config"
	"git.home.luguber.info/inful/datapub/internal/dataset"
	"git.home.luguber.info/inful/datapub/internal/logfields"
)

// Event kinds published on notification subjects.
const (
	KindDatasetCreated = "dataset_created"
	KindDatasetFailed  = "dataset_failed"
)

// Event is the wire payload for one terminal job report.
type Event struct {
	Kind      string           `json:"kind"`
	Dataset   *dataset.Dataset `json:"dataset,omitempty"`
	Messages  []string         `json:"messages,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// NATSClient publishes job reports to per-channel subjects via JetStream.
type NATSClient struct {
	conn          *nats.Conn
	js            jetstream.JetStream
	subjectPrefix string
}

// NewNATSClient connects to NATS and prepares a JetStream context.
func NewNATSClient(cfg config.NATSConfig) (*NATSClient, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("nats notifications are disabled")
	}

	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "datapub"
	}

	slog.Info("NATS notifier initialized", "url", cfg.URL, "subject_prefix", prefix)

	return &NATSClient{conn: conn, js: js, subjectPrefix: prefix}, nil
}

// DatasetCreated publishes the serialized dataset as a success report.
func (c *NATSClient) DatasetCreated(ctx context.Context, channel string, ds *dataset.Dataset) error {
	return c.publish(ctx, channel, Event{Kind: KindDatasetCreated, Dataset: ds})
}

// DatasetFailed publishes the collected failure messages.
func (c *NATSClient) DatasetFailed(ctx context.Context, channel string, messages []string) error {
	return c.publish(ctx, channel, Event{Kind: KindDatasetFailed, Messages: messages})
}

func (c *NATSClient) publish(ctx context.Context, channel string, event Event) error {
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	subject := c.subjectPrefix + "." + channel
	if _, err := c.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	slog.Debug("Published job report",
		logfields.Channel(channel), slog.String("kind", event.Kind))
	return nil
}

// Close closes the NATS connection.
func (c *NATSClient) Close() error {
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}

// Noop is a notifier that drops every report. Used when NATS is disabled and
// a channel was still supplied.
type Noop struct{}

func (Noop) DatasetCreated(context.Context, string, *dataset.Dataset) error { return nil }
func (Noop) DatasetFailed(context.Context, string, []string) error          { return nil }
