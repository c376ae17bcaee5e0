package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/chipin/walletops/service/metrics"
)

// Publisher defines the interface for publishing wallet operation events to NATS.
type Publisher interface {
	// PublishTransferred publishes a confirmed sponsored transfer.
	// The event is published to the subject "walletops.transferred.{from_owner}".
	PublishTransferred(ctx context.Context, event *TransferredEvent) error

	// PublishReclaimed publishes a single reclamation outcome.
	// The event is published to the subject "walletops.reclaimed.{owner}".
	PublishReclaimed(ctx context.Context, event *ReclaimedEvent) error

	// PublishReclaimedBatch publishes the outcomes of a whole sweep.
	PublishReclaimedBatch(ctx context.Context, events []*ReclaimedEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes wallet operation events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	logger  *slog.Logger
	metrics *metrics.Metrics
}

const (
	// StreamName is the name of the JetStream stream for wallet operations.
	StreamName = "WALLETOPS"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "walletops.>"

	// StreamRetention is how long messages are retained (30 days by default).
	StreamRetention = 30 * 24 * time.Hour
)

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists. Metrics may be nil.
func NewPublisher(natsURL string, logger *slog.Logger, m *metrics.Metrics) (*JetStreamPublisher, error) {
	// Connect to NATS
	nc, err := nats.Connect(natsURL,
		nats.Name("walletops-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	// Create JetStream context
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		logger:  logger,
		metrics: m,
	}

	// Ensure stream exists
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

	// Try to get existing stream
	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		// Stream exists, log info
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	// Stream doesn't exist, create it
	p.logger.Info("creating JetStream stream", "stream", StreamName)

	streamConfig := jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Wallet operation events: sponsored transfers and rent reclamations",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	_, err = p.js.CreateStream(ctx, streamConfig)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// publish marshals and publishes one event, recording the outcome.
func (p *JetStreamPublisher) publish(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	start := time.Now()
	_, err = p.js.Publish(ctx, subject, data)
	if p.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// PublishTransferred publishes a confirmed sponsored transfer.
func (p *JetStreamPublisher) PublishTransferred(ctx context.Context, event *TransferredEvent) error {
	subject := fmt.Sprintf("walletops.transferred.%s", event.FromOwner)

	if err := p.publish(ctx, subject, event); err != nil {
		return err
	}

	p.logger.Debug("published transfer event",
		"subject", subject,
		"signature", event.Signature,
		"from", event.FromOwner,
		"to", event.ToOwner,
	)

	return nil
}

// PublishReclaimed publishes a single reclamation outcome.
func (p *JetStreamPublisher) PublishReclaimed(ctx context.Context, event *ReclaimedEvent) error {
	subject := fmt.Sprintf("walletops.reclaimed.%s", event.Owner)

	if err := p.publish(ctx, subject, event); err != nil {
		return err
	}

	p.logger.Debug("published reclamation event",
		"subject", subject,
		"owner", event.Owner,
		"status", event.Status,
		"lamports_recovered", event.LamportsRecovered,
	)

	return nil
}

// PublishReclaimedBatch publishes the outcomes of a whole sweep.
func (p *JetStreamPublisher) PublishReclaimedBatch(ctx context.Context, events []*ReclaimedEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Publish each event (JetStream handles batching internally)
	for _, event := range events {
		if err := p.PublishReclaimed(ctx, event); err != nil {
			// Log error but continue with other events
			p.logger.Error("failed to publish reclamation in batch",
				"owner", event.Owner,
				"status", event.Status,
				"error", err,
			)
			// Don't fail the entire batch on one error
			continue
		}
	}

	p.logger.Debug("published reclamation batch",
		"count", len(events),
	)

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
