package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/shoalmedia/shoal/pkg/events"
)

// Publisher forwards domain events to NATS JetStream
type Publisher struct {
	client *Client
	logger *zap.Logger
}

// NewPublisher creates a new NATS event publisher
func NewPublisher(client *Client, logger *zap.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger.Named("publisher"),
	}
}

// Handle implements events.Handler so the publisher can be subscribed
// to an in-process bus.
func (p *Publisher) Handle(ctx context.Context, event events.Event) error {
	return p.Publish(ctx, event)
}

// Publish publishes a domain event to JetStream
func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	envelope := EventEnvelope{
		AggregateID: event.AggregateID().String(),
		EventType:   event.EventType(),
		OccurredAt:  event.OccurredAt(),
		Data:        event,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// Deduplication ID derived from the aggregate, the event type and
	// the event timestamp.
	msgID := fmt.Sprintf("%s-%s-%d", envelope.AggregateID, envelope.EventType, event.OccurredAt().UnixNano())

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ack, err := p.client.JetStream().Publish(pubCtx, event.EventType(), data, jetstream.WithMsgID(msgID))
	if err != nil {
		p.logger.Error("failed to publish event",
			zap.Error(err),
			zap.String("event_type", event.EventType()),
			zap.String("aggregate_id", envelope.AggregateID),
		)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published",
		zap.String("event_type", event.EventType()),
		zap.String("aggregate_id", envelope.AggregateID),
		zap.Uint64("sequence", ack.Sequence),
		zap.String("stream", ack.Stream),
	)

	return nil
}

// EventEnvelope wraps an event with metadata for transport
type EventEnvelope struct {
	AggregateID string       `json:"aggregate_id"`
	EventType   string       `json:"event_type"`
	OccurredAt  time.Time    `json:"occurred_at"`
	Data        events.Event `json:"data"`
}
