package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is a domain event carried across the bus.
type Event interface {
	EventType() string
	AggregateID() uuid.UUID
	OccurredAt() time.Time
}

// Handler consumes events of one type.
type Handler func(ctx context.Context, event Event) error

// InMemoryEventBus is an in-process implementation of publish/subscribe.
// Handler failures are logged and do not stop delivery to other handlers.
type InMemoryEventBus struct {
	handlers map[string][]Handler
	mu       sync.RWMutex
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Publish delivers an event to all subscribers of its type.
func (eb *InMemoryEventBus) Publish(ctx context.Context, event Event) error {
	eb.mu.RLock()
	handlers := eb.handlers[event.EventType()]
	eb.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			eb.logger.Error("event handler failed",
				zap.String("event_type", event.EventType()),
				zap.String("aggregate_id", event.AggregateID().String()),
				zap.Error(err))
		}
	}

	return nil
}

// PublishAsync delivers an event on a new goroutine.
func (eb *InMemoryEventBus) PublishAsync(ctx context.Context, event Event) {
	eb.wg.Add(1)
	go func() {
		defer eb.wg.Done()
		if err := eb.Publish(ctx, event); err != nil {
			eb.logger.Error("async event publish failed",
				zap.String("event_type", event.EventType()),
				zap.Error(err))
		}
	}()
}

// Subscribe registers a handler for a specific event type
func (eb *InMemoryEventBus) Subscribe(eventType string, handler Handler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// Close waits for in-flight async deliveries.
func (eb *InMemoryEventBus) Close() {
	eb.wg.Wait()
}
