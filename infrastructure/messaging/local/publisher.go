// Package local provides an in-process event publisher for deployments
// without an event bus.
package local

import (
	"context"
	"sync"

	"branchpost/domain/events"

	"go.uber.org/zap"
)

// Handler receives published events
type Handler func(ctx context.Context, event events.DomainEvent)

// Publisher logs every event and fans it out to subscribed handlers
// synchronously.
type Publisher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *zap.Logger
}

// NewPublisher creates a local publisher
func NewPublisher(logger *zap.Logger) *Publisher {
	return &Publisher{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event type. "*" receives everything.
func (p *Publisher) Subscribe(eventType string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[eventType] = append(p.handlers[eventType], h)
}

// Publish implements ports.EventPublisher
func (p *Publisher) Publish(ctx context.Context, event events.DomainEvent) error {
	p.logger.Debug("Domain event",
		zap.String("event_type", event.GetEventType()),
		zap.String("aggregate_id", event.GetAggregateID()),
	)

	p.mu.RLock()
	handlers := append(append([]Handler(nil), p.handlers[event.GetEventType()]...), p.handlers["*"]...)
	p.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, event)
	}
	return nil
}

// PublishBatch implements ports.EventPublisher
func (p *Publisher) PublishBatch(ctx context.Context, domainEvents []events.DomainEvent) error {
	for _, e := range domainEvents {
		if err := p.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
