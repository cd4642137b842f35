// Package memory implements an in-process EventBus.
package memory

import (
	"context"
	"sync"

	"github.com/phasekit/phaserun/pkg/domain"
	"github.com/phasekit/phaserun/pkg/ports"
)

// EventBus implements ports.EventBus with in-process fan-out. Handlers run
// asynchronously so a slow subscriber never blocks the orchestrator.
type EventBus struct {
	subscribers map[string][]ports.EventHandler
	mu          sync.RWMutex
	closed      bool
}

// NewEventBus creates a new in-memory event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]ports.EventHandler),
	}
}

// Publish delivers an event to all subscribers of a topic.
func (e *EventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return domain.Errorf(domain.ErrExecution, "event bus is closed")
	}
	handlers := make([]ports.EventHandler, len(e.subscribers[topic]))
	copy(handlers, e.subscribers[topic])
	e.mu.RUnlock()

	for _, handler := range handlers {
		go func(h ports.EventHandler) {
			// Subscriber errors are the subscriber's problem.
			_ = h(ctx, event)
		}(handler)
	}

	return nil
}

// Subscribe registers a handler for a topic until the context is cancelled.
func (e *EventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return domain.Errorf(domain.ErrExecution, "event bus is closed")
	}
	e.subscribers[topic] = append(e.subscribers[topic], handler)
	return nil
}

// Close closes the event bus and drops all subscribers.
func (e *EventBus) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	e.subscribers = make(map[string][]ports.EventHandler)
	return nil
}
