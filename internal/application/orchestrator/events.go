package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/phasekit/phaserun/pkg/domain"
)

// EventsTopic is the bus topic all orchestration events are published on.
const EventsTopic = "orchestration.events"

// Handler consumes a single orchestration event. Handlers registered for the
// same type run in registration order; a failing or panicking handler is
// logged and never disturbs the run or the other handlers.
type Handler func(event domain.Event) error

// On registers a handler for one of the seven lifecycle event types.
func (o *Orchestrator) On(eventType domain.EventType, handler Handler) error {
	if !eventType.Valid() {
		return domain.Errorf(domain.ErrValidation, "unknown event type %q", eventType)
	}
	o.mu.Lock()
	o.handlers[eventType] = append(o.handlers[eventType], handler)
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) newEvent(t domain.EventType, state *domain.OrchestrationState) domain.Event {
	return domain.Event{
		ID:          uuid.New().String(),
		Type:        t,
		ExecutionID: state.ExecutionID,
		ProjectID:   state.ProjectID,
		Timestamp:   time.Now(),
	}
}

// emit dispatches the event to registered handlers in order, then publishes
// it on the bus.
func (o *Orchestrator) emit(ctx context.Context, event domain.Event) {
	o.mu.RLock()
	handlers := append([]Handler(nil), o.handlers[event.Type]...)
	o.mu.RUnlock()

	for _, handler := range handlers {
		o.invoke(event, handler)
	}

	if o.eventBus != nil {
		if err := o.eventBus.Publish(ctx, EventsTopic, event); err != nil {
			o.logger.Error("failed to publish event",
				zap.String("event_type", string(event.Type)),
				zap.String("execution_id", event.ExecutionID),
				zap.Error(err))
		}
	}
}

func (o *Orchestrator) invoke(event domain.Event, handler Handler) {
	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error("event handler panicked",
				zap.String("event_type", string(event.Type)),
				zap.Any("panic", rec))
		}
	}()
	if err := handler(event); err != nil {
		o.logger.Error("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("execution_id", event.ExecutionID),
			zap.Error(err))
	}
}
