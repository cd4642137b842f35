// Package ports declares the interfaces between the scheduling core and its
// adapters: live-state storage, the event bus and metrics collection.
// Implementations live under pkg/adapters.
package ports

import (
	"context"
	"time"

	"github.com/phasekit/phaserun/pkg/domain"
)

// EventHandler consumes a single orchestration event.
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus fans orchestration events out to external consumers (websocket
// streams, redis streams). Handler errors are the subscriber's problem and
// never reach the orchestrator.
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

// StateStorage mirrors the live OrchestrationState of ongoing and recent
// runs so the API layer can answer status queries without touching the
// orchestrator's goroutine.
type StateStorage interface {
	SaveState(ctx context.Context, state *domain.OrchestrationState) error
	GetState(ctx context.Context, executionID string) (*domain.OrchestrationState, error)
	ListStates(ctx context.Context) ([]*domain.OrchestrationState, error)
	DeleteState(ctx context.Context, executionID string) error
}

// MetricsCollector records orchestration metrics.
type MetricsCollector interface {
	RecordRunStarted()
	RecordRunCompleted(status string, duration time.Duration)
	RecordPhaseExecuted(status string, duration time.Duration)
	RecordPhaseRetried()
	RecordTaskExecuted(status string, duration time.Duration)
	RecordCheckpointWritten(sizeBytes int64, ratio float64)
	RecordCheckpointRestored(cacheHit bool)
	SetActivePhases(count int)
	SetActiveTasks(count int)
	SetWorkerPoolStatus(idle, busy, stopped int)
}
