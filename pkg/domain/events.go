package domain

import "time"

// EventType enumerates the closed set of orchestration lifecycle events.
type EventType string

const (
	EventPhaseStart    EventType = "phase_start"
	EventPhaseComplete EventType = "phase_complete"
	EventPhaseError    EventType = "phase_error"
	EventTaskStart     EventType = "task_start"
	EventTaskComplete  EventType = "task_complete"
	EventCheckpoint    EventType = "checkpoint"
	EventRecovery      EventType = "recovery"
)

// EventTypes lists every event type a handler can be registered for.
func EventTypes() []EventType {
	return []EventType{
		EventPhaseStart,
		EventPhaseComplete,
		EventPhaseError,
		EventTaskStart,
		EventTaskComplete,
		EventCheckpoint,
		EventRecovery,
	}
}

// Valid reports whether t is one of the seven known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventPhaseStart, EventPhaseComplete, EventPhaseError,
		EventTaskStart, EventTaskComplete, EventCheckpoint, EventRecovery:
		return true
	}
	return false
}

// Event is the typed payload delivered to registered handlers. Only the
// fields relevant to the event type are populated; State is always a
// read-only snapshot.
type Event struct {
	ID           string              `json:"id"`
	Type         EventType           `json:"type"`
	ExecutionID  string              `json:"execution_id"`
	ProjectID    string              `json:"project_id"`
	Timestamp    time.Time           `json:"timestamp"`
	PhaseID      string              `json:"phase_id,omitempty"`
	TaskID       string              `json:"task_id,omitempty"`
	CheckpointID string              `json:"checkpoint_id,omitempty"`
	PhaseResult  *PhaseResult        `json:"phase_result,omitempty"`
	TaskResult   *TaskResult         `json:"task_result,omitempty"`
	Error        string              `json:"error,omitempty"`
	State        *OrchestrationState `json:"state,omitempty"`
}
