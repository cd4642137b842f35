package domain

import "time"

// TaskResult records the outcome of a single task. Immutable once created.
type TaskResult struct {
	TaskID      string          `json:"task_id"`
	Status      ExecutionStatus `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Outputs     map[string]any  `json:"outputs,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Duration returns the task's wall-clock execution time.
func (r *TaskResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// PhaseResult records the outcome of a single phase, including per-task
// results and the number of attempts consumed by the retry path.
type PhaseResult struct {
	PhaseID     string                 `json:"phase_id"`
	Status      ExecutionStatus        `json:"status"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at"`
	Attempts    int                    `json:"attempts"`
	TaskResults map[string]*TaskResult `json:"task_results,omitempty"`
	Outputs     map[string]any         `json:"outputs,omitempty"`
	Error       string                 `json:"error,omitempty"`
	ErrorKind   string                 `json:"error_kind,omitempty"`
}

// Duration returns the phase's wall-clock execution time.
func (r *PhaseResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// OrchestrationState is the mutable state of a single run. It is mutated
// exclusively by the orchestrating goroutine; everything else sees snapshots.
type OrchestrationState struct {
	ExecutionID     string                  `json:"execution_id"`
	ProjectID       string                  `json:"project_id"`
	Project         *Project                `json:"project,omitempty"`
	StartTime       time.Time               `json:"start_time"`
	CurrentPhase    string                  `json:"current_phase,omitempty"`
	CompletedPhases []string                `json:"completed_phases"`
	FailedPhases    []string                `json:"failed_phases"`
	PhaseResults    map[string]*PhaseResult `json:"phase_results"`
	Errors          []string                `json:"errors,omitempty"`
	Context         map[string]any          `json:"context,omitempty"`
}

// NewOrchestrationState creates the state for a fresh run.
func NewOrchestrationState(executionID string, project *Project, context map[string]any) *OrchestrationState {
	return &OrchestrationState{
		ExecutionID:     executionID,
		ProjectID:       project.ID,
		Project:         project,
		StartTime:       time.Now(),
		CompletedPhases: []string{},
		FailedPhases:    []string{},
		PhaseResults:    make(map[string]*PhaseResult),
		Context:         context,
	}
}

// IsPhaseCompleted reports whether the phase already completed in this run
// (or a restored previous run).
func (s *OrchestrationState) IsPhaseCompleted(phaseID string) bool {
	for _, id := range s.CompletedPhases {
		if id == phaseID {
			return true
		}
	}
	return false
}

// Snapshot returns a copy safe to hand to event handlers or mutate
// independently. Phase results are immutable after creation, so sharing their
// pointers is safe; the slices and maps that get mutated are copied.
func (s *OrchestrationState) Snapshot() *OrchestrationState {
	cp := *s
	cp.CompletedPhases = append([]string(nil), s.CompletedPhases...)
	cp.FailedPhases = append([]string(nil), s.FailedPhases...)
	cp.Errors = append([]string(nil), s.Errors...)
	cp.PhaseResults = make(map[string]*PhaseResult, len(s.PhaseResults))
	for id, res := range s.PhaseResults {
		cp.PhaseResults[id] = res
	}
	if s.Context != nil {
		cp.Context = make(map[string]any, len(s.Context))
		for k, v := range s.Context {
			cp.Context[k] = v
		}
	}
	return &cp
}

// RunStatus is the aggregate outcome of a run.
type RunStatus string

const (
	// RunCompleted means every phase completed.
	RunCompleted RunStatus = "completed"
	// RunPartial means some phases failed after exhausting retries while
	// others completed.
	RunPartial RunStatus = "partial"
	// RunIncomplete means the run got stuck before completion, typically an
	// unresolved dependency defect.
	RunIncomplete RunStatus = "incomplete"
)

// PhaseTotals summarizes phase counts for the final result.
type PhaseTotals struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// RunResult is returned by the orchestrator once a run finishes. It always
// carries the execution id and phase counts so a failed run can be resumed
// or diagnosed.
type RunResult struct {
	Status       RunStatus               `json:"status"`
	ExecutionID  string                  `json:"execution_id"`
	Duration     time.Duration           `json:"duration"`
	PhaseTotals  PhaseTotals             `json:"phase_totals"`
	PhaseResults map[string]*PhaseResult `json:"phase_results"`
	Errors       []string                `json:"errors,omitempty"`
}
