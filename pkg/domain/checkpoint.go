package domain

import "time"

// CheckpointSchemaVersion is the current on-disk checkpoint schema. Bumped
// whenever CheckpointData changes incompatibly. Whether older versions are
// refused or decoded best-effort is a configuration choice.
const CheckpointSchemaVersion = 1

// Checkpoint tags applied by the scoped convenience wrappers.
const (
	CheckpointTagPhase = "phase"
	CheckpointTagTask  = "task"
)

// CheckpointMetadata describes a stored checkpoint. It lives in the on-disk
// index until the checkpoint is deleted by retention or explicit request.
type CheckpointMetadata struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	ExecutionID      string    `json:"execution_id"`
	Timestamp        time.Time `json:"timestamp"`
	PhaseID          string    `json:"phase_id,omitempty"`
	TaskID           string    `json:"task_id,omitempty"`
	SizeBytes        int64     `json:"size_bytes"`
	CompressionRatio float64   `json:"compression_ratio"`
	Tags             []string  `json:"tags,omitempty"`
}

// HasTag reports whether the checkpoint carries the given tag.
func (m *CheckpointMetadata) HasTag(tag string) bool {
	for _, candidate := range m.Tags {
		if candidate == tag {
			return true
		}
	}
	return false
}

// CheckpointData is the full persisted snapshot: metadata plus the
// orchestration state and any collected artifacts. Written once, read-only
// thereafter.
type CheckpointData struct {
	Version   int                 `json:"version"`
	Metadata  CheckpointMetadata  `json:"metadata"`
	State     *OrchestrationState `json:"state"`
	Artifacts map[string]any      `json:"artifacts,omitempty"`
	Context   map[string]any      `json:"context,omitempty"`
}
