package domain

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ExecutionStatus represents the lifecycle status of a phase or task.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
)

// IsTerminal reports whether the status is terminal for a non-retried unit.
func (s ExecutionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Well-known task tags understood by the orchestrator.
const (
	TagParallel     = "parallel"
	TagCriticalPath = "critical_path"
)

// Task is the smallest schedulable unit of work within a phase.
//
// Task bodies are opaque: the orchestrator only schedules them and records
// their outcome. Dependencies reference task ids within the same phase.
type Task struct {
	ID           string          `json:"id" validate:"required"`
	Name         string          `json:"name" validate:"required"`
	Dependencies []string        `json:"dependencies,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	Weight       float64         `json:"weight,omitempty" validate:"gte=0"`
	Status       ExecutionStatus `json:"status,omitempty"`
}

// HasTag reports whether the task carries the given tag.
func (t *Task) HasTag(tag string) bool {
	for _, candidate := range t.Tags {
		if candidate == tag {
			return true
		}
	}
	return false
}

// EffectiveWeight returns the task's duration estimate, defaulting to one
// unit when the planner provided none.
func (t *Task) EffectiveWeight() float64 {
	if t.Weight <= 0 {
		return 1.0
	}
	return t.Weight
}

// Phase is a named unit of project work containing ordered tasks and
// declared dependencies on other phases.
type Phase struct {
	ID           string          `json:"id" validate:"required"`
	Name         string          `json:"name" validate:"required"`
	Dependencies []string        `json:"dependencies,omitempty"`
	Tasks        []Task          `json:"tasks,omitempty" validate:"dive"`
	Status       ExecutionStatus `json:"status,omitempty"`
	Complexity   float64         `json:"complexity,omitempty" validate:"gte=0"`
	Priority     int             `json:"priority,omitempty"`
}

// EffectiveWeight returns the phase's duration estimate: the sum of its
// task estimates, or one unit for an empty phase.
func (p *Phase) EffectiveWeight() float64 {
	if len(p.Tasks) == 0 {
		return 1.0
	}
	total := 0.0
	for i := range p.Tasks {
		total += p.Tasks[i].EffectiveWeight()
	}
	return total
}

// Task returns the task with the given id, if present.
func (p *Phase) Task(id string) (*Task, bool) {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i], true
		}
	}
	return nil, false
}

// Project is the planner's output: an ordered list of phases to execute.
type Project struct {
	ID     string  `json:"id" validate:"required"`
	Name   string  `json:"name" validate:"required"`
	Phases []Phase `json:"phases" validate:"required,min=1,dive"`
}

// Phase returns the phase with the given id, if present.
func (p *Project) Phase(id string) (*Phase, bool) {
	for i := range p.Phases {
		if p.Phases[i].ID == id {
			return &p.Phases[i], true
		}
	}
	return nil, false
}

var validate = validator.New()

// ValidateProject checks the structural soundness of planner input: required
// fields via struct tags, plus uniqueness of phase ids and of task ids within
// each phase. Dependency references are checked by the resolver.
func ValidateProject(p *Project) error {
	if p == nil {
		return &Error{Kind: ErrValidation, Msg: "project is nil"}
	}
	if err := validate.Struct(p); err != nil {
		var msgs []string
		for _, fe := range err.(validator.ValidationErrors) {
			msgs = append(msgs, fmt.Sprintf("field %s failed rule %q", fe.StructNamespace(), fe.Tag()))
		}
		return &Error{Kind: ErrValidation, Msg: strings.Join(msgs, "; ")}
	}

	seenPhases := make(map[string]struct{}, len(p.Phases))
	for i := range p.Phases {
		phase := &p.Phases[i]
		if _, dup := seenPhases[phase.ID]; dup {
			return &Error{Kind: ErrValidation, PhaseID: phase.ID, Msg: "duplicate phase id"}
		}
		seenPhases[phase.ID] = struct{}{}

		seenTasks := make(map[string]struct{}, len(phase.Tasks))
		for j := range phase.Tasks {
			task := &phase.Tasks[j]
			if _, dup := seenTasks[task.ID]; dup {
				return &Error{Kind: ErrValidation, PhaseID: phase.ID, TaskID: task.ID, Msg: "duplicate task id"}
			}
			seenTasks[task.ID] = struct{}{}
		}
	}
	return nil
}
