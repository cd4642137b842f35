package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match them with errors.Is.
var (
	// ErrValidation marks a phase or task declaring a dependency on an
	// unknown id, or otherwise malformed planner input.
	ErrValidation = errors.New("validation error")
	// ErrDependency marks a cycle that cannot be safely broken or a phase
	// left unreachable by the scheduler.
	ErrDependency = errors.New("dependency error")
	// ErrExecution marks a phase or task failure after retries.
	ErrExecution = errors.New("execution error")
	// ErrTimeout marks a phase exceeding its wall-clock budget.
	ErrTimeout = errors.New("timeout error")
	// ErrCheckpoint marks a checkpoint serialization, deserialization or
	// integrity failure.
	ErrCheckpoint = errors.New("checkpoint error")
	// ErrRecovery marks a missing or corrupt checkpoint on resume.
	ErrRecovery = errors.New("recovery error")
)

// Error annotates an error kind with the offending phase/task ids so a
// failure can be diagnosed without re-running from scratch.
type Error struct {
	Kind    error
	PhaseID string
	TaskID  string
	Msg     string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Msg != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Msg)
	}
	switch {
	case e.PhaseID != "" && e.TaskID != "":
		return fmt.Sprintf("%s (phase %s, task %s)", msg, e.PhaseID, e.TaskID)
	case e.PhaseID != "":
		return fmt.Sprintf("%s (phase %s)", msg, e.PhaseID)
	case e.TaskID != "":
		return fmt.Sprintf("%s (task %s)", msg, e.TaskID)
	default:
		return msg
	}
}

func (e *Error) Unwrap() error { return e.Kind }

// Errorf builds a domain error of the given kind with a formatted message.
func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
