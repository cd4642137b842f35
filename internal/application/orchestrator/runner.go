package orchestrator

import (
	"context"

	"github.com/phasekit/phaserun/pkg/domain"
)

// TaskRunner executes a single opaque task body. The orchestrator decides
// when a task runs; what it does is entirely the runner's business.
//
// The context carries the phase's wall-clock budget: a runner must return
// promptly once the context is cancelled.
type TaskRunner interface {
	RunTask(ctx context.Context, phase *domain.Phase, task *domain.Task) (map[string]any, error)
}

// TaskRunnerFunc adapts a function to the TaskRunner interface.
type TaskRunnerFunc func(ctx context.Context, phase *domain.Phase, task *domain.Task) (map[string]any, error)

// RunTask implements TaskRunner.
func (f TaskRunnerFunc) RunTask(ctx context.Context, phase *domain.Phase, task *domain.Task) (map[string]any, error) {
	return f(ctx, phase, task)
}

// NopRunner succeeds immediately without doing any work. It is the default
// when the embedding system supplies no runner, useful for plan dry-runs.
func NopRunner() TaskRunner {
	return TaskRunnerFunc(func(ctx context.Context, phase *domain.Phase, task *domain.Task) (map[string]any, error) {
		return nil, ctx.Err()
	})
}
