package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/phasekit/phaserun/internal/application/resolver"
	"github.com/phasekit/phaserun/pkg/domain"
)

// launch schedules one phase on its own goroutine, bounded by the phase pool,
// and delivers the result on outcomes.
func (r *run) launch(ctx context.Context, phase *domain.Phase, outcomes chan<- *domain.PhaseResult, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case r.phaseSlots <- struct{}{}:
		case <-ctx.Done():
			outcomes <- cancelledResult(phase.ID, ctx.Err())
			return
		}
		defer func() { <-r.phaseSlots }()
		outcomes <- r.executePhase(ctx, phase)
	}()
}

// launchSync runs one phase on the calling goroutine, still bounded by the
// phase pool. Used by sequential mode.
func (r *run) launchSync(ctx context.Context, phase *domain.Phase) *domain.PhaseResult {
	select {
	case r.phaseSlots <- struct{}{}:
	case <-ctx.Done():
		return cancelledResult(phase.ID, ctx.Err())
	}
	defer func() { <-r.phaseSlots }()
	return r.executePhase(ctx, phase)
}

// executePhase runs the phase's retry loop: attempts are spaced by
// exponential backoff and each attempt gets a fresh timeout budget.
func (r *run) executePhase(ctx context.Context, phase *domain.Phase) *domain.PhaseResult {
	o := r.o
	o.trackPhase(phase.ID, true)
	defer o.trackPhase(phase.ID, false)

	event := o.newEvent(domain.EventPhaseStart, r.state)
	event.PhaseID = phase.ID
	o.emit(ctx, event)

	var result *domain.PhaseResult
	for attempt := 0; ; attempt++ {
		result = r.runPhaseOnce(ctx, phase)
		result.Attempts = attempt + 1
		if result.Status == domain.StatusCompleted {
			return result
		}

		errEvent := o.newEvent(domain.EventPhaseError, r.state)
		errEvent.PhaseID = phase.ID
		errEvent.PhaseResult = result
		errEvent.Error = result.Error
		o.emit(ctx, errEvent)

		if attempt >= o.cfg.RetryAttempts || ctx.Err() != nil {
			return result
		}

		backoff := o.cfg.RetryBackoff << uint(attempt)
		o.logger.Warn("phase failed, retrying",
			zap.String("phase_id", phase.ID),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.String("error", result.Error))
		o.metrics.RecordPhaseRetried()

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return result
		}
	}
}

// runPhaseOnce executes all tasks of the phase under a single timeout budget.
func (r *run) runPhaseOnce(ctx context.Context, phase *domain.Phase) *domain.PhaseResult {
	pctx, cancel := context.WithTimeout(ctx, r.o.cfg.PhaseTimeout)
	defer cancel()

	result := &domain.PhaseResult{
		PhaseID:     phase.ID,
		StartedAt:   time.Now(),
		TaskResults: make(map[string]*domain.TaskResult, len(phase.Tasks)),
	}

	err := r.runTasks(pctx, phase, result)
	result.CompletedAt = time.Now()
	if err != nil {
		result.Status = domain.StatusFailed
		result.Error = err.Error()
		result.ErrorKind = classify(err, pctx)
	} else {
		result.Status = domain.StatusCompleted
	}

	r.o.metrics.RecordPhaseExecuted(string(result.Status), result.Duration())
	return result
}

// runTasks executes the phase's tasks in declared order. Consecutive tasks
// tagged parallel form one batch that runs concurrently under the task pool;
// every other task runs as a batch of one.
func (r *run) runTasks(ctx context.Context, phase *domain.Phase, result *domain.PhaseResult) error {
	for _, batch := range batchTasks(phase.Tasks) {
		if err := r.runBatch(ctx, phase, batch, result); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) runBatch(ctx context.Context, phase *domain.Phase, batch []*domain.Task, result *domain.PhaseResult) error {
	results := make([]*domain.TaskResult, len(batch))
	var wg sync.WaitGroup
	for i, task := range batch {
		wg.Add(1)
		go func(i int, task *domain.Task) {
			defer wg.Done()
			results[i] = r.runTask(ctx, phase, task)
		}(i, task)
	}
	wg.Wait()

	var firstErr error
	for i, tr := range results {
		result.TaskResults[tr.TaskID] = tr
		if tr.Status == domain.StatusFailed && firstErr == nil {
			firstErr = domain.Errorf(domain.ErrExecution, "task %s failed: %s", batch[i].ID, tr.Error)
			if ctx.Err() == context.DeadlineExceeded {
				firstErr = domain.Errorf(domain.ErrTimeout, "phase %s exceeded its timeout at task %s", phase.ID, batch[i].ID)
			}
		}
	}
	return firstErr
}

// runTask executes one task body under the task pool.
func (r *run) runTask(ctx context.Context, phase *domain.Phase, task *domain.Task) *domain.TaskResult {
	o := r.o
	select {
	case r.taskSlots <- struct{}{}:
	case <-ctx.Done():
		return &domain.TaskResult{
			TaskID:      task.ID,
			Status:      domain.StatusFailed,
			StartedAt:   time.Now(),
			CompletedAt: time.Now(),
			Error:       ctx.Err().Error(),
		}
	}
	defer func() { <-r.taskSlots }()

	nodeID := resolver.TaskNodeID(phase.ID, task.ID)
	o.trackTask(nodeID, true)
	defer o.trackTask(nodeID, false)

	startEvent := o.newEvent(domain.EventTaskStart, r.state)
	startEvent.PhaseID = phase.ID
	startEvent.TaskID = task.ID
	o.emit(ctx, startEvent)

	result := &domain.TaskResult{
		TaskID:    task.ID,
		StartedAt: time.Now(),
	}
	outputs, err := o.runner.RunTask(ctx, phase, task)
	result.CompletedAt = time.Now()
	result.Outputs = outputs
	if err != nil {
		result.Status = domain.StatusFailed
		result.Error = err.Error()
	} else {
		result.Status = domain.StatusCompleted
	}

	o.metrics.RecordTaskExecuted(string(result.Status), result.Duration())

	doneEvent := o.newEvent(domain.EventTaskComplete, r.state)
	doneEvent.PhaseID = phase.ID
	doneEvent.TaskID = task.ID
	doneEvent.TaskResult = result
	doneEvent.Error = result.Error
	o.emit(ctx, doneEvent)
	return result
}

// batchTasks groups a phase's tasks for execution: consecutive parallel-tagged
// tasks share a batch, everything else runs alone.
func batchTasks(tasks []domain.Task) [][]*domain.Task {
	var batches [][]*domain.Task
	var parallel []*domain.Task
	flush := func() {
		if len(parallel) > 0 {
			batches = append(batches, parallel)
			parallel = nil
		}
	}
	for i := range tasks {
		task := &tasks[i]
		if task.HasTag(domain.TagParallel) {
			parallel = append(parallel, task)
			continue
		}
		flush()
		batches = append(batches, []*domain.Task{task})
	}
	flush()
	return batches
}

func cancelledResult(phaseID string, cause error) *domain.PhaseResult {
	now := time.Now()
	return &domain.PhaseResult{
		PhaseID:     phaseID,
		Status:      domain.StatusFailed,
		StartedAt:   now,
		CompletedAt: now,
		Error:       fmt.Sprintf("phase cancelled before start: %v", cause),
		ErrorKind:   "execution",
	}
}

func classify(err error, ctx context.Context) string {
	switch {
	case errors.Is(err, domain.ErrTimeout) || ctx.Err() == context.DeadlineExceeded:
		return "timeout"
	case errors.Is(err, domain.ErrDependency):
		return "dependency"
	default:
		return "execution"
	}
}
