package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/phasekit/phaserun/internal/application/orchestrator"
	"github.com/phasekit/phaserun/pkg/domain"
	"github.com/phasekit/phaserun/pkg/ports"
)

// Pool manages a pool of worker goroutines executing task bodies. It
// implements orchestrator.TaskRunner.
type Pool struct {
	size    int
	inner   orchestrator.TaskRunner
	metrics ports.MetricsCollector
	logger  *zap.Logger
	health  *HealthMonitor

	jobs    chan *job
	workers []*worker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// job carries one task body to a worker and its outcome back.
type job struct {
	ctx   context.Context
	phase *domain.Phase
	task  *domain.Task
	reply chan jobResult
}

type jobResult struct {
	outputs map[string]any
	err     error
}

// worker represents a single worker goroutine
type worker struct {
	id      string
	pool    *Pool
	status  WorkerStatus
	mu      sync.RWMutex
	lastJob time.Time
}

// WorkerStatus represents worker status
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// NewPool creates a new worker pool around an inner runner. The metrics
// collector is optional.
func NewPool(
	size int,
	inner orchestrator.TaskRunner,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	healthCheckInterval time.Duration,
) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	if inner == nil {
		inner = orchestrator.NopRunner()
	}
	pool := &Pool{
		size:    size,
		inner:   inner,
		metrics: metrics,
		logger:  logger,
		jobs:    make(chan *job),
		workers: make([]*worker, size),
		ctx:     ctx,
		cancel:  cancel,
	}

	pool.health = NewHealthMonitor(pool, healthCheckInterval, logger)

	return pool
}

// Start starts the worker pool
func (p *Pool) Start() error {
	p.logger.Info("starting worker pool", zap.Int("size", p.size))

	for i := 0; i < p.size; i++ {
		w := &worker{
			id:      fmt.Sprintf("worker-%d", i),
			pool:    p,
			status:  WorkerStatusIdle,
			lastJob: time.Now(),
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(p.ctx)
	}

	p.health.Start()

	p.logger.Info("worker pool started", zap.Int("workers", p.size))
	return nil
}

// RunTask queues one task body on the pool and waits for its outcome. It
// returns early when the task's context expires, in which case the body's
// eventual result is discarded.
func (p *Pool) RunTask(ctx context.Context, phase *domain.Phase, task *domain.Task) (map[string]any, error) {
	j := &job{
		ctx:   ctx,
		phase: phase,
		task:  task,
		reply: make(chan jobResult, 1),
	}

	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.ctx.Done():
		return nil, fmt.Errorf("worker pool is shut down")
	}

	select {
	case result := <-j.reply:
		return result.outputs, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown gracefully shuts down the worker pool
func (p *Pool) Shutdown(ctx context.Context) error {
	p.logger.Info("shutting down worker pool")

	p.health.Stop()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout")
	}
}

// GetStatus returns the status of all workers
func (p *Pool) GetStatus() map[string]WorkerStatus {
	status := make(map[string]WorkerStatus)
	for _, w := range p.workers {
		if w == nil {
			continue
		}
		w.mu.RLock()
		status[w.id] = w.status
		w.mu.RUnlock()
	}
	return status
}

// run is the main worker loop
func (w *worker) run(ctx context.Context) {
	defer w.pool.wg.Done()

	w.pool.logger.Debug("worker started", zap.String("worker_id", w.id))

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.status = WorkerStatusStopped
			w.mu.Unlock()
			w.pool.logger.Debug("worker stopped", zap.String("worker_id", w.id))
			return

		case j := <-w.pool.jobs:
			w.execute(j)
		}
	}
}

// execute runs one task body through the inner runner.
func (w *worker) execute(j *job) {
	w.mu.Lock()
	w.status = WorkerStatusBusy
	w.lastJob = time.Now()
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.status = WorkerStatusIdle
		w.mu.Unlock()
	}()

	// The orchestrator may have given up while the job was queued.
	if err := j.ctx.Err(); err != nil {
		j.reply <- jobResult{err: err}
		return
	}

	w.pool.logger.Debug("executing task",
		zap.String("worker_id", w.id),
		zap.String("phase_id", j.phase.ID),
		zap.String("task_id", j.task.ID))

	outputs, err := w.pool.inner.RunTask(j.ctx, j.phase, j.task)
	j.reply <- jobResult{outputs: outputs, err: err}
}
