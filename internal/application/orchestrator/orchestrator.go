package orchestrator

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/phasekit/phaserun/internal/application/checkpoint"
	"github.com/phasekit/phaserun/internal/application/resolver"
	"github.com/phasekit/phaserun/pkg/domain"
	"github.com/phasekit/phaserun/pkg/ports"
)

// Mode selects the scheduling strategy for a run.
type Mode string

const (
	// ModeSequential executes phases one at a time in declared order.
	ModeSequential Mode = "sequential"
	// ModeParallel launches every phase whose dependencies are satisfied.
	ModeParallel Mode = "parallel"
	// ModeAdaptive executes resolved dependency levels one after another,
	// with full concurrency inside each level.
	ModeAdaptive Mode = "adaptive"
	// ModeCheckpoint is adaptive execution plus periodic state checkpoints.
	ModeCheckpoint Mode = "checkpoint"
)

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSequential, ModeParallel, ModeAdaptive, ModeCheckpoint:
		return Mode(s), nil
	}
	return "", domain.Errorf(domain.ErrValidation, "unknown execution mode %q", s)
}

// Config holds the orchestrator's scheduling knobs.
type Config struct {
	Mode                Mode
	MaxConcurrentPhases int
	MaxConcurrentTasks  int
	PhaseTimeout        time.Duration
	RetryAttempts       int
	RetryBackoff        time.Duration
	// ContinueOnFailure keeps sequential runs going past a failed phase.
	// Intended for debugging, off by default.
	ContinueOnFailure  bool
	CheckpointInterval time.Duration
}

func (c *Config) setDefaults() {
	if c.Mode == "" {
		c.Mode = ModeAdaptive
	}
	if c.MaxConcurrentPhases <= 0 {
		c.MaxConcurrentPhases = 4
	}
	if c.MaxConcurrentTasks <= 0 {
		c.MaxConcurrentTasks = 8
	}
	if c.PhaseTimeout <= 0 {
		c.PhaseTimeout = 30 * time.Minute
	}
	if c.RetryAttempts < 0 {
		c.RetryAttempts = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = 30 * time.Second
	}
}

// Orchestrator executes one project run at a time over a resolved dependency
// graph. It is safe for concurrent introspection while a run is in flight.
type Orchestrator struct {
	cfg         Config
	resolver    *resolver.Resolver
	runner      TaskRunner
	checkpoints *checkpoint.Manager
	eventBus    ports.EventBus
	storage     ports.StateStorage
	metrics     ports.MetricsCollector
	logger      *zap.Logger

	mu           sync.RWMutex
	handlers     map[domain.EventType][]Handler
	state        *domain.OrchestrationState
	activePhases map[string]struct{}
	activeTasks  map[string]struct{}

	running atomic.Bool
}

// New creates an orchestrator. The checkpoint manager, event bus, storage and
// metrics collector are optional; a nil runner defaults to NopRunner.
func New(
	cfg Config,
	res *resolver.Resolver,
	runner TaskRunner,
	checkpoints *checkpoint.Manager,
	eventBus ports.EventBus,
	storage ports.StateStorage,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
) *Orchestrator {
	cfg.setDefaults()
	if runner == nil {
		runner = NopRunner()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Orchestrator{
		cfg:          cfg,
		resolver:     res,
		runner:       runner,
		checkpoints:  checkpoints,
		eventBus:     eventBus,
		storage:      storage,
		metrics:      metrics,
		logger:       logger,
		handlers:     make(map[domain.EventType][]Handler),
		activePhases: make(map[string]struct{}),
		activeTasks:  make(map[string]struct{}),
	}
}

// run carries the per-execution scheduling state. Its fields are owned by the
// goroutine running Execute; phase goroutines report back over channels.
type run struct {
	o          *Orchestrator
	project    *domain.Project
	res        *resolver.Resolution
	state      *domain.OrchestrationState
	phaseSlots chan struct{}
	taskSlots  chan struct{}
	// stuck marks a parallel-mode run where pending phases can never launch
	// even though nothing failed.
	stuck bool
}

// Execute runs the project to completion under the configured mode and
// returns the aggregate result. A non-empty resumeFrom restores the named
// checkpoint and skips phases it already completed. Only one run may be in
// flight per orchestrator.
func (o *Orchestrator) Execute(ctx context.Context, project *domain.Project, runContext map[string]any, resumeFrom string) (*domain.RunResult, error) {
	r, err := o.prepare(ctx, project, runContext, resumeFrom)
	if err != nil {
		return nil, err
	}
	defer o.running.Store(false)
	return o.executeRun(ctx, r)
}

// Submit starts the run in the background and returns its execution id
// immediately. The caller follows progress through state storage, events or
// introspection.
func (o *Orchestrator) Submit(ctx context.Context, project *domain.Project, runContext map[string]any, resumeFrom string) (string, error) {
	r, err := o.prepare(ctx, project, runContext, resumeFrom)
	if err != nil {
		return "", err
	}
	go func() {
		defer o.running.Store(false)
		_, _ = o.executeRun(context.Background(), r)
	}()
	return r.state.ExecutionID, nil
}

// prepare reserves the orchestrator for one run, resolves the project and
// builds the run state. On error the reservation is released.
func (o *Orchestrator) prepare(ctx context.Context, project *domain.Project, runContext map[string]any, resumeFrom string) (*run, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, domain.Errorf(domain.ErrExecution, "an execution is already in progress")
	}

	r, err := o.buildRun(ctx, project, runContext, resumeFrom)
	if err != nil {
		o.running.Store(false)
		return nil, err
	}
	return r, nil
}

func (o *Orchestrator) buildRun(ctx context.Context, project *domain.Project, runContext map[string]any, resumeFrom string) (*run, error) {
	if o.cfg.Mode == ModeCheckpoint && o.checkpoints == nil {
		return nil, domain.Errorf(domain.ErrCheckpoint, "checkpoint mode requires a checkpoint manager")
	}

	res, err := o.resolver.Resolve(project)
	if err != nil {
		return nil, err
	}

	var state *domain.OrchestrationState
	if resumeFrom != "" {
		state, err = o.restore(ctx, project, resumeFrom, runContext)
		if err != nil {
			return nil, err
		}
	} else {
		state = domain.NewOrchestrationState(uuid.New().String(), project, runContext)
	}

	o.mu.Lock()
	o.state = state
	o.mu.Unlock()

	return &run{
		o:          o,
		project:    project,
		res:        res,
		state:      state,
		phaseSlots: make(chan struct{}, o.cfg.MaxConcurrentPhases),
		taskSlots:  make(chan struct{}, o.cfg.MaxConcurrentTasks),
	}, nil
}

func (o *Orchestrator) executeRun(ctx context.Context, r *run) (*domain.RunResult, error) {
	state, project, res := r.state, r.project, r.res

	o.metrics.RecordRunStarted()
	o.logger.Info("execution started",
		zap.String("execution_id", state.ExecutionID),
		zap.String("project_id", project.ID),
		zap.String("mode", string(o.cfg.Mode)),
		zap.Int("phases", len(project.Phases)),
		zap.Strings("critical_path", res.CriticalPath))
	r.persist(ctx)

	started := time.Now()
	var runErr error
	switch o.cfg.Mode {
	case ModeSequential:
		runErr = r.runSequential(ctx)
	case ModeParallel:
		runErr = r.runParallel(ctx)
	case ModeCheckpoint:
		runErr = r.runCheckpoint(ctx)
	default:
		runErr = r.runAdaptive(ctx)
	}

	result := r.finalize(started)
	return result, runErr
}

// restore rebuilds run state from a checkpoint. Previously failed phases are
// forgotten so the resumed run retries them; completed phases stay completed.
func (o *Orchestrator) restore(ctx context.Context, project *domain.Project, checkpointID string, runContext map[string]any) (*domain.OrchestrationState, error) {
	if o.checkpoints == nil {
		return nil, domain.Errorf(domain.ErrRecovery, "no checkpoint manager configured")
	}
	data, err := o.checkpoints.RestoreCheckpoint(ctx, checkpointID)
	if err != nil {
		return nil, err
	}
	if data.Metadata.ProjectID != project.ID {
		return nil, domain.Errorf(domain.ErrRecovery,
			"checkpoint %s belongs to project %s, not %s", checkpointID, data.Metadata.ProjectID, project.ID)
	}

	// The manager may serve the same data again from its cache; work on a
	// copy so the resumed run never mutates the stored snapshot.
	state := data.State.Snapshot()
	state.Project = project
	state.FailedPhases = []string{}
	for id, res := range state.PhaseResults {
		if res.Status != domain.StatusCompleted {
			delete(state.PhaseResults, id)
		}
	}
	if state.Context == nil {
		state.Context = make(map[string]any)
	}
	for k, v := range runContext {
		state.Context[k] = v
	}

	event := o.newEvent(domain.EventRecovery, state)
	event.CheckpointID = checkpointID
	event.State = state.Snapshot()
	o.emit(ctx, event)

	o.logger.Info("resumed from checkpoint",
		zap.String("checkpoint_id", checkpointID),
		zap.String("execution_id", state.ExecutionID),
		zap.Int("completed_phases", len(state.CompletedPhases)))
	return state, nil
}

// record folds a finished phase into the run state. Called only from the
// goroutine running Execute.
func (r *run) record(ctx context.Context, result *domain.PhaseResult) {
	o := r.o
	o.mu.Lock()
	r.state.PhaseResults[result.PhaseID] = result
	if result.Status == domain.StatusCompleted {
		r.state.CompletedPhases = append(r.state.CompletedPhases, result.PhaseID)
	} else {
		r.state.FailedPhases = append(r.state.FailedPhases, result.PhaseID)
		r.state.Errors = append(r.state.Errors, "phase "+result.PhaseID+": "+result.Error)
	}
	o.mu.Unlock()
	r.persist(ctx)

	if result.Status == domain.StatusCompleted {
		event := o.newEvent(domain.EventPhaseComplete, r.state)
		event.PhaseID = result.PhaseID
		event.PhaseResult = result
		o.emit(ctx, event)
	}
}

func (r *run) addError(ctx context.Context, msg string) {
	r.o.mu.Lock()
	r.state.Errors = append(r.state.Errors, msg)
	r.o.mu.Unlock()
	r.persist(ctx)
}

// persist mirrors a state snapshot to live storage, best effort.
func (r *run) persist(ctx context.Context) {
	if r.o.storage == nil {
		return
	}
	r.o.mu.RLock()
	snap := r.state.Snapshot()
	r.o.mu.RUnlock()
	if err := r.o.storage.SaveState(ctx, snap); err != nil {
		r.o.logger.Error("failed to mirror run state",
			zap.String("execution_id", snap.ExecutionID),
			zap.Error(err))
	}
}

func (r *run) finalize(started time.Time) *domain.RunResult {
	o := r.o
	o.mu.RLock()
	snap := r.state.Snapshot()
	o.mu.RUnlock()

	totals := domain.PhaseTotals{
		Total:     len(r.project.Phases),
		Completed: len(snap.CompletedPhases),
		Failed:    len(snap.FailedPhases),
	}

	var status domain.RunStatus
	switch {
	case totals.Completed == totals.Total:
		status = domain.RunCompleted
	case totals.Failed > 0:
		status = domain.RunPartial
	default:
		status = domain.RunIncomplete
	}
	if r.stuck {
		status = domain.RunIncomplete
	}

	result := &domain.RunResult{
		Status:       status,
		ExecutionID:  snap.ExecutionID,
		Duration:     time.Since(started),
		PhaseTotals:  totals,
		PhaseResults: snap.PhaseResults,
		Errors:       snap.Errors,
	}

	o.metrics.RecordRunCompleted(string(status), result.Duration)
	o.logger.Info("execution finished",
		zap.String("execution_id", snap.ExecutionID),
		zap.String("status", string(status)),
		zap.Duration("duration", result.Duration),
		zap.Int("completed", totals.Completed),
		zap.Int("failed", totals.Failed))
	r.persist(context.Background())
	return result
}

// State returns a snapshot of the most recent run's state, or nil before the
// first run.
func (o *Orchestrator) State() *domain.OrchestrationState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.state == nil {
		return nil
	}
	return o.state.Snapshot()
}

// ActivePhases lists the ids of phases currently executing, sorted.
func (o *Orchestrator) ActivePhases() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return sortedKeys(o.activePhases)
}

// ActiveTasks lists the node ids of tasks currently executing, sorted.
func (o *Orchestrator) ActiveTasks() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return sortedKeys(o.activeTasks)
}

// Running reports whether a run is in flight.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

func (o *Orchestrator) trackPhase(id string, active bool) {
	o.mu.Lock()
	if active {
		o.activePhases[id] = struct{}{}
		o.state.CurrentPhase = id
	} else {
		delete(o.activePhases, id)
	}
	n := len(o.activePhases)
	o.mu.Unlock()
	o.metrics.SetActivePhases(n)
}

func (o *Orchestrator) trackTask(id string, active bool) {
	o.mu.Lock()
	if active {
		o.activeTasks[id] = struct{}{}
	} else {
		delete(o.activeTasks, id)
	}
	n := len(o.activeTasks)
	o.mu.Unlock()
	o.metrics.SetActiveTasks(n)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// noopMetrics keeps the orchestrator free of nil checks when no collector is
// wired.
type noopMetrics struct{}

func (noopMetrics) RecordRunStarted()                                        {}
func (noopMetrics) RecordRunCompleted(status string, duration time.Duration) {}
func (noopMetrics) RecordPhaseExecuted(status string, duration time.Duration) {
}
func (noopMetrics) RecordPhaseRetried()                                       {}
func (noopMetrics) RecordTaskExecuted(status string, duration time.Duration)  {}
func (noopMetrics) RecordCheckpointWritten(sizeBytes int64, ratio float64)    {}
func (noopMetrics) RecordCheckpointRestored(cacheHit bool)                    {}
func (noopMetrics) SetActivePhases(count int)                                 {}
func (noopMetrics) SetActiveTasks(count int)                                  {}
func (noopMetrics) SetWorkerPoolStatus(idle, busy, stopped int)               {}
