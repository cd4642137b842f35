package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/phasekit/phaserun/internal/application/resolver"
	"github.com/phasekit/phaserun/pkg/domain"
)

// runSequential executes phases one at a time in declared order. A failed
// phase aborts the rest of the run unless ContinueOnFailure is set.
func (r *run) runSequential(ctx context.Context) error {
	for i := range r.project.Phases {
		phase := &r.project.Phases[i]
		if r.state.IsPhaseCompleted(phase.ID) {
			continue
		}
		if ctx.Err() != nil {
			r.addError(ctx, "run cancelled: "+ctx.Err().Error())
			return ctx.Err()
		}

		result := r.launchSync(ctx, phase)
		r.record(ctx, result)

		if result.Status == domain.StatusFailed && !r.o.cfg.ContinueOnFailure {
			r.o.logger.Warn("aborting remaining phases",
				zap.String("failed_phase", phase.ID),
				zap.Int("remaining", len(r.project.Phases)-i-1))
			return nil
		}
	}
	return nil
}

// runParallel repeatedly launches every phase whose resolved dependencies
// have completed, bounded by the phase pool. When nothing is launchable and
// nothing is running while phases remain, the run is either blocked by
// earlier failures (partial) or by a dependency defect (incomplete).
func (r *run) runParallel(ctx context.Context) error {
	deps := r.resolvedPhaseDeps()
	started := make(map[string]struct{}, len(r.project.Phases))
	for _, id := range r.state.CompletedPhases {
		started[id] = struct{}{}
	}

	outcomes := make(chan *domain.PhaseResult, len(r.project.Phases))
	var wg sync.WaitGroup
	defer wg.Wait()
	active := 0

	for {
		if ctx.Err() == nil {
			for _, phase := range r.launchable(deps, started) {
				started[phase.ID] = struct{}{}
				active++
				r.launch(ctx, phase, outcomes, &wg)
			}
		}

		if active == 0 {
			remaining := len(r.project.Phases) - len(started)
			switch {
			case ctx.Err() != nil:
				r.addError(ctx, "run cancelled: "+ctx.Err().Error())
				return ctx.Err()
			case remaining == 0:
				return nil
			case len(r.state.FailedPhases) > 0:
				r.addError(ctx, "phases blocked by earlier failures: "+strings.Join(r.unstarted(started), ", "))
				return nil
			default:
				// Nothing failed yet nothing can launch: the dependency
				// graph cannot make progress.
				r.stuck = true
				err := domain.Errorf(domain.ErrDependency,
					"no launchable phases among: %s", strings.Join(r.unstarted(started), ", "))
				r.addError(ctx, err.Error())
				return err
			}
		}

		result := <-outcomes
		active--
		r.record(ctx, result)
	}
}

// runAdaptive executes resolved levels in order, all phases of a level
// concurrently. A level with failures stops the run before the next level,
// since later levels depend on earlier ones.
func (r *run) runAdaptive(ctx context.Context) error {
	for _, level := range r.res.PhaseLevels {
		var pending []*domain.Phase
		for _, id := range level {
			if r.state.IsPhaseCompleted(id) {
				continue
			}
			phase, ok := r.project.Phase(id)
			if !ok {
				continue
			}
			pending = append(pending, phase)
		}
		if len(pending) == 0 {
			continue
		}
		if ctx.Err() != nil {
			r.addError(ctx, "run cancelled: "+ctx.Err().Error())
			return ctx.Err()
		}

		outcomes := make(chan *domain.PhaseResult, len(pending))
		var wg sync.WaitGroup
		for _, phase := range pending {
			r.launch(ctx, phase, outcomes, &wg)
		}
		go func() {
			wg.Wait()
			close(outcomes)
		}()

		failed := 0
		for result := range outcomes {
			r.record(ctx, result)
			if result.Status == domain.StatusFailed {
				failed++
			}
		}
		if failed > 0 {
			r.o.logger.Warn("stopping after level failures",
				zap.Int("failed", failed),
				zap.Strings("level", level))
			return nil
		}
	}
	return nil
}

// runCheckpoint is adaptive execution with a background checkpointer. The
// checkpointer is always stopped and joined before the run returns, and a
// final checkpoint captures the terminal state.
func (r *run) runCheckpoint(ctx context.Context) error {
	cctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go r.checkpointLoop(cctx, done)

	err := r.runAdaptive(ctx)

	cancel()
	<-done
	r.writeCheckpoint(context.Background())
	return err
}

func (r *run) checkpointLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.o.cfg.CheckpointInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.writeCheckpoint(ctx)
		}
	}
}

func (r *run) writeCheckpoint(ctx context.Context) {
	o := r.o
	o.mu.RLock()
	snap := r.state.Snapshot()
	o.mu.RUnlock()

	meta, err := o.checkpoints.CreateCheckpoint(ctx, snap)
	if err != nil {
		o.logger.Error("periodic checkpoint failed",
			zap.String("execution_id", snap.ExecutionID),
			zap.Error(err))
		return
	}

	event := o.newEvent(domain.EventCheckpoint, r.state)
	event.CheckpointID = meta.ID
	event.State = snap
	o.emit(ctx, event)
}

// resolvedPhaseDeps extracts phase-to-phase dependencies from the resolved
// graph, so launches honor cycle breaking instead of the raw declarations.
func (r *run) resolvedPhaseDeps() map[string][]string {
	deps := make(map[string][]string, len(r.project.Phases))
	for i := range r.project.Phases {
		id := r.project.Phases[i].ID
		node, ok := r.res.Graph.Nodes[id]
		if !ok {
			continue
		}
		var phaseDeps []string
		for depID := range node.Dependencies {
			if dep, ok := r.res.Graph.Nodes[depID]; ok && dep.Kind == resolver.NodeKindPhase {
				phaseDeps = append(phaseDeps, depID)
			}
		}
		deps[id] = phaseDeps
	}
	return deps
}

// launchable lists unstarted phases whose dependencies have all completed,
// in declared order.
func (r *run) launchable(deps map[string][]string, started map[string]struct{}) []*domain.Phase {
	var out []*domain.Phase
	for i := range r.project.Phases {
		phase := &r.project.Phases[i]
		if _, done := started[phase.ID]; done {
			continue
		}
		ready := true
		for _, depID := range deps[phase.ID] {
			if !r.state.IsPhaseCompleted(depID) {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, phase)
		}
	}
	return out
}

func (r *run) unstarted(started map[string]struct{}) []string {
	var out []string
	for i := range r.project.Phases {
		if _, ok := started[r.project.Phases[i].ID]; !ok {
			out = append(out, r.project.Phases[i].ID)
		}
	}
	return out
}
