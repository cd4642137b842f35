package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/phasekit/phaserun/internal/application/orchestrator"
	"github.com/phasekit/phaserun/pkg/domain"
	"github.com/phasekit/phaserun/pkg/ports"
)

func testPhaseAndTask() (*domain.Phase, *domain.Task) {
	task := &domain.Task{ID: "t1", Name: "t1"}
	return &domain.Phase{ID: "p1", Name: "p1", Tasks: []domain.Task{*task}}, task
}

func TestPoolRunsTaskThroughInnerRunner(t *testing.T) {
	inner := orchestrator.TaskRunnerFunc(func(ctx context.Context, phase *domain.Phase, task *domain.Task) (map[string]any, error) {
		return map[string]any{"phase": phase.ID, "task": task.ID}, nil
	})
	pool := NewPool(2, inner, nil, zap.NewNop(), time.Minute)
	require.NoError(t, pool.Start())
	defer pool.Shutdown(context.Background())

	phase, task := testPhaseAndTask()
	outputs, err := pool.RunTask(context.Background(), phase, task)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"phase": "p1", "task": "t1"}, outputs)
}

func TestPoolPropagatesRunnerErrors(t *testing.T) {
	inner := orchestrator.TaskRunnerFunc(func(ctx context.Context, phase *domain.Phase, task *domain.Task) (map[string]any, error) {
		return nil, errors.New("task body failed")
	})
	pool := NewPool(1, inner, nil, zap.NewNop(), time.Minute)
	require.NoError(t, pool.Start())
	defer pool.Shutdown(context.Background())

	phase, task := testPhaseAndTask()
	_, err := pool.RunTask(context.Background(), phase, task)
	require.EqualError(t, err, "task body failed")
}

func TestPoolBoundsConcurrentBodies(t *testing.T) {
	var concurrent, peak int32
	inner := orchestrator.TaskRunnerFunc(func(ctx context.Context, phase *domain.Phase, task *domain.Task) (map[string]any, error) {
		cur := atomic.AddInt32(&concurrent, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		atomic.AddInt32(&concurrent, -1)
		return nil, nil
	})
	pool := NewPool(2, inner, nil, zap.NewNop(), time.Minute)
	require.NoError(t, pool.Start())
	defer pool.Shutdown(context.Background())

	phase, task := testPhaseAndTask()
	done := make(chan struct{})
	for i := 0; i < 6; i++ {
		go func() {
			_, _ = pool.RunTask(context.Background(), phase, task)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 6; i++ {
		<-done
	}

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestPoolHonorsCancelledContext(t *testing.T) {
	inner := orchestrator.TaskRunnerFunc(func(ctx context.Context, phase *domain.Phase, task *domain.Task) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	pool := NewPool(1, inner, nil, zap.NewNop(), time.Minute)
	require.NoError(t, pool.Start())
	defer pool.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	phase, task := testPhaseAndTask()
	_, err := pool.RunTask(ctx, phase, task)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPoolRejectsWorkAfterShutdown(t *testing.T) {
	pool := NewPool(1, nil, nil, zap.NewNop(), time.Minute)
	require.NoError(t, pool.Start())
	require.NoError(t, pool.Shutdown(context.Background()))

	phase, task := testPhaseAndTask()
	_, err := pool.RunTask(context.Background(), phase, task)
	require.Error(t, err)
}

// occupancyRecorder captures the pool occupancy samples the health monitor
// publishes. The remaining collector methods are never called from workers.
type occupancyRecorder struct {
	ports.MetricsCollector

	mu      sync.Mutex
	samples int
	idle    int
	busy    int
	stopped int
}

func (r *occupancyRecorder) SetWorkerPoolStatus(idle, busy, stopped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples++
	r.idle, r.busy, r.stopped = idle, busy, stopped
}

func (r *occupancyRecorder) latest() (samples, idle, busy, stopped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samples, r.idle, r.busy, r.stopped
}

func TestHealthMonitorPublishesOccupancy(t *testing.T) {
	rec := &occupancyRecorder{}
	pool := NewPool(3, nil, rec, zap.NewNop(), 5*time.Millisecond)
	require.NoError(t, pool.Start())
	defer pool.Shutdown(context.Background())

	require.Eventually(t, func() bool {
		samples, idle, _, _ := rec.latest()
		return samples > 0 && idle == 3
	}, time.Second, 5*time.Millisecond)

	_, idle, busy, stopped := rec.latest()
	assert.Equal(t, 3, idle)
	assert.Equal(t, 0, busy)
	assert.Equal(t, 0, stopped)
}

func TestHealthStatusCountsWorkers(t *testing.T) {
	pool := NewPool(3, nil, nil, zap.NewNop(), time.Minute)
	require.NoError(t, pool.Start())
	defer pool.Shutdown(context.Background())

	require.Eventually(t, func() bool {
		return pool.health.GetStatus().IdleWorkers == 3
	}, time.Second, 5*time.Millisecond)

	status := pool.health.GetStatus()
	assert.Equal(t, 3, status.TotalWorkers)
	assert.True(t, status.Healthy)
	assert.True(t, pool.health.IsHealthy())
}
