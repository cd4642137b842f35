package workers

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthStatus summarizes pool occupancy at one point in time.
type HealthStatus struct {
	TotalWorkers   int
	IdleWorkers    int
	BusyWorkers    int
	StoppedWorkers int
	Healthy        bool
	Timestamp      time.Time
}

// HealthMonitor periodically samples pool occupancy, publishes it through the
// metrics collector and logs saturation. A pool counts as healthy while no
// worker has stopped and at least one is idle.
type HealthMonitor struct {
	pool     *Pool
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

func NewHealthMonitor(pool *Pool, interval time.Duration, logger *zap.Logger) *HealthMonitor {
	return &HealthMonitor{
		pool:     pool,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the sampling loop. Repeated calls are no-ops.
func (h *HealthMonitor) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	go h.run()
}

// Stop halts the sampling loop. Repeated calls are no-ops.
func (h *HealthMonitor) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.stopCh)
}

func (h *HealthMonitor) run() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.sample()
		}
	}
}

// sample takes one occupancy reading, records it and logs anomalies.
func (h *HealthMonitor) sample() {
	status := h.GetStatus()

	if h.pool.metrics != nil {
		h.pool.metrics.SetWorkerPoolStatus(status.IdleWorkers, status.BusyWorkers, status.StoppedWorkers)
	}

	h.logger.Debug("worker pool occupancy",
		zap.Int("total", status.TotalWorkers),
		zap.Int("idle", status.IdleWorkers),
		zap.Int("busy", status.BusyWorkers),
		zap.Int("stopped", status.StoppedWorkers))

	if !status.Healthy {
		h.logger.Warn("worker pool is unhealthy",
			zap.Int("idle", status.IdleWorkers),
			zap.Int("stopped", status.StoppedWorkers),
			zap.Int("total", status.TotalWorkers))
	} else if status.BusyWorkers == status.TotalWorkers {
		h.logger.Warn("worker pool is saturated",
			zap.Int("total", status.TotalWorkers))
	}
}

// GetStatus counts workers by state.
func (h *HealthMonitor) GetStatus() *HealthStatus {
	var idle, busy, stopped int
	for _, state := range h.pool.GetStatus() {
		switch state {
		case WorkerStatusIdle:
			idle++
		case WorkerStatusBusy:
			busy++
		case WorkerStatusStopped:
			stopped++
		}
	}

	return &HealthStatus{
		TotalWorkers:   idle + busy + stopped,
		IdleWorkers:    idle,
		BusyWorkers:    busy,
		StoppedWorkers: stopped,
		Healthy:        idle > 0 && stopped == 0,
		Timestamp:      time.Now(),
	}
}

// IsHealthy reports whether the pool currently counts as healthy.
func (h *HealthMonitor) IsHealthy() bool {
	return h.GetStatus().Healthy
}
