// Package pool manages the autoscaling worker fleet: workers instantiated
// from named resource pools, utilization-driven scale decisions, pluggable
// task assignment strategies, and health tracking with grace-period
// eviction.
package pool

import (
	"time"

	"github.com/danieleschmidt/nerf-edge-sched/internal/task"
)

// Status is the lifecycle state of a worker.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusBusy       Status = "busy"
	StatusOverloaded Status = "overloaded"
	StatusFailed     Status = "failed"
)

// overloadedThreshold is the utilization at which a worker is considered
// overloaded rather than merely busy.
const overloadedThreshold = 1.0

// failureRateLimit is the failure rate above which a worker is unhealthy.
const failureRateLimit = 0.2

// failureRateMinSamples is how many finished tasks a worker needs before
// its failure rate is trusted by health checks.
const failureRateMinSamples = 5

// Worker is one execution slot, bound to the resource pool it was drawn
// from. Workers are owned by the Scaler; all mutation happens under the
// Scaler's lock.
type Worker struct {
	// ID uniquely identifies the worker.
	ID string

	// Pool names the resource pool this worker was instantiated from.
	Pool string

	// Capacity is the per-worker resource capacity inherited from the pool.
	Capacity task.ResourceVector

	// MaxConcurrent bounds simultaneous task assignments.
	MaxConcurrent int

	// Status is the current lifecycle state.
	Status Status

	// Running maps assigned task IDs to their start times.
	Running map[string]time.Time

	// Completed and Failed count finished tasks.
	Completed int
	Failed    int

	// TotalBusy accumulates execution time of completed tasks, feeding the
	// rolling efficiency estimate.
	TotalBusy time.Duration

	// LastHealth is the most recent heartbeat or task event.
	LastHealth time.Time

	// FailedSince is when the worker entered the failed state. Zero while
	// healthy. Drives grace-period eviction.
	FailedSince time.Time

	// CreatedAt is when the worker was instantiated.
	CreatedAt time.Time
}

// newWorker instantiates a worker from a pool descriptor.
func newWorker(id string, p *ResourcePool, now time.Time) *Worker {
	maxConcurrent := p.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Worker{
		ID:            id,
		Pool:          p.Name,
		Capacity:      p.Resources,
		MaxConcurrent: maxConcurrent,
		Status:        StatusIdle,
		Running:       make(map[string]time.Time),
		LastHealth:    now,
		CreatedAt:     now,
	}
}

// Utilization is the fraction of the worker's concurrency capacity in use.
func (w *Worker) Utilization() float64 {
	if w.MaxConcurrent <= 0 {
		return 1
	}
	u := float64(len(w.Running)) / float64(w.MaxConcurrent)
	if u > 1 {
		return 1
	}
	return u
}

// FailureRate is the fraction of finished tasks that failed.
func (w *Worker) FailureRate() float64 {
	total := w.Completed + w.Failed
	if total == 0 {
		return 0
	}
	return float64(w.Failed) / float64(total)
}

// Efficiency is the worker's rolling efficiency: penalized by failures and
// by average task duration beyond one second.
func (w *Worker) Efficiency() float64 {
	avgMs := 1000.0
	if w.Completed > 0 {
		avgMs = float64(w.TotalBusy.Milliseconds()) / float64(w.Completed)
	}
	if avgMs < 1000 {
		avgMs = 1000
	}
	return (1 - w.FailureRate()) * (1000 / avgMs)
}

// Idle reports whether the worker is healthy with no running tasks.
func (w *Worker) Idle() bool {
	return w.Status != StatusFailed && len(w.Running) == 0
}

// refreshStatus derives idle/busy/overloaded from the running set. Failed
// workers keep their status until a health pass or recovery changes it.
func (w *Worker) refreshStatus() {
	if w.Status == StatusFailed {
		return
	}
	switch {
	case len(w.Running) == 0:
		w.Status = StatusIdle
	case w.Utilization() >= overloadedThreshold:
		w.Status = StatusOverloaded
	default:
		w.Status = StatusBusy
	}
}

// markFailed transitions the worker into the failed state.
func (w *Worker) markFailed(now time.Time) {
	if w.Status == StatusFailed {
		return
	}
	w.Status = StatusFailed
	w.FailedSince = now
}

// snapshot returns a copy safe to hand outside the Scaler's lock.
func (w *Worker) snapshot() *Worker {
	cp := *w
	cp.Running = make(map[string]time.Time, len(w.Running))
	for id, at := range w.Running {
		cp.Running[id] = at
	}
	return &cp
}
