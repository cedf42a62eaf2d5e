package planner

import (
	"context"
	"time"

	"github.com/danieleschmidt/nerf-edge-sched/internal/errors"
	"github.com/danieleschmidt/nerf-edge-sched/internal/event"
	"github.com/danieleschmidt/nerf-edge-sched/internal/task"
)

// Bounds applied to a propagated weight norm. Propagation keeps linked
// weights comfortably inside the validator's (MinWeightNorm, MaxWeightNorm]
// window so repeated coupling can neither vanish nor blow up a weight.
const (
	minPropagatedNorm = 0.1
	maxPropagatedNorm = 1.0
)

// ExecuteNext pops the head of the planned schedule and runs it through the
// executor. It returns (nil, nil) when the schedule is empty. On success
// the task is removed from the registry and its weight propagates to its
// affinity-linked peers; on failure the task stays registered and a replan
// is requested so recovery can reschedule it.
func (p *Planner) ExecuteNext(ctx context.Context) (*task.Task, error) {
	p.mu.Lock()
	if len(p.schedule) == 0 {
		p.mu.Unlock()
		return nil, nil
	}
	id := p.schedule[0]
	p.schedule = p.schedule[1:]
	t, ok := p.tasks[id]
	if !ok {
		// The task was removed after planning; skip the stale entry.
		p.mu.Unlock()
		return p.ExecuteNext(ctx)
	}
	snapshot := t.Clone()
	p.mu.Unlock()

	p.log.Debug("executing task", "task_id", id)
	start := time.Now()
	err := p.executor.Execute(ctx, snapshot)
	elapsed := time.Since(start)

	if err != nil {
		p.bus.Publish(event.NewTaskFailedEvent(id, err.Error()))
		p.log.Warn("task execution failed", "task_id", id, "error", err)
		p.requestReplanIfRunning()
		return snapshot, errors.NewPlannerError("task execution failed", err).
			WithTaskID(id).
			WithRetryable(true)
	}

	p.completeTask(id)

	p.bus.Publish(event.NewTaskCompletedEvent(id, elapsed))
	p.bus.Publish(event.NewTaskRemovedEvent(id, "completed"))
	p.log.Info("task completed", "task_id", id, "duration", elapsed)
	return snapshot, nil
}

// completeTask removes a finished task from the registry and propagates its
// weight to every affinity-linked peer.
func (p *Planner) completeTask(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tasks[id]
	if !ok {
		return
	}
	delete(p.tasks, id)

	for _, linkID := range t.Heuristics.AffinityLinks {
		linked, ok := p.tasks[linkID]
		if !ok {
			continue
		}
		propagateWeight(&linked.Heuristics, t.Heuristics.Weight)
		linked.Heuristics.RemoveLink(id)
		linked.Heuristics.Confidence = linkConfidence(len(linked.Heuristics.AffinityLinks))
	}

	// Departed tasks stop gating their dependents.
	for _, other := range p.tasks {
		for i, dep := range other.Dependencies {
			if dep == id {
				other.Dependencies = append(other.Dependencies[:i], other.Dependencies[i+1:]...)
				break
			}
		}
	}
}

// propagateWeight applies a completed task's weight to a linked peer: the
// peer's weight becomes the component-wise product, renormalized into
// bounds immediately, and its parallelizability is recomputed from the new
// norm.
func propagateWeight(h *task.HeuristicState, w task.Weight) {
	product := h.Weight.Mul(w)
	norm := product.Norm()
	if norm < minPropagatedNorm {
		product = product.Rescale(minPropagatedNorm)
		norm = minPropagatedNorm
	} else if norm > maxPropagatedNorm {
		product = product.Rescale(maxPropagatedNorm)
		norm = maxPropagatedNorm
	}
	h.Weight = product
	h.Parallelizability = task.ClampUnit(norm)
}

// requestReplanIfRunning requests a coalesced replan when the planner is in
// the running state.
func (p *Planner) requestReplanIfRunning() {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	if running {
		p.requestReplan()
	}
}
