package pool

import (
	"sort"

	"github.com/danieleschmidt/nerf-edge-sched/internal/task"
)

// Balancer names accepted by AssignTasks. Unknown names fall back to
// round-robin.
const (
	StrategyRoundRobin   = "round-robin"
	StrategyLeastLoaded  = "least-loaded"
	StrategyQuantumAware = "quantum-aware"
)

// Balancer distributes tasks across candidate workers. Implementations
// receive only healthy workers, sorted by ID, and return worker ID to
// assigned task IDs. Balancers run under the Scaler's lock and may keep
// cursor state across calls.
type Balancer interface {
	Name() string
	Assign(tasks []*task.Task, workers []*Worker) map[string][]string
}

// roundRobin deals tasks cyclically, blind to load. The cursor persists
// across calls so repeated small batches still spread out.
type roundRobin struct {
	cursor int
}

func (r *roundRobin) Name() string { return StrategyRoundRobin }

func (r *roundRobin) Assign(tasks []*task.Task, workers []*Worker) map[string][]string {
	if len(workers) == 0 {
		return nil
	}
	out := make(map[string][]string)
	for _, t := range tasks {
		w := workers[r.cursor%len(workers)]
		out[w.ID] = append(out[w.ID], t.ID)
		r.cursor++
	}
	return out
}

// leastLoaded greedily picks the lowest-utilization worker per task,
// updating a simulated load after each pick so a batch spreads instead of
// piling onto one worker.
type leastLoaded struct{}

func (leastLoaded) Name() string { return StrategyLeastLoaded }

func (leastLoaded) Assign(tasks []*task.Task, workers []*Worker) map[string][]string {
	if len(workers) == 0 {
		return nil
	}

	simulated := make(map[string]int, len(workers))
	for _, w := range workers {
		simulated[w.ID] = len(w.Running)
	}

	out := make(map[string][]string)
	for _, t := range tasks {
		var pick *Worker
		best := 0.0
		for _, w := range workers {
			u := simulatedUtilization(w, simulated[w.ID])
			if pick == nil || u < best {
				pick = w
				best = u
			}
		}
		out[pick.ID] = append(out[pick.ID], t.ID)
		simulated[pick.ID]++
	}
	return out
}

// quantumAware weighs workers by headroom, efficiency, and how much the
// task's own confidence is worth boosting:
// score = (1 - utilization) x efficiency x (1 + confidence).
type quantumAware struct{}

func (quantumAware) Name() string { return StrategyQuantumAware }

func (quantumAware) Assign(tasks []*task.Task, workers []*Worker) map[string][]string {
	if len(workers) == 0 {
		return nil
	}

	simulated := make(map[string]int, len(workers))
	for _, w := range workers {
		simulated[w.ID] = len(w.Running)
	}

	out := make(map[string][]string)
	for _, t := range tasks {
		var pick *Worker
		best := -1.0
		for _, w := range workers {
			u := simulatedUtilization(w, simulated[w.ID])
			score := (1 - u) * w.Efficiency() * (1 + t.Heuristics.Confidence)
			if score > best {
				pick = w
				best = score
			}
		}
		out[pick.ID] = append(out[pick.ID], t.ID)
		simulated[pick.ID]++
	}
	return out
}

// simulatedUtilization recomputes utilization with a hypothetical running
// count, capped at 1.
func simulatedUtilization(w *Worker, running int) float64 {
	if w.MaxConcurrent <= 0 {
		return 1
	}
	u := float64(running) / float64(w.MaxConcurrent)
	if u > 1 {
		return 1
	}
	return u
}

// defaultBalancers returns the built-in strategy registry.
func defaultBalancers() map[string]Balancer {
	return map[string]Balancer{
		StrategyRoundRobin:   &roundRobin{},
		StrategyLeastLoaded:  leastLoaded{},
		StrategyQuantumAware: quantumAware{},
	}
}

// healthySorted filters out failed workers and sorts the rest by ID so
// balancer decisions are deterministic.
func healthySorted(workers map[string]*Worker) []*Worker {
	out := make([]*Worker, 0, len(workers))
	for _, w := range workers {
		if w.Status != StatusFailed {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
