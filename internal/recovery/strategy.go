package recovery

import (
	"time"

	"github.com/danieleschmidt/nerf-edge-sched/internal/task"
)

// Outcome is what a recovery attempt produced.
type Outcome struct {
	// Resolved reports whether the failure is fixed.
	Resolved bool

	// RetryAfter, when positive, asks the handler to re-attempt the whole
	// chain after the delay instead of continuing now.
	RetryAfter time.Duration

	// Note describes what the strategy did, for logs and stats.
	Note string
}

// RecoverFunc attempts to recover from a failure. It must be bounded and
// must not panic; the handler recovers panics defensively but treats them
// as a failed attempt.
type RecoverFunc func(f *Failure) Outcome

// Strategy is a typed recovery procedure matched by failure kind.
type Strategy struct {
	// ID identifies the strategy in budgets, events, and stats.
	ID string

	// Kinds are the failure kinds this strategy applies to.
	Kinds []FailureKind

	// MaxRetries bounds attempts per failure instance.
	MaxRetries int

	// Cooldown is the minimum delay between attempts on one failure.
	Cooldown time.Duration

	// Priority orders applicable strategies; higher runs first.
	Priority int

	// Recover performs the attempt.
	Recover RecoverFunc
}

// applies reports whether the strategy matches a failure kind.
func (s *Strategy) applies(kind FailureKind) bool {
	for _, k := range s.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Hooks are optional callbacks into the rest of the scheduler that default
// strategies use when present. Absent hooks degrade the strategy to a
// snapshot-only correction or a no-op.
type Hooks struct {
	// RequestReplan asks the planner for a fresh plan.
	RequestReplan func()

	// RestartOptimizer re-runs planning with an adjusted annealing
	// schedule (higher temperature, more iterations).
	RestartOptimizer func() error

	// BreakDependency removes one dependency edge from a task.
	BreakDependency func(taskID, dependencyID string) error

	// ReleaseResources frees reclaimable capacity (caches, idle workers).
	ReleaseResources func() int
}

// DefaultStrategies returns the built-in strategy set, highest priority
// first once sorted by the handler.
func DefaultStrategies(h Hooks) []*Strategy {
	return []*Strategy{
		{
			ID:         "confidence-restoration",
			Kinds:      []FailureKind{KindConfidenceCollapse, KindMeasurementError},
			MaxRetries: 3,
			Cooldown:   5 * time.Second,
			Priority:   90,
			Recover: func(f *Failure) Outcome {
				if f.Snapshot == nil {
					return Outcome{}
				}
				restored := task.ClampConfidence(f.Snapshot.Confidence * 1.5)
				if restored <= f.Snapshot.Confidence {
					return Outcome{}
				}
				f.Snapshot.Confidence = restored
				f.Snapshot.RecoveryProbability = deriveRecoveryProbability(f.Snapshot)
				return Outcome{Resolved: true, Note: "confidence restored"}
			},
		},
		{
			ID:         "affinity-repair",
			Kinds:      []FailureKind{KindAffinityBreak},
			MaxRetries: 2,
			Cooldown:   5 * time.Second,
			Priority:   80,
			Recover: func(f *Failure) Outcome {
				if f.Snapshot == nil {
					return Outcome{}
				}
				if f.Snapshot.LinkCount > task.DefaultMaxAffinityLinks {
					f.Snapshot.LinkCount = task.DefaultMaxAffinityLinks
				}
				f.Snapshot.Confidence = task.ClampConfidence(1 - 0.1*float64(f.Snapshot.LinkCount))
				f.Snapshot.RecoveryProbability = deriveRecoveryProbability(f.Snapshot)
				return Outcome{Resolved: true, Note: "affinity links trimmed and confidence recomputed"}
			},
		},
		{
			ID:         "parallelizability-rederivation",
			Kinds:      []FailureKind{KindParallelizabilityCollapse},
			MaxRetries: 2,
			Cooldown:   5 * time.Second,
			Priority:   80,
			Recover: func(f *Failure) Outcome {
				if f.Snapshot == nil {
					return Outcome{}
				}
				f.Snapshot.Parallelizability = task.ClampUnit(f.Snapshot.WeightNorm)
				return Outcome{Resolved: true, Note: "parallelizability re-derived from weight norm"}
			},
		},
		{
			ID:         "optimizer-restart",
			Kinds:      []FailureKind{KindOptimizerTimeout, KindOptimizerDivergence},
			MaxRetries: 2,
			Cooldown:   10 * time.Second,
			Priority:   70,
			Recover: func(f *Failure) Outcome {
				if h.RestartOptimizer == nil {
					return Outcome{}
				}
				if err := h.RestartOptimizer(); err != nil {
					return Outcome{Note: "optimizer restart failed: " + err.Error()}
				}
				return Outcome{Resolved: true, Note: "optimizer restarted with adjusted schedule"}
			},
		},
		{
			ID:         "resource-cleanup",
			Kinds:      []FailureKind{KindResourceExhaustion},
			MaxRetries: 2,
			Cooldown:   15 * time.Second,
			Priority:   60,
			Recover: func(f *Failure) Outcome {
				if h.ReleaseResources == nil {
					return Outcome{}
				}
				if freed := h.ReleaseResources(); freed > 0 {
					return Outcome{Resolved: true, Note: "resources released"}
				}
				// Nothing reclaimable right now; worth another look later.
				return Outcome{RetryAfter: 15 * time.Second, Note: "no reclaimable resources"}
			},
		},
		{
			ID:         "cycle-breaking",
			Kinds:      []FailureKind{KindDependencyCycle},
			MaxRetries: 1,
			Cooldown:   time.Second,
			Priority:   95,
			Recover: func(f *Failure) Outcome {
				if h.BreakDependency == nil {
					return Outcome{}
				}
				taskID, depID, ok := lowestPriorityEdge(f.Context)
				if !ok {
					return Outcome{Note: "no cycle path in failure context"}
				}
				if err := h.BreakDependency(taskID, depID); err != nil {
					return Outcome{Note: "edge removal failed: " + err.Error()}
				}
				if h.RequestReplan != nil {
					h.RequestReplan()
				}
				return Outcome{Resolved: true, Note: "dropped dependency " + taskID + " -> " + depID}
			},
		},
	}
}

// lowestPriorityEdge extracts the edge to drop from a failure context. The
// context carries the reported cycle path under "cycle" and optional task
// priorities under "priorities"; absent priorities, the last edge of the
// path is dropped.
func lowestPriorityEdge(ctx map[string]any) (taskID, depID string, ok bool) {
	cycle, _ := ctx["cycle"].([]string)
	if len(cycle) < 2 {
		return "", "", false
	}

	priorities, _ := ctx["priorities"].(map[string]float64)
	bestIdx := len(cycle) - 2
	if len(priorities) > 0 {
		best := 2.0
		for i := 0; i < len(cycle)-1; i++ {
			if p, found := priorities[cycle[i]]; found && p < best {
				best = p
				bestIdx = i
			}
		}
	}

	// cycle[i] depends on cycle[i+1]; drop that edge.
	return cycle[bestIdx], cycle[bestIdx+1], true
}
