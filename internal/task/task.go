// Package task defines the schedulable unit of the render scheduler and
// the resource vectors it consumes. Tasks carry a heuristic state block
// (confidence, parallelizability, affinity links, and a two-component
// scheduling weight) that the planner updates as execution progresses.
package task

import (
	"math"
	"time"
)

// Bounds applied to heuristic state fields. The validator enforces these;
// the helpers below clamp into them when the planner mutates state.
const (
	// ConfidenceFloor is the minimum confidence a task may decay to.
	ConfidenceFloor = 0.1

	// MinWeightNorm is the exclusive lower bound on the weight vector norm.
	MinWeightNorm = 0.01

	// MaxWeightNorm is the upper bound on the weight vector norm. Slightly
	// above 1 so that rounding during weight coupling never invalidates a
	// task between replans.
	MaxWeightNorm = 1.1

	// DefaultMaxAffinityLinks is the default ceiling on affinity link
	// cardinality per task.
	DefaultMaxAffinityLinks = 10
)

// ResourceVector describes resource demand or capacity across the four
// dimensions the scheduler tracks. All values are non-negative; units are
// whatever the surrounding configuration uses (cores, MB, device shares,
// MB/s).
type ResourceVector struct {
	CPU       float64 `json:"cpu" yaml:"cpu"`
	Memory    float64 `json:"memory" yaml:"memory"`
	GPU       float64 `json:"gpu" yaml:"gpu"`
	Bandwidth float64 `json:"bandwidth" yaml:"bandwidth"`
}

// Add returns the component-wise sum of two resource vectors.
func (r ResourceVector) Add(o ResourceVector) ResourceVector {
	return ResourceVector{
		CPU:       r.CPU + o.CPU,
		Memory:    r.Memory + o.Memory,
		GPU:       r.GPU + o.GPU,
		Bandwidth: r.Bandwidth + o.Bandwidth,
	}
}

// Exceeds reports the dimensions on which r is strictly greater than the
// capacity vector. An empty result means r fits within capacity.
func (r ResourceVector) Exceeds(capacity ResourceVector) []string {
	var over []string
	if r.CPU > capacity.CPU {
		over = append(over, "cpu")
	}
	if r.Memory > capacity.Memory {
		over = append(over, "memory")
	}
	if r.GPU > capacity.GPU {
		over = append(over, "gpu")
	}
	if r.Bandwidth > capacity.Bandwidth {
		over = append(over, "bandwidth")
	}
	return over
}

// IsNonNegative reports whether every dimension is >= 0.
func (r ResourceVector) IsNonNegative() bool {
	return r.CPU >= 0 && r.Memory >= 0 && r.GPU >= 0 && r.Bandwidth >= 0
}

// Dimension returns the named dimension value. Unknown names return 0.
func (r ResourceVector) Dimension(name string) float64 {
	switch name {
	case "cpu":
		return r.CPU
	case "memory":
		return r.Memory
	case "gpu":
		return r.GPU
	case "bandwidth":
		return r.Bandwidth
	default:
		return 0
	}
}

// Dimensions lists the resource dimension names in canonical order.
func Dimensions() []string {
	return []string{"cpu", "memory", "gpu", "bandwidth"}
}

// Weight is the two-component scheduling weight of a task. The Euclidean
// norm is the effective scheduling weight; the phase angle breaks ties
// between otherwise equal tasks. This is plain bounded floating-point
// state, not a physical amplitude.
type Weight struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Norm returns the Euclidean norm of the weight vector.
func (w Weight) Norm() float64 {
	return math.Hypot(w.X, w.Y)
}

// Phase returns the angle of the weight vector in radians, in (-pi, pi].
func (w Weight) Phase() float64 {
	return math.Atan2(w.Y, w.X)
}

// Mul returns the component-wise product of two weight vectors. Used when
// propagating a completed task's weight to its affinity-linked peers.
func (w Weight) Mul(o Weight) Weight {
	return Weight{X: w.X * o.X, Y: w.Y * o.Y}
}

// Rescale returns the weight scaled so its norm equals target. A zero
// weight cannot be rescaled and is replaced by a unit weight along X.
func (w Weight) Rescale(target float64) Weight {
	n := w.Norm()
	if n == 0 {
		return Weight{X: target, Y: 0}
	}
	f := target / n
	return Weight{X: w.X * f, Y: w.Y * f}
}

// UnitWeight returns the default weight for a new task: unit norm, zero phase.
func UnitWeight() Weight {
	return Weight{X: 1, Y: 0}
}

// HeuristicState is the bounded heuristic block attached to every task.
type HeuristicState struct {
	// Confidence is the trust in the task's priority and duration
	// estimates, in [ConfidenceFloor, 1]. It decays as affinity links
	// are added.
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// Parallelizability is the likelihood of overlapping execution with
	// other tasks, in [0, 1]. Tasks above 0.5 are modeled as partially
	// concurrent when estimating total schedule time.
	Parallelizability float64 `json:"parallelizability" yaml:"parallelizability"`

	// AffinityLinks are IDs of tasks whose heuristics move in correlation
	// with this one. Symmetric by convention, bounded cardinality.
	AffinityLinks []string `json:"affinity_links,omitempty" yaml:"affinity_links,omitempty"`

	// Weight is the two-component scheduling weight.
	Weight Weight `json:"weight" yaml:"weight"`
}

// HasLink reports whether the state already links to the given task ID.
func (h *HeuristicState) HasLink(id string) bool {
	for _, l := range h.AffinityLinks {
		if l == id {
			return true
		}
	}
	return false
}

// AddLink appends a link if not already present. Returns true if added.
func (h *HeuristicState) AddLink(id string) bool {
	if h.HasLink(id) {
		return false
	}
	h.AffinityLinks = append(h.AffinityLinks, id)
	return true
}

// RemoveLink removes a link if present. Returns true if removed.
func (h *HeuristicState) RemoveLink(id string) bool {
	for i, l := range h.AffinityLinks {
		if l == id {
			h.AffinityLinks = append(h.AffinityLinks[:i], h.AffinityLinks[i+1:]...)
			return true
		}
	}
	return false
}

// Task is the schedulable unit handed to the planner.
type Task struct {
	// ID uniquely identifies the task within the active set.
	ID string `json:"id" yaml:"id"`

	// Priority is the caller-assigned importance, in [0, 1].
	Priority float64 `json:"priority" yaml:"priority"`

	// EstimatedDuration is the expected execution time. Must be positive.
	EstimatedDuration time.Duration `json:"estimated_duration" yaml:"estimated_duration"`

	// Dependencies are IDs of tasks that must complete before this one
	// may run. No self-references; must resolve within the active set.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`

	// Resources is the per-dimension demand of the task.
	Resources ResourceVector `json:"resources" yaml:"resources"`

	// Heuristics is the mutable heuristic state block.
	Heuristics HeuristicState `json:"heuristics" yaml:"heuristics"`

	// Metadata is an opaque bag the scheduler core never interprets.
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// CreatedAt is when the task was constructed.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// New creates a task with sane heuristic defaults: full confidence, zero
// parallelizability, unit weight.
func New(id string, priority float64, duration time.Duration) *Task {
	return &Task{
		ID:                id,
		Priority:          priority,
		EstimatedDuration: duration,
		Heuristics: HeuristicState{
			Confidence: 1,
			Weight:     UnitWeight(),
		},
		CreatedAt: time.Now(),
	}
}

// Score is the planner's objective contribution for this task:
// priority x confidence x (1 + parallelizability).
func (t *Task) Score() float64 {
	return t.Priority * t.Heuristics.Confidence * (1 + t.Heuristics.Parallelizability)
}

// OrderScore is Score scaled by the weight norm. Used for tie-breaking in
// the ready queue, where heavier tasks go first.
func (t *Task) OrderScore() float64 {
	return t.Score() * t.Heuristics.Weight.Norm()
}

// DependsOn reports whether the task lists the given ID as a dependency.
func (t *Task) DependsOn(id string) bool {
	for _, d := range t.Dependencies {
		if d == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the task. The planner hands out clones so
// callers cannot race its internal registry.
func (t *Task) Clone() *Task {
	cp := *t
	cp.Dependencies = append([]string(nil), t.Dependencies...)
	cp.Heuristics.AffinityLinks = append([]string(nil), t.Heuristics.AffinityLinks...)
	if t.Metadata != nil {
		cp.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// ClampConfidence bounds a confidence value into [ConfidenceFloor, 1].
func ClampConfidence(c float64) float64 {
	return clamp(c, ConfidenceFloor, 1)
}

// ClampUnit bounds a value into [0, 1].
func ClampUnit(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
