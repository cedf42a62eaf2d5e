// Package recovery classifies scheduler failures and drives typed recovery
// strategies with per-failure retry budgets and cooldowns. Failures that
// exhaust every applicable strategy are escalated, never thrown: nothing
// panics past this boundary and the process is never terminated from here.
package recovery

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/danieleschmidt/nerf-edge-sched/internal/errors"
	"github.com/danieleschmidt/nerf-edge-sched/internal/task"
)

// FailureKind classifies what went wrong.
type FailureKind string

const (
	// KindConfidenceCollapse is a task confidence degraded to the floor.
	KindConfidenceCollapse FailureKind = "confidence-collapse"

	// KindAffinityBreak is a broken or dangling affinity relation.
	KindAffinityBreak FailureKind = "affinity-break"

	// KindParallelizabilityCollapse is a parallelizability estimate driven
	// out of its usable range.
	KindParallelizabilityCollapse FailureKind = "parallelizability-collapse"

	// KindOptimizerTimeout is an annealing run that hit its bounds without
	// a usable solution.
	KindOptimizerTimeout FailureKind = "optimizer-timeout"

	// KindResourceExhaustion is demand exceeding available capacity.
	KindResourceExhaustion FailureKind = "resource-exhaustion"

	// KindDependencyCycle is a cyclic dependency reported at plan time.
	KindDependencyCycle FailureKind = "dependency-cycle"

	// KindStateCorruption is an internally inconsistent task or registry.
	KindStateCorruption FailureKind = "state-corruption"

	// KindMeasurementError is an implausible duration or utilization sample.
	KindMeasurementError FailureKind = "measurement-error"

	// KindOptimizerDivergence is an annealing run whose energy worsened
	// monotonically.
	KindOptimizerDivergence FailureKind = "optimizer-divergence"

	// KindPlatformIncompatibility is a task the current device cannot run.
	KindPlatformIncompatibility FailureKind = "platform-incompatibility"
)

// Kinds lists every failure kind.
func Kinds() []FailureKind {
	return []FailureKind{
		KindConfidenceCollapse,
		KindAffinityBreak,
		KindParallelizabilityCollapse,
		KindOptimizerTimeout,
		KindResourceExhaustion,
		KindDependencyCycle,
		KindStateCorruption,
		KindMeasurementError,
		KindOptimizerDivergence,
		KindPlatformIncompatibility,
	}
}

// FailureStatus is the lifecycle state of a failure record.
type FailureStatus string

const (
	StatusRecorded  FailureStatus = "recorded"
	StatusRetrying  FailureStatus = "retrying"
	StatusResolved  FailureStatus = "resolved"
	StatusEscalated FailureStatus = "escalated"
)

// Snapshot captures a task's heuristic state at failure time, plus a
// derived recovery probability. The probability is informational only; it
// never gates strategy selection.
type Snapshot struct {
	TaskID            string
	Confidence        float64
	Parallelizability float64
	LinkCount         int
	WeightNorm        float64

	// RecoveryProbability estimates how likely cheap local correction is
	// to help, in [0, 1].
	RecoveryProbability float64
}

// NewSnapshot derives a Snapshot from a task's heuristic state.
func NewSnapshot(t *task.Task) *Snapshot {
	s := &Snapshot{
		TaskID:            t.ID,
		Confidence:        t.Heuristics.Confidence,
		Parallelizability: t.Heuristics.Parallelizability,
		LinkCount:         len(t.Heuristics.AffinityLinks),
		WeightNorm:        t.Heuristics.Weight.Norm(),
	}
	s.RecoveryProbability = deriveRecoveryProbability(s)
	return s
}

// deriveRecoveryProbability blends confidence, weight norm, and link
// saturation into a single estimate.
func deriveRecoveryProbability(s *Snapshot) float64 {
	linkRoom := 1 - float64(s.LinkCount)/float64(task.DefaultMaxAffinityLinks)
	if linkRoom < 0 {
		linkRoom = 0
	}
	norm := s.WeightNorm
	if norm > 1 {
		norm = 1
	}
	return task.ClampUnit(0.4*s.Confidence + 0.3*norm + 0.3*linkRoom)
}

// Failure is one recorded failure instance. Retry budgets and cooldowns
// are tracked per failure per strategy.
type Failure struct {
	ID        string
	Kind      FailureKind
	Severity  errors.Severity
	Cause     error
	TaskID    string
	Context   map[string]any
	Snapshot  *Snapshot
	Status    FailureStatus
	Attempts  int
	Timestamp time.Time

	// perStrategy tracks attempt counts and last-attempt times keyed by
	// strategy ID.
	perStrategy map[string]*strategyBudget
}

type strategyBudget struct {
	attempts    int
	lastAttempt time.Time
}

var failureSeq atomic.Uint64

// newFailure builds a failure record with a unique ID.
func newFailure(kind FailureKind, severity errors.Severity, cause error, taskID string) *Failure {
	return &Failure{
		ID:          fmt.Sprintf("failure-%d", failureSeq.Add(1)),
		Kind:        kind,
		Severity:    severity,
		Cause:       cause,
		TaskID:      taskID,
		Status:      StatusRecorded,
		Timestamp:   time.Now(),
		perStrategy: make(map[string]*strategyBudget),
	}
}

// budget returns the per-strategy budget, creating it on first use.
func (f *Failure) budget(strategyID string) *strategyBudget {
	b, ok := f.perStrategy[strategyID]
	if !ok {
		b = &strategyBudget{}
		f.perStrategy[strategyID] = b
	}
	return b
}
