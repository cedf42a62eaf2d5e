// Package validate checks tasks, task sets, and schedule results against
// the structural, resource, and heuristic-state invariants of the
// scheduler. Findings are data, never panics: critical findings block an
// operation entirely, error findings block the offending item, warnings
// are informational.
package validate

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danieleschmidt/nerf-edge-sched/internal/task"
)

// Validation finding codes.
const (
	CodeMissingID             = "MISSING_ID"
	CodeInvalidPriority       = "INVALID_PRIORITY"
	CodeInvalidDuration       = "INVALID_DURATION"
	CodeSelfDependency        = "SELF_DEPENDENCY"
	CodeDuplicateDependency   = "DUPLICATE_DEPENDENCY"
	CodeUnresolvedDependency  = "UNRESOLVED_DEPENDENCY"
	CodeDependencyCycle       = "DEPENDENCY_CYCLE"
	CodeConfidenceOutOfRange  = "CONFIDENCE_OUT_OF_RANGE"
	CodeInvalidParallelism    = "INVALID_PARALLELIZABILITY"
	CodeInvalidWeightNorm     = "INVALID_WEIGHT_NORM"
	CodeExcessAffinityLinks   = "EXCESS_AFFINITY_LINKS"
	CodeUnresolvedAffinity    = "UNRESOLVED_AFFINITY"
	CodeAsymmetricAffinity    = "ASYMMETRIC_AFFINITY"
	CodeDegradedConfidence    = "DEGRADED_CONFIDENCE"
	CodeLongDuration          = "LONG_DURATION"
	CodeHighMemory            = "HIGH_MEMORY"
	CodeIncompleteSchedule    = "INCOMPLETE_SCHEDULE"
	CodeOrderViolation        = "ORDER_VIOLATION"
	CodeInvalidTotalTime      = "INVALID_TOTAL_TIME"
	CodeInvalidEfficiency     = "INVALID_EFFICIENCY"
	CodeLowEfficiency         = "LOW_EFFICIENCY"
	codeResourceInvalidPrefix = "INVALID_"
	codeResourceShortPrefix   = "INSUFFICIENT_"
)

// Limits are the configured ceilings the validator enforces.
type Limits struct {
	// MaxResources bounds each task's per-dimension demand.
	MaxResources task.ResourceVector

	// Available is the aggregate capacity a task set may demand.
	Available task.ResourceVector

	// MaxAffinityLinks is the ceiling on affinity link cardinality.
	MaxAffinityLinks int

	// MinWeightNorm and MaxWeightNorm bound the weight vector norm.
	MinWeightNorm float64
	MaxWeightNorm float64

	// ConfidenceFloor is the minimum allowed confidence.
	ConfidenceFloor float64

	// LongDuration triggers an informational warning when exceeded.
	LongDuration time.Duration

	// HighMemory triggers an informational warning when exceeded.
	HighMemory float64
}

// DefaultLimits returns limits suitable for a single-device render node.
func DefaultLimits() Limits {
	return Limits{
		MaxResources:     task.ResourceVector{CPU: 16, Memory: 16384, GPU: 4, Bandwidth: 1000},
		Available:        task.ResourceVector{CPU: 32, Memory: 65536, GPU: 8, Bandwidth: 4000},
		MaxAffinityLinks: task.DefaultMaxAffinityLinks,
		MinWeightNorm:    task.MinWeightNorm,
		MaxWeightNorm:    task.MaxWeightNorm,
		ConfidenceFloor:  task.ConfidenceFloor,
		LongDuration:     5 * time.Second,
		HighMemory:       8192,
	}
}

// Rule is a caller-registered extension check run against each task during
// ValidateTask. Rules return additional findings; they must not mutate the
// task.
type Rule func(t *task.Task) ([]Issue, []Warning)

// Validator checks tasks and schedules against configured limits. Each
// validation call is stateless; the validator only accumulates rolling
// statistics across calls. Safe for concurrent use.
type Validator struct {
	limits Limits

	mu    sync.Mutex
	rules map[string]Rule
	stats *statsWindow
}

// New creates a Validator with the given limits.
func New(limits Limits) *Validator {
	return &Validator{
		limits: limits,
		rules:  make(map[string]Rule),
		stats:  newStatsWindow(defaultStatsWindow),
	}
}

// AddRule registers a named extension rule. Re-registering a name replaces
// the previous rule.
func (v *Validator) AddRule(name string, rule Rule) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rules[name] = rule
}

// RemoveRule removes a named extension rule. Returns true if it existed.
func (v *Validator) RemoveRule(name string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.rules[name]; !ok {
		return false
	}
	delete(v.rules, name)
	return true
}

// ValidateTask checks a single task: identity, priority, duration and
// resource bounds, heuristic-state bounds, and self-dependency. Registered
// extension rules run afterwards. The result score reflects all findings.
func (v *Validator) ValidateTask(t *task.Task) *Result {
	r := newResult()
	v.checkTask(t, r)
	v.runRules(t, r)
	r.finalize()
	v.record(r)
	return r
}

// checkTask appends single-task findings without finalizing, so set-level
// validation can reuse it.
func (v *Validator) checkTask(t *task.Task, r *Result) {
	if t == nil {
		r.addIssue(Issue{Severity: SeverityCritical, Code: CodeMissingID, Message: "task is nil"})
		return
	}
	if strings.TrimSpace(t.ID) == "" {
		r.addIssue(Issue{
			Severity: SeverityCritical,
			Code:     CodeMissingID,
			Field:    "id",
			Message:  "task has no ID",
		})
	}

	if t.Priority < 0 || t.Priority > 1 {
		r.addIssue(Issue{
			Severity: SeverityError,
			Code:     CodeInvalidPriority,
			Field:    "priority",
			TaskID:   t.ID,
			Message:  fmt.Sprintf("priority %v outside [0, 1]", t.Priority),
		})
	}

	if t.EstimatedDuration <= 0 {
		r.addIssue(Issue{
			Severity: SeverityError,
			Code:     CodeInvalidDuration,
			Field:    "estimated_duration",
			TaskID:   t.ID,
			Message:  "estimated duration must be positive",
		})
	} else if v.limits.LongDuration > 0 && t.EstimatedDuration > v.limits.LongDuration {
		r.addWarning(Warning{
			Code:       CodeLongDuration,
			Field:      "estimated_duration",
			TaskID:     t.ID,
			Message:    fmt.Sprintf("estimated duration %v exceeds %v", t.EstimatedDuration, v.limits.LongDuration),
			Suggestion: "split the task into smaller stages",
		})
	}

	v.checkResources(t, r)
	v.checkHeuristics(t, r)

	// Self-dependency is structural and blocks entirely.
	seen := make(map[string]bool, len(t.Dependencies))
	for _, dep := range t.Dependencies {
		if dep == t.ID {
			r.addIssue(Issue{
				Severity: SeverityCritical,
				Code:     CodeSelfDependency,
				Field:    "dependencies",
				TaskID:   t.ID,
				Message:  "task depends on itself",
			})
		}
		if seen[dep] {
			r.addWarning(Warning{
				Code:       CodeDuplicateDependency,
				Field:      "dependencies",
				TaskID:     t.ID,
				Message:    fmt.Sprintf("dependency %q listed more than once", dep),
				Suggestion: "remove the duplicate entry",
			})
		}
		seen[dep] = true
	}
}

// checkResources validates per-dimension demand bounds.
func (v *Validator) checkResources(t *task.Task, r *Result) {
	if !t.Resources.IsNonNegative() {
		for _, dim := range task.Dimensions() {
			if t.Resources.Dimension(dim) < 0 {
				r.addIssue(Issue{
					Severity: SeverityError,
					Code:     resourceInvalidCode(dim),
					Field:    "resources." + dim,
					TaskID:   t.ID,
					Message:  fmt.Sprintf("%s requirement is negative", dim),
				})
			}
		}
	}

	for _, dim := range t.Resources.Exceeds(v.limits.MaxResources) {
		r.addIssue(Issue{
			Severity: SeverityError,
			Code:     resourceInvalidCode(dim),
			Field:    "resources." + dim,
			TaskID:   t.ID,
			Message: fmt.Sprintf("%s requirement %v exceeds ceiling %v",
				dim, t.Resources.Dimension(dim), v.limits.MaxResources.Dimension(dim)),
		})
	}

	if v.limits.HighMemory > 0 && t.Resources.Memory > v.limits.HighMemory &&
		t.Resources.Memory <= v.limits.MaxResources.Memory {
		r.addWarning(Warning{
			Code:       CodeHighMemory,
			Field:      "resources.memory",
			TaskID:     t.ID,
			Message:    fmt.Sprintf("memory requirement %v is high", t.Resources.Memory),
			Suggestion: "verify the estimate; high-memory tasks serialize poorly",
		})
	}
}

// checkHeuristics validates the heuristic-state block bounds.
func (v *Validator) checkHeuristics(t *task.Task, r *Result) {
	h := &t.Heuristics

	if h.Confidence < v.limits.ConfidenceFloor || h.Confidence > 1 {
		r.addIssue(Issue{
			Severity: SeverityError,
			Code:     CodeConfidenceOutOfRange,
			Field:    "heuristics.confidence",
			TaskID:   t.ID,
			Message: fmt.Sprintf("confidence %v outside [%v, 1]",
				h.Confidence, v.limits.ConfidenceFloor),
		})
	} else if h.Confidence < 0.3 {
		r.addWarning(Warning{
			Code:       CodeDegradedConfidence,
			Field:      "heuristics.confidence",
			TaskID:     t.ID,
			Message:    fmt.Sprintf("confidence %v is heavily degraded", h.Confidence),
			Suggestion: "re-estimate priority and duration or trim affinity links",
		})
	}

	if h.Parallelizability < 0 || h.Parallelizability > 1 {
		r.addIssue(Issue{
			Severity: SeverityError,
			Code:     CodeInvalidParallelism,
			Field:    "heuristics.parallelizability",
			TaskID:   t.ID,
			Message:  fmt.Sprintf("parallelizability %v outside [0, 1]", h.Parallelizability),
		})
	}

	norm := h.Weight.Norm()
	if norm < v.limits.MinWeightNorm || norm > v.limits.MaxWeightNorm {
		r.addIssue(Issue{
			Severity: SeverityError,
			Code:     CodeInvalidWeightNorm,
			Field:    "heuristics.weight",
			TaskID:   t.ID,
			Message: fmt.Sprintf("weight norm %.4f outside (%v, %v]",
				norm, v.limits.MinWeightNorm, v.limits.MaxWeightNorm),
		})
	}

	if v.limits.MaxAffinityLinks > 0 && len(h.AffinityLinks) > v.limits.MaxAffinityLinks {
		r.addWarning(Warning{
			Code:       CodeExcessAffinityLinks,
			Field:      "heuristics.affinity_links",
			TaskID:     t.ID,
			Message:    fmt.Sprintf("%d affinity links exceed ceiling %d", len(h.AffinityLinks), v.limits.MaxAffinityLinks),
			Suggestion: "drop the weakest correlations",
		})
	}
}

// runRules executes registered extension rules against a task.
func (v *Validator) runRules(t *task.Task, r *Result) {
	v.mu.Lock()
	rules := make([]Rule, 0, len(v.rules))
	for _, rule := range v.rules {
		rules = append(rules, rule)
	}
	v.mu.Unlock()

	for _, rule := range rules {
		issues, warnings := rule(t)
		for _, i := range issues {
			r.addIssue(i)
		}
		for _, w := range warnings {
			r.addWarning(w)
		}
	}
}

// ValidateTaskSet checks every task individually, then the set-level
// invariants: dependency resolution, cycle freedom, aggregate resource
// demand, and affinity link resolution and symmetry.
func (v *Validator) ValidateTaskSet(tasks map[string]*task.Task) *Result {
	r := newResult()

	for _, t := range tasks {
		v.checkTask(t, r)
		v.runRules(t, r)
	}

	// Dependency references must resolve within the set.
	for id, t := range tasks {
		for _, dep := range t.Dependencies {
			if dep == id {
				continue // already reported as SELF_DEPENDENCY
			}
			if _, ok := tasks[dep]; !ok {
				r.addIssue(Issue{
					Severity: SeverityError,
					Code:     CodeUnresolvedDependency,
					Field:    "dependencies",
					TaskID:   id,
					Message:  fmt.Sprintf("dependency %q not in the active set", dep),
				})
			}
		}
	}

	if cycle := DetectDependencyCycle(tasks); cycle != nil {
		r.addIssue(Issue{
			Severity: SeverityCritical,
			Code:     CodeDependencyCycle,
			Field:    "dependencies",
			Message:  fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> ")),
			Context:  map[string]any{"cycle": cycle},
		})
	}

	// Aggregate demand must fit availability per dimension.
	var total task.ResourceVector
	for _, t := range tasks {
		total = total.Add(t.Resources)
	}
	for _, dim := range total.Exceeds(v.limits.Available) {
		r.addIssue(Issue{
			Severity: SeverityError,
			Code:     resourceShortCode(dim),
			Field:    "resources." + dim,
			Message: fmt.Sprintf("aggregate %s demand %v exceeds available %v",
				dim, total.Dimension(dim), v.limits.Available.Dimension(dim)),
		})
	}

	// Affinity links must resolve; asymmetry is only a warning.
	for id, t := range tasks {
		for _, link := range t.Heuristics.AffinityLinks {
			other, ok := tasks[link]
			if !ok {
				r.addIssue(Issue{
					Severity: SeverityError,
					Code:     CodeUnresolvedAffinity,
					Field:    "heuristics.affinity_links",
					TaskID:   id,
					Message:  fmt.Sprintf("affinity link %q not in the active set", link),
				})
				continue
			}
			if !other.Heuristics.HasLink(id) {
				r.addWarning(Warning{
					Code:       CodeAsymmetricAffinity,
					Field:      "heuristics.affinity_links",
					TaskID:     id,
					Message:    fmt.Sprintf("link to %q is not reciprocated", link),
					Suggestion: "affinity links are symmetric by convention; add the reverse link",
				})
			}
		}
	}

	r.finalize()
	v.record(r)
	return r
}

// ScheduleSummary is the view of a planning result the validator checks.
type ScheduleSummary struct {
	// Ordered is the planned execution order.
	Ordered []*task.Task

	// TotalTime is the estimated makespan.
	TotalTime time.Duration

	// Efficiency is the ratio of summed durations to TotalTime.
	Efficiency float64
}

// ValidateScheduleResult checks completeness, dependency-respecting order,
// and the plausibility of the reported time and efficiency figures.
func (v *Validator) ValidateScheduleResult(s *ScheduleSummary) *Result {
	r := newResult()
	if s == nil {
		r.addIssue(Issue{Severity: SeverityCritical, Code: CodeIncompleteSchedule, Message: "schedule is nil"})
		r.finalize()
		v.record(r)
		return r
	}

	position := make(map[string]int, len(s.Ordered))
	for i, t := range s.Ordered {
		if t == nil || t.ID == "" {
			r.addIssue(Issue{
				Severity: SeverityCritical,
				Code:     CodeIncompleteSchedule,
				Message:  fmt.Sprintf("schedule entry %d has no task", i),
			})
			continue
		}
		position[t.ID] = i
	}

	// A task may not precede any of its dependencies.
	for _, t := range s.Ordered {
		if t == nil {
			continue
		}
		for _, dep := range t.Dependencies {
			depPos, ok := position[dep]
			if !ok {
				continue // dependency outside the schedule; set validation covers it
			}
			if depPos > position[t.ID] {
				r.addIssue(Issue{
					Severity: SeverityCritical,
					Code:     CodeOrderViolation,
					TaskID:   t.ID,
					Message:  fmt.Sprintf("task %q scheduled before its dependency %q", t.ID, dep),
				})
			}
		}
	}

	if len(s.Ordered) > 0 && s.TotalTime <= 0 {
		r.addIssue(Issue{
			Severity: SeverityError,
			Code:     CodeInvalidTotalTime,
			Field:    "total_time",
			Message:  "total time must be positive for a non-empty schedule",
		})
	}

	if s.Efficiency < 0 || s.Efficiency > 2.0 {
		r.addIssue(Issue{
			Severity: SeverityError,
			Code:     CodeInvalidEfficiency,
			Field:    "efficiency",
			Message:  fmt.Sprintf("efficiency %v outside [0, 2.0]", s.Efficiency),
		})
	} else if s.Efficiency < 0.5 && len(s.Ordered) > 0 {
		r.addWarning(Warning{
			Code:       CodeLowEfficiency,
			Field:      "efficiency",
			Message:    fmt.Sprintf("efficiency %v is low", s.Efficiency),
			Suggestion: "review parallelizability estimates or resource ceilings",
		})
	}

	r.finalize()
	v.record(r)
	return r
}

func resourceInvalidCode(dim string) string {
	return codeResourceInvalidPrefix + strings.ToUpper(dim) + "_REQUIREMENT"
}

func resourceShortCode(dim string) string {
	return codeResourceShortPrefix + strings.ToUpper(dim)
}
