package planner

import (
	"sort"
	"time"

	"github.com/danieleschmidt/nerf-edge-sched/internal/anneal"
	"github.com/danieleschmidt/nerf-edge-sched/internal/errors"
	"github.com/danieleschmidt/nerf-edge-sched/internal/event"
	"github.com/danieleschmidt/nerf-edge-sched/internal/task"
	"github.com/danieleschmidt/nerf-edge-sched/internal/validate"
)

// Result is the outcome of one planning pass.
type Result struct {
	// Ordered is the planned execution order, dependencies first.
	Ordered []*task.Task

	// Excluded lists registered tasks the plan left out, either because
	// validation blocked them or the optimizer deselected them.
	Excluded []string

	// TotalTime is the estimated makespan of the ordered schedule.
	TotalTime time.Duration

	// Efficiency is the ratio of summed task durations to TotalTime.
	// Above 1 means concurrency grouping compressed the schedule.
	Efficiency float64

	// Advantage is the relative gain over executing every scheduled task
	// serially, floored at zero.
	Advantage float64

	// Feasible reports whether the optimizer found a constraint-satisfying
	// assignment. An infeasible plan is still ordered and usable.
	Feasible bool

	// Objective is the optimizer's objective value for the assignment.
	Objective float64

	// PlannedAt is when the pass finished.
	PlannedAt time.Time
}

// PlanOptimal runs a full planning pass over the current registry: validate
// the task set, build and solve the selection problem, order the selected
// tasks, and install the schedule. Critical validation findings abort the
// pass; error findings exclude only the offending tasks.
func (p *Planner) PlanOptimal() (*Result, error) {
	tasks := p.snapshot()
	if len(tasks) == 0 {
		return nil, errors.NewPlannerError("no tasks to plan", errors.ErrScheduleEmpty)
	}

	vr := p.check.ValidateTaskSet(tasks)
	if vr.CriticalCount() > 0 {
		first := firstCritical(vr)
		cause := errors.ErrInvalidInput
		if first.Code == validate.CodeDependencyCycle {
			cause = errors.ErrDependencyCycle
		}
		return nil, errors.NewPlannerError("task set failed validation: "+first.Message, cause).
			WithTaskID(first.TaskID).
			WithSeverity(errors.SeverityCritical)
	}

	candidates := p.partitionBlocked(tasks, vr)
	if len(candidates) == 0 {
		return nil, errors.NewPlannerError("every task was blocked by validation", errors.ErrNoFeasibleSolution)
	}

	ids := sortedIDs(candidates)
	problem := p.buildProblem(ids, candidates)

	sol, err := p.solver().Solve(problem)
	if err != nil {
		return nil, err
	}

	included := decodeAssignment(ids, candidates, sol.Values)
	ordered := orderByDependencies(included, candidates)

	total := estimateTotalTime(ordered)
	sum := sumDurations(ordered)
	efficiency := 0.0
	if total > 0 {
		efficiency = float64(sum) / float64(total)
	}
	advantage := serialAdvantage(sum, total)

	result := &Result{
		Ordered:    ordered,
		Excluded:   excludedIDs(tasks, ordered),
		TotalTime:  total,
		Efficiency: efficiency,
		Advantage:  advantage,
		Feasible:   sol.Feasible,
		Objective:  sol.Objective,
		PlannedAt:  time.Now(),
	}

	p.installSchedule(result)

	p.bus.Publish(event.NewPlanCompletedEvent(len(ordered), total, efficiency, advantage))
	p.log.Info("plan completed",
		"tasks", len(ordered),
		"excluded", len(result.Excluded),
		"total_time", total,
		"efficiency", efficiency,
		"advantage", advantage,
		"feasible", sol.Feasible,
		"iterations", sol.Iterations,
	)
	return result, nil
}

// partitionBlocked splits the snapshot into plannable candidates and tasks
// blocked by an error-severity finding naming them.
func (p *Planner) partitionBlocked(tasks map[string]*task.Task, vr *validate.Result) map[string]*task.Task {
	blocked := make(map[string]bool)
	for _, issue := range vr.Errors {
		if issue.Severity == validate.SeverityError && issue.TaskID != "" {
			blocked[issue.TaskID] = true
		}
	}

	candidates := make(map[string]*task.Task, len(tasks))
	for id, t := range tasks {
		if !blocked[id] {
			candidates[id] = t
		}
	}

	// A candidate depending on a blocked task cannot run either.
	for changed := true; changed; {
		changed = false
		for id, t := range candidates {
			for _, dep := range t.Dependencies {
				if blocked[dep] {
					blocked[id] = true
					delete(candidates, id)
					changed = true
					break
				}
			}
		}
	}

	if len(blocked) > 0 {
		p.log.Warn("tasks excluded from planning", "count", len(blocked))
	}
	return candidates
}

// buildProblem maps the candidate set onto decision variables: one variable
// per task, a resource-capacity constraint per dimension, a coupling
// constraint per dependency edge, and an inclusion floor for tasks modeled
// as concurrent.
func (p *Planner) buildProblem(ids []string, tasks map[string]*task.Task) *anneal.Problem {
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	problem := &anneal.Problem{
		Variables: len(ids),
		Objective: make([]float64, len(ids)),
	}
	for i, id := range ids {
		problem.Objective[i] = tasks[id].Score()
	}

	for _, dim := range task.Dimensions() {
		capacity := p.cfg.Available.Dimension(dim)
		if capacity <= 0 {
			continue
		}
		coeffs := make(map[int]float64)
		for i, id := range ids {
			if demand := tasks[id].Resources.Dimension(dim); demand > 0 {
				coeffs[i] = demand
			}
		}
		if len(coeffs) == 0 {
			continue
		}
		problem.Constraints = append(problem.Constraints, anneal.Constraint{
			Coeffs: coeffs,
			Bound:  capacity,
			Sense:  anneal.LessEq,
			Label:  "capacity." + dim,
		})
	}

	// A task may not be selected more strongly than any of its dependencies.
	for _, id := range ids {
		for _, dep := range tasks[id].Dependencies {
			depIdx, ok := index[dep]
			if !ok {
				continue
			}
			problem.Constraints = append(problem.Constraints, anneal.Constraint{
				Coeffs: map[int]float64{depIdx: 1, index[id]: -1},
				Bound:  0,
				Sense:  anneal.GreaterEq,
				Label:  "dependency." + id,
			})
		}
	}

	// Highly parallelizable tasks carry an inclusion floor so concurrency
	// groups survive selection.
	for i, id := range ids {
		if tasks[id].Heuristics.Parallelizability > 0.5 {
			problem.Constraints = append(problem.Constraints, anneal.Constraint{
				Coeffs: map[int]float64{i: 1},
				Bound:  0.5,
				Sense:  anneal.GreaterEq,
				Label:  "parallel." + id,
			})
		}
	}

	return problem
}

// decodeAssignment maps solver values back onto task IDs: a value of at
// least 0.5 selects the task. Selection is then closed over dependencies so
// an infeasible assignment can never produce a schedule with missing
// prerequisites.
func decodeAssignment(ids []string, tasks map[string]*task.Task, values []float64) map[string]bool {
	included := make(map[string]bool)
	for i, id := range ids {
		if i < len(values) && values[i] >= 0.5 {
			included[id] = true
		}
	}

	queue := make([]string, 0, len(included))
	for id := range included {
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range tasks[id].Dependencies {
			if !included[dep] {
				if _, ok := tasks[dep]; ok {
					included[dep] = true
					queue = append(queue, dep)
				}
			}
		}
	}
	return included
}

// orderByDependencies produces a topological order over the included tasks.
// Among ready tasks the highest order score goes first; the ready set is
// re-evaluated after every pick so freshly unblocked tasks compete
// immediately.
func orderByDependencies(included map[string]bool, tasks map[string]*task.Task) []*task.Task {
	remaining := make(map[string]*task.Task, len(included))
	for id := range included {
		remaining[id] = tasks[id]
	}

	done := make(map[string]bool, len(remaining))
	ordered := make([]*task.Task, 0, len(remaining))

	for len(remaining) > 0 {
		var pick *task.Task
		for _, t := range remaining {
			if !depsSatisfied(t, included, done) {
				continue
			}
			if pick == nil || betterPick(t, pick) {
				pick = t
			}
		}
		if pick == nil {
			// Unreachable for validated acyclic sets; bail rather than spin.
			break
		}
		ordered = append(ordered, pick)
		done[pick.ID] = true
		delete(remaining, pick.ID)
	}
	return ordered
}

// depsSatisfied reports whether every in-schedule dependency has been
// placed. Dependencies outside the included set do not gate ordering; the
// closure in decodeAssignment keeps that case from arising for known tasks.
func depsSatisfied(t *task.Task, included, done map[string]bool) bool {
	for _, dep := range t.Dependencies {
		if included[dep] && !done[dep] {
			return false
		}
	}
	return true
}

// betterPick ranks ready tasks: order score first, then weight phase, then
// ID for determinism.
func betterPick(a, b *task.Task) bool {
	as, bs := a.OrderScore(), b.OrderScore()
	if as != bs {
		return as > bs
	}
	ap, bp := a.Heuristics.Weight.Phase(), b.Heuristics.Weight.Phase()
	if ap != bp {
		return ap > bp
	}
	return a.ID < b.ID
}

// estimateTotalTime walks the order and sums run lengths. Consecutive runs
// of tasks with parallelizability above 0.5 are modeled as overlapping:
// the run costs its longest duration stretched by the least parallelizable
// member. Runs of one task execute serially.
func estimateTotalTime(ordered []*task.Task) time.Duration {
	var total time.Duration
	for i := 0; i < len(ordered); {
		if ordered[i].Heuristics.Parallelizability <= 0.5 {
			total += ordered[i].EstimatedDuration
			i++
			continue
		}

		j := i
		longest := time.Duration(0)
		minPar := 1.0
		for j < len(ordered) && ordered[j].Heuristics.Parallelizability > 0.5 {
			if d := ordered[j].EstimatedDuration; d > longest {
				longest = d
			}
			if par := ordered[j].Heuristics.Parallelizability; par < minPar {
				minPar = par
			}
			j++
		}

		if j-i == 1 {
			total += ordered[i].EstimatedDuration
		} else {
			total += time.Duration(float64(longest) * (1 - minPar))
		}
		i = j
	}
	return total
}

// sumDurations is the serial cost of the scheduled tasks, which is also the
// classical baseline: serial execution takes the same total regardless of
// order.
func sumDurations(ordered []*task.Task) time.Duration {
	var sum time.Duration
	for _, t := range ordered {
		sum += t.EstimatedDuration
	}
	return sum
}

// serialAdvantage is the relative makespan gain over the serial baseline,
// floored at zero.
func serialAdvantage(serial, total time.Duration) float64 {
	if serial <= 0 || total >= serial {
		return 0
	}
	return float64(serial-total) / float64(serial)
}

// installSchedule atomically replaces the pending schedule and last plan.
func (p *Planner) installSchedule(r *Result) {
	ids := make([]string, len(r.Ordered))
	for i, t := range r.Ordered {
		ids[i] = t.ID
	}

	p.mu.Lock()
	p.schedule = ids
	p.lastPlan = r
	p.mu.Unlock()
}

// excludedIDs lists registered tasks absent from the final order.
func excludedIDs(all map[string]*task.Task, ordered []*task.Task) []string {
	inPlan := make(map[string]bool, len(ordered))
	for _, t := range ordered {
		inPlan[t.ID] = true
	}

	var out []string
	for id := range all {
		if !inPlan[id] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// firstCritical returns the first critical finding of a result.
func firstCritical(r *validate.Result) validate.Issue {
	for _, issue := range r.Errors {
		if issue.Severity == validate.SeverityCritical {
			return issue
		}
	}
	return validate.Issue{Message: "unknown critical finding"}
}

// sortedIDs returns map keys in lexical order for deterministic variable
// numbering.
func sortedIDs(tasks map[string]*task.Task) []string {
	ids := make([]string, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
