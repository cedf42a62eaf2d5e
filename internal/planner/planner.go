// Package planner owns the task registry and affinity graph, builds
// optimization problems from them, and turns solver output into a
// dependency-respecting execution order.
//
// The registry obeys a single-writer discipline: AddTask, RemoveTask,
// EntangleTasks, and completion propagation are serialized on one mutex,
// and planning reads a point-in-time snapshot so it never races a
// concurrent mutation. Replanning triggered while running is asynchronous
// and best-effort: overlapping requests coalesce into at most one queued
// follow-up run.
package planner

import (
	"context"
	"sync"
	"time"

	"github.com/danieleschmidt/nerf-edge-sched/internal/anneal"
	"github.com/danieleschmidt/nerf-edge-sched/internal/errors"
	"github.com/danieleschmidt/nerf-edge-sched/internal/event"
	"github.com/danieleschmidt/nerf-edge-sched/internal/logging"
	"github.com/danieleschmidt/nerf-edge-sched/internal/task"
	"github.com/danieleschmidt/nerf-edge-sched/internal/validate"
)

// confidenceDecayPerLink is how much confidence each affinity link costs.
const confidenceDecayPerLink = 0.1

// Executor runs a task to completion. Implementations must self-bound and
// never block indefinitely; the planner imposes no additional timeout.
type Executor interface {
	Execute(ctx context.Context, t *task.Task) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, t *task.Task) error

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, t *task.Task) error {
	return f(ctx, t)
}

// Config holds the planner's construction-time settings.
type Config struct {
	// Available is the resource capacity the optimizer schedules against.
	Available task.ResourceVector

	// InitialTemperature, CoolingRate, MinTemperature, and MaxIterations
	// configure the annealing schedule. Zero values use solver defaults.
	InitialTemperature float64
	CoolingRate        float64
	MinTemperature     float64
	MaxIterations      int

	// ReplanInterval is the period of the automatic replan ticker while
	// running. Zero disables periodic replanning.
	ReplanInterval time.Duration

	// Seed fixes the annealing random source when non-zero.
	Seed int64
}

// Planner schedules tasks for execution. All exported methods are safe for
// concurrent use.
type Planner struct {
	cfg      Config
	executor Executor
	bus      *event.Bus
	log      *logging.Logger
	check    *validate.Validator

	mu       sync.Mutex
	tasks    map[string]*task.Task
	schedule []string // planned execution order, head first
	lastPlan *Result
	running  bool

	replanCh chan struct{}
	stopCh   chan struct{}
	wg       sync.WaitGroup

	errCh chan error
}

// New creates a Planner. The executor is required; bus, logger, and
// validator fall back to no-op or default instances when nil.
func New(cfg Config, executor Executor, bus *event.Bus, log *logging.Logger, check *validate.Validator) *Planner {
	if bus == nil {
		bus = event.NewBus()
	}
	if log == nil {
		log = logging.NopLogger()
	}
	if check == nil {
		check = validate.New(validate.DefaultLimits())
	}
	return &Planner{
		cfg:      cfg,
		executor: executor,
		bus:      bus,
		log:      log.WithComponent("planner"),
		check:    check,
		tasks:    make(map[string]*task.Task),
		replanCh: make(chan struct{}, 1),
		errCh:    make(chan error, 16),
	}
}

// Errors returns the channel on which background planning failures are
// reported. The channel is buffered and never closed; sends are
// best-effort, so slow readers drop old errors rather than block planning.
func (p *Planner) Errors() <-chan error {
	return p.errCh
}

// Start transitions the planner from stopped to running, performs the
// first plan synchronously, and begins consuming replan requests. The
// first plan's failure is reported on the error channel, not returned:
// a planner with an empty or briefly invalid registry still starts.
func (p *Planner) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.ErrPlannerRunning
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	if _, err := p.PlanOptimal(); err != nil {
		p.reportError(err)
	}

	p.wg.Add(1)
	go p.replanLoop()
	return nil
}

// Stop halts periodic replanning. In-flight planning is allowed to finish;
// in-flight execution completes or fails naturally.
func (p *Planner) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return errors.ErrPlannerStopped
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// Running reports whether the planner is in the running state.
func (p *Planner) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// replanLoop consumes coalesced replan requests and the periodic ticker.
func (p *Planner) replanLoop() {
	defer p.wg.Done()

	var tick <-chan time.Time
	if p.cfg.ReplanInterval > 0 {
		ticker := time.NewTicker(p.cfg.ReplanInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-p.stopCh:
			return
		case <-p.replanCh:
		case <-tick:
		}

		if _, err := p.PlanOptimal(); err != nil {
			p.reportError(err)
		}
	}
}

// requestReplan signals the background loop. The buffered channel
// coalesces requests: one queued signal is enough to guarantee a fresh
// plan after the current one.
func (p *Planner) requestReplan() {
	select {
	case p.replanCh <- struct{}{}:
	default:
	}
}

// reportError delivers a background failure without ever blocking.
func (p *Planner) reportError(err error) {
	p.log.Error("planning failed", "error", err)
	select {
	case p.errCh <- err:
	default:
	}
}

// AddTask registers a task. Fails if a task with the same ID exists.
// While running, a coalesced replan is requested.
func (p *Planner) AddTask(t *task.Task) error {
	if t == nil || t.ID == "" {
		return errors.ErrInvalidInput
	}

	p.mu.Lock()
	if _, ok := p.tasks[t.ID]; ok {
		p.mu.Unlock()
		return errors.NewPlannerError("cannot add task", errors.ErrTaskExists).WithTaskID(t.ID)
	}
	p.tasks[t.ID] = t.Clone()
	running := p.running
	p.mu.Unlock()

	p.bus.Publish(event.NewTaskAddedEvent(t.ID, t.Priority))
	p.log.Debug("task added", "task_id", t.ID, "priority", t.Priority)

	if running {
		p.requestReplan()
	}
	return nil
}

// RemoveTask unregisters a task and scrubs dangling references to it from
// the remaining tasks' dependencies and affinity links. Fails without
// mutating state if the task is unknown.
func (p *Planner) RemoveTask(id string) error {
	p.mu.Lock()
	if _, ok := p.tasks[id]; !ok {
		p.mu.Unlock()
		return errors.NewNotFoundError("task", id)
	}
	delete(p.tasks, id)
	p.scrubReferencesLocked(id)
	p.dropFromScheduleLocked(id)
	running := p.running
	p.mu.Unlock()

	p.bus.Publish(event.NewTaskRemovedEvent(id, "removed"))
	p.log.Debug("task removed", "task_id", id)

	if running {
		p.requestReplan()
	}
	return nil
}

// scrubReferencesLocked removes dependency and affinity references to a
// departed task. Confidence is recomputed for tasks that lost a link.
func (p *Planner) scrubReferencesLocked(id string) {
	for _, t := range p.tasks {
		for i, dep := range t.Dependencies {
			if dep == id {
				t.Dependencies = append(t.Dependencies[:i], t.Dependencies[i+1:]...)
				break
			}
		}
		if t.Heuristics.RemoveLink(id) {
			t.Heuristics.Confidence = linkConfidence(len(t.Heuristics.AffinityLinks))
		}
	}
}

// dropFromScheduleLocked removes a task from the pending schedule.
func (p *Planner) dropFromScheduleLocked(id string) {
	for i, sid := range p.schedule {
		if sid == id {
			p.schedule = append(p.schedule[:i], p.schedule[i+1:]...)
			return
		}
	}
}

// RemoveDependency drops a single dependency edge from a task. Used by
// recovery when breaking a reported dependency cycle.
func (p *Planner) RemoveDependency(taskID, dependencyID string) error {
	p.mu.Lock()
	t, ok := p.tasks[taskID]
	if !ok {
		p.mu.Unlock()
		return errors.NewNotFoundError("task", taskID)
	}
	removed := false
	for i, dep := range t.Dependencies {
		if dep == dependencyID {
			t.Dependencies = append(t.Dependencies[:i], t.Dependencies[i+1:]...)
			removed = true
			break
		}
	}
	running := p.running
	p.mu.Unlock()

	if !removed {
		return errors.NewNotFoundError("dependency", dependencyID)
	}
	p.log.Debug("dependency removed", "task_id", taskID, "dependency_id", dependencyID)
	if running {
		p.requestReplan()
	}
	return nil
}

// EntangleTasks adds a symmetric affinity link between two tasks and
// decays both tasks' confidence according to their link count. The
// operation is idempotent: linking twice leaves a single link.
func (p *Planner) EntangleTasks(a, b string) error {
	if a == b {
		return errors.NewPlannerError("cannot link a task to itself", errors.ErrInvalidInput).WithTaskID(a)
	}

	p.mu.Lock()
	ta, ok := p.tasks[a]
	if !ok {
		p.mu.Unlock()
		return errors.NewNotFoundError("task", a)
	}
	tb, ok := p.tasks[b]
	if !ok {
		p.mu.Unlock()
		return errors.NewNotFoundError("task", b)
	}

	ta.Heuristics.AddLink(b)
	tb.Heuristics.AddLink(a)
	ta.Heuristics.Confidence = linkConfidence(len(ta.Heuristics.AffinityLinks))
	tb.Heuristics.Confidence = linkConfidence(len(tb.Heuristics.AffinityLinks))
	running := p.running
	p.mu.Unlock()

	p.log.Debug("tasks linked", "a", a, "b", b)
	if running {
		p.requestReplan()
	}
	return nil
}

// linkConfidence is the confidence of a task with n affinity links:
// each link costs a tenth, floored at the confidence floor.
func linkConfidence(n int) float64 {
	c := 1 - confidenceDecayPerLink*float64(n)
	if c < task.ConfidenceFloor {
		return task.ConfidenceFloor
	}
	return c
}

// GetTask returns a copy of the task with the given ID, or an error if it
// is not registered.
func (p *Planner) GetTask(id string) (*task.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tasks[id]
	if !ok {
		return nil, errors.NewNotFoundError("task", id)
	}
	return t.Clone(), nil
}

// TaskCount returns the number of registered tasks.
func (p *Planner) TaskCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// GetSchedule returns copies of the tasks still pending execution, in
// planned order.
func (p *Planner) GetSchedule() []*task.Task {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*task.Task, 0, len(p.schedule))
	for _, id := range p.schedule {
		if t, ok := p.tasks[id]; ok {
			out = append(out, t.Clone())
		}
	}
	return out
}

// LastPlan returns the most recent planning result, or nil before the
// first successful plan.
func (p *Planner) LastPlan() *Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPlan
}

// snapshot clones the registry for a read-only planning pass.
func (p *Planner) snapshot() map[string]*task.Task {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]*task.Task, len(p.tasks))
	for id, t := range p.tasks {
		out[id] = t.Clone()
	}
	return out
}

// solver builds an annealing solver from the configured schedule knobs.
func (p *Planner) solver() *anneal.Solver {
	var opts []anneal.Option
	if p.cfg.InitialTemperature > 0 {
		opts = append(opts, anneal.WithInitialTemperature(p.cfg.InitialTemperature))
	}
	if p.cfg.CoolingRate > 0 {
		opts = append(opts, anneal.WithCoolingRate(p.cfg.CoolingRate))
	}
	if p.cfg.MinTemperature > 0 {
		opts = append(opts, anneal.WithMinTemperature(p.cfg.MinTemperature))
	}
	if p.cfg.MaxIterations > 0 {
		opts = append(opts, anneal.WithMaxIterations(p.cfg.MaxIterations))
	}
	if p.cfg.Seed != 0 {
		opts = append(opts, anneal.WithSeed(p.cfg.Seed))
	}
	return anneal.NewSolver(opts...)
}
