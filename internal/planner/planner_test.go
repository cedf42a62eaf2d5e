package planner

import (
	"context"
	"testing"
	"time"

	"github.com/danieleschmidt/nerf-edge-sched/internal/errors"
	"github.com/danieleschmidt/nerf-edge-sched/internal/event"
	"github.com/danieleschmidt/nerf-edge-sched/internal/task"
)

// newTestPlanner builds a planner with generous capacity, a fixed seed, and
// a no-op executor unless one is given.
func newTestPlanner(t *testing.T, exec Executor) *Planner {
	t.Helper()
	if exec == nil {
		exec = ExecutorFunc(func(context.Context, *task.Task) error { return nil })
	}
	cfg := Config{
		Available:      task.ResourceVector{CPU: 1000, Memory: 1e6, GPU: 100, Bandwidth: 1e6},
		MaxIterations:  20000,
		MinTemperature: 1e-12,
		Seed:           42,
	}
	return New(cfg, exec, event.NewBus(), nil, nil)
}

func TestPlanner_AddTask(t *testing.T) {
	p := newTestPlanner(t, nil)

	if err := p.AddTask(task.New("a", 0.5, 100*time.Millisecond)); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if p.TaskCount() != 1 {
		t.Errorf("TaskCount = %d, want 1", p.TaskCount())
	}

	err := p.AddTask(task.New("a", 0.9, time.Second))
	if !errors.Is(err, errors.ErrTaskExists) {
		t.Errorf("duplicate AddTask error = %v, want ErrTaskExists", err)
	}

	if err := p.AddTask(nil); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("AddTask(nil) error = %v, want ErrInvalidInput", err)
	}
}

func TestPlanner_AddTask_ClonesInput(t *testing.T) {
	p := newTestPlanner(t, nil)

	in := task.New("a", 0.5, 100*time.Millisecond)
	if err := p.AddTask(in); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	in.Priority = 0.99
	got, err := p.GetTask("a")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Priority != 0.5 {
		t.Errorf("registry task mutated through caller reference: priority = %v", got.Priority)
	}
}

func TestPlanner_RemoveTask(t *testing.T) {
	p := newTestPlanner(t, nil)

	if err := p.RemoveTask("ghost"); !errors.Is(err, errors.ErrTaskNotFound) {
		t.Fatalf("RemoveTask(unknown) error = %v, want ErrTaskNotFound", err)
	}

	a := task.New("a", 0.5, 100*time.Millisecond)
	b := task.New("b", 0.5, 100*time.Millisecond)
	b.Dependencies = []string{"a"}
	for _, tk := range []*task.Task{a, b} {
		if err := p.AddTask(tk); err != nil {
			t.Fatalf("AddTask(%s): %v", tk.ID, err)
		}
	}
	if err := p.EntangleTasks("a", "b"); err != nil {
		t.Fatalf("EntangleTasks: %v", err)
	}

	if err := p.RemoveTask("a"); err != nil {
		t.Fatalf("RemoveTask: %v", err)
	}

	got, err := p.GetTask("b")
	if err != nil {
		t.Fatalf("GetTask(b): %v", err)
	}
	if len(got.Dependencies) != 0 {
		t.Errorf("dangling dependency survived removal: %v", got.Dependencies)
	}
	if got.Heuristics.HasLink("a") {
		t.Error("dangling affinity link survived removal")
	}
	if got.Heuristics.Confidence != 1 {
		t.Errorf("confidence = %v after losing only link, want 1", got.Heuristics.Confidence)
	}
}

func TestPlanner_RemoveDependency(t *testing.T) {
	p := newTestPlanner(t, nil)

	a := task.New("a", 0.5, 100*time.Millisecond)
	a.Dependencies = []string{"b", "c"}
	for _, tk := range []*task.Task{a, task.New("b", 0.5, time.Millisecond), task.New("c", 0.5, time.Millisecond)} {
		if err := p.AddTask(tk); err != nil {
			t.Fatalf("AddTask(%s): %v", tk.ID, err)
		}
	}

	if err := p.RemoveDependency("ghost", "b"); !errors.Is(err, errors.ErrTaskNotFound) {
		t.Fatalf("RemoveDependency(unknown task) error = %v, want ErrTaskNotFound", err)
	}
	if err := p.RemoveDependency("a", "ghost"); err == nil {
		t.Fatal("RemoveDependency(unknown edge) succeeded, want error")
	}

	if err := p.RemoveDependency("a", "b"); err != nil {
		t.Fatalf("RemoveDependency: %v", err)
	}
	got, err := p.GetTask("a")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.DependsOn("b") || !got.DependsOn("c") {
		t.Errorf("dependencies = %v, want only c", got.Dependencies)
	}
}

func TestPlanner_EntangleTasks(t *testing.T) {
	p := newTestPlanner(t, nil)
	for _, id := range []string{"a", "b", "c"} {
		if err := p.AddTask(task.New(id, 0.5, 100*time.Millisecond)); err != nil {
			t.Fatalf("AddTask(%s): %v", id, err)
		}
	}

	if err := p.EntangleTasks("a", "missing"); !errors.Is(err, errors.ErrTaskNotFound) {
		t.Errorf("link to unknown task error = %v, want ErrTaskNotFound", err)
	}
	if err := p.EntangleTasks("a", "a"); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("self link error = %v, want ErrInvalidInput", err)
	}

	if err := p.EntangleTasks("a", "b"); err != nil {
		t.Fatalf("EntangleTasks: %v", err)
	}
	// Idempotent: a second link changes nothing.
	if err := p.EntangleTasks("a", "b"); err != nil {
		t.Fatalf("EntangleTasks repeat: %v", err)
	}
	if err := p.EntangleTasks("a", "c"); err != nil {
		t.Fatalf("EntangleTasks: %v", err)
	}

	a, _ := p.GetTask("a")
	b, _ := p.GetTask("b")
	if len(a.Heuristics.AffinityLinks) != 2 {
		t.Errorf("a links = %v, want 2 entries", a.Heuristics.AffinityLinks)
	}
	if !b.Heuristics.HasLink("a") {
		t.Error("link is not symmetric")
	}
	if a.Heuristics.Confidence != 0.8 {
		t.Errorf("a confidence = %v, want 0.8 after two links", a.Heuristics.Confidence)
	}
	if b.Heuristics.Confidence != 0.9 {
		t.Errorf("b confidence = %v, want 0.9 after one link", b.Heuristics.Confidence)
	}
}

func TestLinkConfidence_Floor(t *testing.T) {
	if got := linkConfidence(50); got != task.ConfidenceFloor {
		t.Errorf("linkConfidence(50) = %v, want floor %v", got, task.ConfidenceFloor)
	}
	if got := linkConfidence(0); got != 1 {
		t.Errorf("linkConfidence(0) = %v, want 1", got)
	}
}

func TestPlanner_StartStop(t *testing.T) {
	p := newTestPlanner(t, nil)
	if err := p.AddTask(task.New("a", 0.5, 100*time.Millisecond)); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	if err := p.Stop(); !errors.Is(err, errors.ErrPlannerStopped) {
		t.Errorf("Stop before Start error = %v, want ErrPlannerStopped", err)
	}

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !p.Running() {
		t.Error("Running = false after Start")
	}
	if err := p.Start(); !errors.Is(err, errors.ErrPlannerRunning) {
		t.Errorf("double Start error = %v, want ErrPlannerRunning", err)
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.Running() {
		t.Error("Running = true after Stop")
	}

	// A stopped planner can be restarted.
	if err := p.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop after restart: %v", err)
	}
}

func TestPlanner_StartPlansImmediately(t *testing.T) {
	p := newTestPlanner(t, nil)
	if err := p.AddTask(task.New("a", 0.9, 100*time.Millisecond)); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	if p.LastPlan() == nil {
		t.Fatal("LastPlan = nil after Start")
	}
	if got := p.GetSchedule(); len(got) != 1 || got[0].ID != "a" {
		t.Errorf("GetSchedule = %v, want [a]", got)
	}
}

func TestPlanner_AddTaskWhileRunningTriggersReplan(t *testing.T) {
	p := newTestPlanner(t, nil)
	if err := p.AddTask(task.New("a", 0.9, 100*time.Millisecond)); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	if err := p.AddTask(task.New("b", 0.8, 100*time.Millisecond)); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(p.GetSchedule()) == 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("schedule never picked up the new task: %d entries", len(p.GetSchedule()))
}

func TestPlanner_ExecuteNext(t *testing.T) {
	var ran []string
	exec := ExecutorFunc(func(_ context.Context, tk *task.Task) error {
		ran = append(ran, tk.ID)
		return nil
	})
	p := newTestPlanner(t, exec)

	a := task.New("a", 0.9, 50*time.Millisecond)
	b := task.New("b", 0.8, 75*time.Millisecond)
	b.Dependencies = []string{"a"}
	for _, tk := range []*task.Task{a, b} {
		if err := p.AddTask(tk); err != nil {
			t.Fatalf("AddTask(%s): %v", tk.ID, err)
		}
	}
	if _, err := p.PlanOptimal(); err != nil {
		t.Fatalf("PlanOptimal: %v", err)
	}

	for {
		tk, err := p.ExecuteNext(context.Background())
		if err != nil {
			t.Fatalf("ExecuteNext: %v", err)
		}
		if tk == nil {
			break
		}
	}

	if len(ran) != 2 || ran[0] != "a" || ran[1] != "b" {
		t.Errorf("execution order = %v, want [a b]", ran)
	}
	if p.TaskCount() != 0 {
		t.Errorf("TaskCount = %d after draining, want 0", p.TaskCount())
	}
}

func TestPlanner_ExecuteNext_EmptySchedule(t *testing.T) {
	p := newTestPlanner(t, nil)
	tk, err := p.ExecuteNext(context.Background())
	if err != nil {
		t.Fatalf("ExecuteNext: %v", err)
	}
	if tk != nil {
		t.Errorf("ExecuteNext on empty schedule returned %v, want nil", tk.ID)
	}
}

func TestPlanner_ExecuteNext_FailureKeepsTask(t *testing.T) {
	boom := errors.New("render device lost")
	exec := ExecutorFunc(func(context.Context, *task.Task) error { return boom })
	p := newTestPlanner(t, exec)

	var failed []string
	p.bus.Subscribe("task.failed", func(e event.Event) {
		failed = append(failed, e.(event.TaskFailedEvent).TaskID)
	})

	if err := p.AddTask(task.New("a", 0.9, 50*time.Millisecond)); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if _, err := p.PlanOptimal(); err != nil {
		t.Fatalf("PlanOptimal: %v", err)
	}

	tk, err := p.ExecuteNext(context.Background())
	if err == nil {
		t.Fatal("ExecuteNext succeeded, want executor error")
	}
	if !errors.Is(err, boom) {
		t.Errorf("error does not wrap the executor failure: %v", err)
	}
	if !errors.IsRetryable(err) {
		t.Error("execution failure should be retryable")
	}
	if tk == nil || tk.ID != "a" {
		t.Errorf("failed task = %v, want a", tk)
	}
	if p.TaskCount() != 1 {
		t.Errorf("TaskCount = %d after failure, want task retained", p.TaskCount())
	}
	if len(failed) != 1 || failed[0] != "a" {
		t.Errorf("task.failed events = %v, want [a]", failed)
	}
}

func TestPlanner_CompletionPropagatesWeight(t *testing.T) {
	p := newTestPlanner(t, nil)

	a := task.New("a", 0.9, 50*time.Millisecond)
	a.Heuristics.Weight = task.Weight{X: 0.6, Y: 0}
	b := task.New("b", 0.8, 75*time.Millisecond)
	b.Heuristics.Weight = task.Weight{X: 0.5, Y: 0}
	for _, tk := range []*task.Task{a, b} {
		if err := p.AddTask(tk); err != nil {
			t.Fatalf("AddTask(%s): %v", tk.ID, err)
		}
	}
	if err := p.EntangleTasks("a", "b"); err != nil {
		t.Fatalf("EntangleTasks: %v", err)
	}

	p.completeTask("a")

	got, err := p.GetTask("b")
	if err != nil {
		t.Fatalf("GetTask(b): %v", err)
	}
	norm := got.Heuristics.Weight.Norm()
	if diff := norm - 0.3; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("propagated norm = %v, want 0.3", norm)
	}
	if diff := got.Heuristics.Parallelizability - 0.3; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("parallelizability = %v, want recomputed from norm 0.3", got.Heuristics.Parallelizability)
	}
	if got.Heuristics.HasLink("a") {
		t.Error("link to completed task survived")
	}
	if got.Heuristics.Confidence != 1 {
		t.Errorf("confidence = %v after losing only link, want 1", got.Heuristics.Confidence)
	}
}

func TestPropagateWeight_Clamps(t *testing.T) {
	h := task.HeuristicState{Weight: task.Weight{X: 0.2, Y: 0}}
	propagateWeight(&h, task.Weight{X: 0.1, Y: 0})

	norm := h.Weight.Norm()
	if diff := norm - minPropagatedNorm; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("tiny product norm = %v, want clamped to %v", norm, minPropagatedNorm)
	}

	h = task.HeuristicState{Weight: task.Weight{X: 1.05, Y: 0}}
	propagateWeight(&h, task.Weight{X: 1.04, Y: 0})
	if n := h.Weight.Norm(); n > maxPropagatedNorm+1e-9 {
		t.Errorf("large product norm = %v, want clamped to %v", n, maxPropagatedNorm)
	}
}
