package pool

import (
	"testing"
	"time"

	"github.com/danieleschmidt/nerf-edge-sched/internal/task"
)

func testWorkers(n int) []*Worker {
	p := testPool()
	now := time.Now()
	out := make([]*Worker, n)
	for i := range out {
		out[i] = newWorker(string(rune('a'+i))+"-worker", p, now)
	}
	return out
}

func testTasks(ids ...string) []*task.Task {
	out := make([]*task.Task, len(ids))
	for i, id := range ids {
		out[i] = task.New(id, 0.5, 100*time.Millisecond)
	}
	return out
}

func TestRoundRobin_Cycles(t *testing.T) {
	workers := testWorkers(2)
	rr := &roundRobin{}

	got := rr.Assign(testTasks("t1", "t2", "t3"), workers)
	if len(got[workers[0].ID]) != 2 || len(got[workers[1].ID]) != 1 {
		t.Errorf("assignments = %v, want 2/1 split", got)
	}

	// The cursor persists, so the next batch starts where the last ended.
	got = rr.Assign(testTasks("t4"), workers)
	if len(got[workers[1].ID]) != 1 {
		t.Errorf("second batch = %v, want continuation on second worker", got)
	}
}

func TestLeastLoaded_PrefersHeadroom(t *testing.T) {
	workers := testWorkers(2)
	workers[0].Running["busy1"] = time.Now()
	workers[0].Running["busy2"] = time.Now()

	got := leastLoaded{}.Assign(testTasks("t1"), workers)
	if len(got[workers[1].ID]) != 1 {
		t.Errorf("assignments = %v, want the empty worker picked", got)
	}
}

func TestLeastLoaded_SimulatesLoad(t *testing.T) {
	workers := testWorkers(2)

	got := leastLoaded{}.Assign(testTasks("t1", "t2", "t3", "t4"), workers)
	if len(got[workers[0].ID]) != 2 || len(got[workers[1].ID]) != 2 {
		t.Errorf("assignments = %v, want an even spread from simulated load", got)
	}
}

func TestQuantumAware_WeighsEfficiencyAndConfidence(t *testing.T) {
	workers := testWorkers(2)
	// Second worker is slow: efficiency drops to 0.25.
	workers[1].Completed = 1
	workers[1].TotalBusy = 4 * time.Second

	tk := task.New("t1", 0.9, 100*time.Millisecond)
	got := quantumAware{}.Assign([]*task.Task{tk}, workers)
	if len(got[workers[0].ID]) != 1 {
		t.Errorf("assignments = %v, want the efficient worker picked", got)
	}
}

func TestQuantumAware_AvoidsSaturatedWorkers(t *testing.T) {
	workers := testWorkers(2)
	for i := 0; i < workers[0].MaxConcurrent; i++ {
		workers[0].Running[time.Now().Add(time.Duration(i)).String()] = time.Now()
	}

	got := quantumAware{}.Assign(testTasks("t1"), workers)
	if len(got[workers[1].ID]) != 1 {
		t.Errorf("assignments = %v, want the unsaturated worker picked", got)
	}
}

func TestHealthySorted_FiltersFailed(t *testing.T) {
	p := testPool()
	now := time.Now()
	workers := map[string]*Worker{
		"b": newWorker("b", p, now),
		"a": newWorker("a", p, now),
		"c": newWorker("c", p, now),
	}
	workers["c"].markFailed(now)

	got := healthySorted(workers)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("healthySorted = %v, want [a b]", got)
	}
}
