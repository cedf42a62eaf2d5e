package recovery

import (
	"testing"
	"time"

	"github.com/danieleschmidt/nerf-edge-sched/internal/task"
)

func TestNewSnapshot(t *testing.T) {
	tk := task.New("render-1", 0.9, 100*time.Millisecond)
	tk.Heuristics.Confidence = 0.8
	tk.Heuristics.Parallelizability = 0.4
	tk.Heuristics.AffinityLinks = []string{"a", "b"}

	s := NewSnapshot(tk)
	if s.TaskID != "render-1" || s.Confidence != 0.8 || s.LinkCount != 2 {
		t.Errorf("snapshot = %+v, want fields copied from the task", s)
	}
	if s.WeightNorm != 1 {
		t.Errorf("WeightNorm = %v, want 1 for the unit weight", s.WeightNorm)
	}
	// 0.4*0.8 + 0.3*1.0 + 0.3*0.8 = 0.86
	if diff := s.RecoveryProbability - 0.86; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("RecoveryProbability = %v, want 0.86", s.RecoveryProbability)
	}
}

func TestDeriveRecoveryProbability_Bounds(t *testing.T) {
	// Saturated links and collapsed confidence bottom out but never go
	// negative.
	s := &Snapshot{Confidence: 0.1, LinkCount: 20, WeightNorm: 0.01}
	if p := deriveRecoveryProbability(s); p < 0 || p > 1 {
		t.Errorf("probability = %v, want within [0, 1]", p)
	}

	s = &Snapshot{Confidence: 1, LinkCount: 0, WeightNorm: 1.1}
	if p := deriveRecoveryProbability(s); p != 1 {
		t.Errorf("best-case probability = %v, want capped at 1", p)
	}
}

func TestKinds_Complete(t *testing.T) {
	if got := len(Kinds()); got != 10 {
		t.Errorf("Kinds() has %d entries, want 10", got)
	}
	seen := make(map[FailureKind]bool)
	for _, k := range Kinds() {
		if seen[k] {
			t.Errorf("duplicate kind %q", k)
		}
		seen[k] = true
	}
}

func TestFailure_BudgetIsPerStrategy(t *testing.T) {
	f := newFailure(KindOptimizerTimeout, 0, nil, "")
	f.budget("a").attempts = 2

	if got := f.budget("b").attempts; got != 0 {
		t.Errorf("strategy b attempts = %d, want independent budget", got)
	}
	if got := f.budget("a").attempts; got != 2 {
		t.Errorf("strategy a attempts = %d, want 2", got)
	}
}

func TestLowestPriorityEdge(t *testing.T) {
	tests := []struct {
		name     string
		ctx      map[string]any
		wantTask string
		wantDep  string
		wantOK   bool
	}{
		{
			name:   "missing cycle",
			ctx:    map[string]any{},
			wantOK: false,
		},
		{
			name:     "no priorities drops last edge",
			ctx:      map[string]any{"cycle": []string{"a", "b", "c", "a"}},
			wantTask: "c",
			wantDep:  "a",
			wantOK:   true,
		},
		{
			name: "lowest priority task loses its edge",
			ctx: map[string]any{
				"cycle":      []string{"a", "b", "c", "a"},
				"priorities": map[string]float64{"a": 0.9, "b": 0.1, "c": 0.5},
			},
			wantTask: "b",
			wantDep:  "c",
			wantOK:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			taskID, depID, ok := lowestPriorityEdge(tt.ctx)
			if ok != tt.wantOK || taskID != tt.wantTask || depID != tt.wantDep {
				t.Errorf("lowestPriorityEdge = (%q, %q, %v), want (%q, %q, %v)",
					taskID, depID, ok, tt.wantTask, tt.wantDep, tt.wantOK)
			}
		})
	}
}
