package anneal

import (
	"testing"

	"github.com/danieleschmidt/nerf-edge-sched/internal/errors"
)

func TestConstraint_Violation(t *testing.T) {
	tests := []struct {
		name   string
		c      Constraint
		values []float64
		want   float64
	}{
		{
			name:   "less-eq satisfied",
			c:      Constraint{Coeffs: map[int]float64{0: 2}, Bound: 3, Sense: LessEq},
			values: []float64{1},
			want:   0,
		},
		{
			name:   "less-eq violated",
			c:      Constraint{Coeffs: map[int]float64{0: 2}, Bound: 1, Sense: LessEq},
			values: []float64{1},
			want:   1,
		},
		{
			name:   "greater-eq satisfied at bound",
			c:      Constraint{Coeffs: map[int]float64{0: 1}, Bound: 0.5, Sense: GreaterEq},
			values: []float64{0.5},
			want:   0,
		},
		{
			name:   "greater-eq violated",
			c:      Constraint{Coeffs: map[int]float64{0: 1}, Bound: 0.5, Sense: GreaterEq},
			values: []float64{0.2},
			want:   0.3,
		},
		{
			name:   "out of range index ignored",
			c:      Constraint{Coeffs: map[int]float64{5: 100}, Bound: 0, Sense: LessEq},
			values: []float64{1},
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.c.Violation(tt.values)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Violation = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSolver_EmptyProblem(t *testing.T) {
	s := NewSolver(WithSeed(1))
	if _, err := s.Solve(nil); !errors.Is(err, errors.ErrNoFeasibleSolution) {
		t.Errorf("Solve(nil) error = %v, want ErrNoFeasibleSolution", err)
	}
	if _, err := s.Solve(&Problem{}); err == nil {
		t.Error("Solve(empty) succeeded, want error")
	}
}

func TestSolver_MaximizesUnconstrained(t *testing.T) {
	// One variable with positive coefficient: the optimum pushes it to ~1.
	p := &Problem{
		Variables: 1,
		Objective: []float64{10},
	}
	s := NewSolver(WithSeed(42), WithMaxIterations(5000), WithMinTemperature(1e-9))
	sol, err := s.Solve(p)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !sol.Feasible {
		t.Error("unconstrained problem reported infeasible")
	}
	if sol.Values[0] < 0.9 {
		t.Errorf("Values[0] = %v, want near 1", sol.Values[0])
	}
}

func TestSolver_RespectsConstraints(t *testing.T) {
	// Two variables, both attractive, but their sum must stay <= 1.
	p := &Problem{
		Variables: 2,
		Objective: []float64{5, 5},
		Constraints: []Constraint{
			{Coeffs: map[int]float64{0: 1, 1: 1}, Bound: 1, Sense: LessEq, Label: "capacity"},
		},
	}
	s := NewSolver(WithSeed(7), WithMaxIterations(5000), WithMinTemperature(1e-9))
	sol, err := s.Solve(p)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !sol.Feasible {
		t.Fatal("feasible problem reported infeasible")
	}
	if v := p.TotalViolation(sol.Values); v != 0 {
		t.Errorf("returned solution violates constraints by %v", v)
	}
}

func TestSolver_GreaterEqFloor(t *testing.T) {
	// A floor constraint forces the variable up even with zero objective.
	p := &Problem{
		Variables: 1,
		Objective: []float64{0},
		Constraints: []Constraint{
			{Coeffs: map[int]float64{0: 1}, Bound: 0.5, Sense: GreaterEq, Label: "floor"},
		},
	}
	s := NewSolver(WithSeed(3), WithMaxIterations(3000), WithMinTemperature(1e-9))
	sol, err := s.Solve(p)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !sol.Feasible {
		t.Fatal("floor problem reported infeasible")
	}
	if sol.Values[0] < 0.5 {
		t.Errorf("Values[0] = %v, want >= 0.5", sol.Values[0])
	}
}

func TestSolver_BoundedIterations(t *testing.T) {
	p := &Problem{
		Variables: 50,
		Objective: make([]float64, 50),
	}
	s := NewSolver(WithSeed(1), WithMaxIterations(100))
	sol, err := s.Solve(p)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if sol.Iterations > 100 {
		t.Errorf("Iterations = %d, want <= 100", sol.Iterations)
	}
}

func TestSolver_TemperatureFloorStops(t *testing.T) {
	p := &Problem{Variables: 2, Objective: []float64{1, 1}}
	// Aggressive cooling hits the floor long before the iteration cap.
	s := NewSolver(WithSeed(1), WithMaxIterations(1_000_000), WithCoolingRate(0.5), WithMinTemperature(1))
	sol, err := s.Solve(p)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if sol.Iterations > 20 {
		t.Errorf("Iterations = %d, want few under fast cooling", sol.Iterations)
	}
	if sol.FinalTemperature > 1 {
		t.Errorf("FinalTemperature = %v, want <= floor", sol.FinalTemperature)
	}
}

func TestSolver_Deterministic(t *testing.T) {
	p := &Problem{
		Variables: 4,
		Objective: []float64{1, 2, 3, 4},
		Constraints: []Constraint{
			{Coeffs: map[int]float64{0: 1, 1: 1, 2: 1, 3: 1}, Bound: 2, Sense: LessEq},
		},
	}
	a, err := NewSolver(WithSeed(99)).Solve(p)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	b, err := NewSolver(WithSeed(99)).Solve(p)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	for i := range a.Values {
		if a.Values[i] != b.Values[i] {
			t.Fatalf("seeded runs diverged at variable %d: %v vs %v", i, a.Values[i], b.Values[i])
		}
	}
}
