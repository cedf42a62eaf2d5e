package anneal

import (
	"math"
	"math/rand"
	"time"

	"github.com/danieleschmidt/nerf-edge-sched/internal/errors"
)

// Default annealing schedule values.
const (
	defaultInitialTemperature = 100.0
	defaultCoolingRate        = 0.95
	defaultMinTemperature     = 1e-3
	defaultMaxIterations      = 2000
	defaultPenaltyWeight      = 1000.0
)

// Option configures a Solver.
type Option func(*Solver)

// WithInitialTemperature sets the starting temperature.
func WithInitialTemperature(t float64) Option {
	return func(s *Solver) { s.initialTemp = t }
}

// WithCoolingRate sets the per-iteration geometric cooling factor, in (0, 1).
func WithCoolingRate(r float64) Option {
	return func(s *Solver) { s.coolingRate = r }
}

// WithMinTemperature sets the temperature floor at which the search stops.
func WithMinTemperature(t float64) Option {
	return func(s *Solver) { s.minTemp = t }
}

// WithMaxIterations bounds the number of iterations. The solver always
// terminates at this bound regardless of temperature.
func WithMaxIterations(n int) Option {
	return func(s *Solver) { s.maxIterations = n }
}

// WithPenaltyWeight sets the multiplier applied to constraint violations
// in the energy function.
func WithPenaltyWeight(w float64) Option {
	return func(s *Solver) { s.penaltyWeight = w }
}

// WithSeed fixes the random source for reproducible runs. Without it the
// solver seeds from the current time.
func WithSeed(seed int64) Option {
	return func(s *Solver) { s.rng = rand.New(rand.NewSource(seed)) }
}

// Solver runs simulated annealing over a Problem. The inner loop is
// synchronous and CPU-bound; it is strictly bounded by max iterations and
// the temperature floor, never unbounded. A Solver is not safe for
// concurrent Solve calls; create one per goroutine.
type Solver struct {
	initialTemp   float64
	coolingRate   float64
	minTemp       float64
	maxIterations int
	penaltyWeight float64
	rng           *rand.Rand
}

// NewSolver creates a Solver with the given options.
// Unset options use defaults.
func NewSolver(opts ...Option) *Solver {
	s := &Solver{
		initialTemp:   defaultInitialTemperature,
		coolingRate:   defaultCoolingRate,
		minTemp:       defaultMinTemperature,
		maxIterations: defaultMaxIterations,
		penaltyWeight: defaultPenaltyWeight,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s
}

// Solution is the outcome of a Solve run.
type Solution struct {
	// Values is the best assignment seen, one value in [0, 1] per variable.
	Values []float64

	// Objective is the objective value of the assignment.
	Objective float64

	// Energy is the penalized energy of the assignment (lower is better).
	Energy float64

	// Feasible reports whether the assignment satisfies every constraint.
	Feasible bool

	// Iterations is how many iterations the search ran.
	Iterations int

	// FinalTemperature is the temperature when the search stopped.
	FinalTemperature float64
}

// Solve searches for an assignment maximizing the objective under the
// penalty-weighted constraints. It returns the best feasible solution
// seen; if no feasible assignment was ever visited it returns the best
// infeasible one with Feasible=false. An empty problem yields
// ErrNoFeasibleSolution.
func (s *Solver) Solve(p *Problem) (*Solution, error) {
	if p == nil || p.Variables <= 0 {
		return nil, errors.NewPlannerError("optimizer given empty problem", errors.ErrNoFeasibleSolution)
	}

	// Random start.
	current := make([]float64, p.Variables)
	for i := range current {
		current[i] = s.rng.Float64()
	}
	currentEnergy := s.energy(p, current)

	best := append([]float64(nil), current...)
	bestEnergy := currentEnergy
	bestFeasible := p.TotalViolation(current) == 0

	// Track the best feasible assignment separately so an excellent but
	// infeasible energy never shadows a workable schedule.
	var bestFeasibleValues []float64
	bestFeasibleEnergy := math.Inf(1)
	if bestFeasible {
		bestFeasibleValues = append([]float64(nil), current...)
		bestFeasibleEnergy = currentEnergy
	}

	temp := s.initialTemp
	iterations := 0

	for iterations < s.maxIterations && temp > s.minTemp {
		iterations++

		// Perturb one variable.
		idx := s.rng.Intn(p.Variables)
		old := current[idx]
		current[idx] = s.rng.Float64()

		candidateEnergy := s.energy(p, current)
		delta := candidateEnergy - currentEnergy

		if delta <= 0 || s.rng.Float64() < math.Exp(-delta/temp) {
			currentEnergy = candidateEnergy
			if currentEnergy < bestEnergy {
				copy(best, current)
				bestEnergy = currentEnergy
			}
			if p.TotalViolation(current) == 0 && currentEnergy < bestFeasibleEnergy {
				if bestFeasibleValues == nil {
					bestFeasibleValues = make([]float64, p.Variables)
				}
				copy(bestFeasibleValues, current)
				bestFeasibleEnergy = currentEnergy
			}
		} else {
			current[idx] = old
		}

		temp *= s.coolingRate
	}

	values := best
	energy := bestEnergy
	feasible := false
	if bestFeasibleValues != nil {
		values = bestFeasibleValues
		energy = bestFeasibleEnergy
		feasible = true
	}

	return &Solution{
		Values:           values,
		Objective:        p.ObjectiveValue(values),
		Energy:           energy,
		Feasible:         feasible,
		Iterations:       iterations,
		FinalTemperature: temp,
	}, nil
}

// energy is the minimized quantity: negative objective plus weighted
// constraint violations.
func (s *Solver) energy(p *Problem, values []float64) float64 {
	return -p.ObjectiveValue(values) + s.penaltyWeight*p.TotalViolation(values)
}
