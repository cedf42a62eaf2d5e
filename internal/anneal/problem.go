// Package anneal implements a generic simulated-annealing solver over
// continuous decision variables with penalty-weighted linear constraints.
// The solver has no task-domain knowledge: callers express their problem
// as variables, objective coefficients, and constraints, and interpret the
// resulting assignment themselves.
package anneal

// Sense is the direction of a linear constraint.
type Sense int

const (
	// LessEq constrains the weighted sum to be <= Bound.
	LessEq Sense = iota
	// GreaterEq constrains the weighted sum to be >= Bound.
	GreaterEq
)

// Constraint is a sparse linear constraint over the decision variables.
type Constraint struct {
	// Coeffs maps variable index to coefficient. Missing indices are zero.
	Coeffs map[int]float64

	// Bound is the right-hand side of the inequality.
	Bound float64

	// Sense selects <= or >=.
	Sense Sense

	// Label identifies the constraint in diagnostics.
	Label string
}

// Violation returns how far the assignment is from satisfying the
// constraint, 0 when satisfied.
func (c *Constraint) Violation(values []float64) float64 {
	var sum float64
	for idx, coeff := range c.Coeffs {
		if idx >= 0 && idx < len(values) {
			sum += coeff * values[idx]
		}
	}
	switch c.Sense {
	case LessEq:
		if sum > c.Bound {
			return sum - c.Bound
		}
	case GreaterEq:
		if sum < c.Bound {
			return c.Bound - sum
		}
	}
	return 0
}

// Problem is a maximization problem over variables in [0, 1].
type Problem struct {
	// Variables is the number of decision variables.
	Variables int

	// Objective holds one coefficient per variable; the solver maximizes
	// the dot product of Objective and the assignment.
	Objective []float64

	// Constraints are penalty-enforced, not hard: the solver prefers
	// feasible assignments but reports the best seen either way.
	Constraints []Constraint
}

// TotalViolation sums constraint violations for an assignment.
func (p *Problem) TotalViolation(values []float64) float64 {
	var total float64
	for i := range p.Constraints {
		total += p.Constraints[i].Violation(values)
	}
	return total
}

// ObjectiveValue returns the objective for an assignment.
func (p *Problem) ObjectiveValue(values []float64) float64 {
	var sum float64
	for i, coeff := range p.Objective {
		if i < len(values) {
			sum += coeff * values[i]
		}
	}
	return sum
}
