// Package coneprog defines the conic-program intermediate representation
// shared by the linear and conic formulation tiers and the splitting-cone
// backend:
//
//	minimize   ½·xᵀdiag(P)x + qᵀx
//	subject to A·x + s = b,  s ∈ K
//
// where K is a Cartesian product of zero, nonnegative and second-order
// cones. Formulations lower a network into a Program; backends solve it and
// hand the raw Result back to the lowering for extraction into engineering
// units.
package coneprog

import (
	"fmt"
	"math"

	"github.com/gridfold/opf"
)

// Cone is one factor of the product cone K.
type Cone interface {
	// Dim is the number of slack rows the cone spans.
	Dim() int
	// Project maps s onto the cone in place.
	Project(s []float64)
}

// ZeroCone forces its rows to equality (s = 0).
type ZeroCone int

// Dim implements Cone.
func (z ZeroCone) Dim() int { return int(z) }

// Project implements Cone.
func (z ZeroCone) Project(s []float64) {
	for i := range s {
		s[i] = 0
	}
}

// NonnegativeCone forces s ≥ 0 componentwise (inequality rows).
type NonnegativeCone int

// Dim implements Cone.
func (c NonnegativeCone) Dim() int { return int(c) }

// Project implements Cone.
func (c NonnegativeCone) Project(s []float64) {
	for i := range s {
		if s[i] < 0 {
			s[i] = 0
		}
	}
}

// SecondOrderCone forces s₀ ≥ ‖s₁..ₙ‖₂.
type SecondOrderCone int

// Dim implements Cone.
func (c SecondOrderCone) Dim() int { return int(c) }

// Project implements Cone.
func (c SecondOrderCone) Project(s []float64) {
	t := s[0]
	var norm float64
	for _, v := range s[1:] {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	switch {
	case norm <= t:
		// already inside
	case norm <= -t:
		for i := range s {
			s[i] = 0
		}
	default:
		a := (norm + t) / 2
		s[0] = a
		scale := a / norm
		for i := 1; i < len(s); i++ {
			s[i] *= scale
		}
	}
}

// Program is a lowered conic program.
type Program struct {
	// N is the number of decision variables.
	N int
	// Pdiag is the diagonal of the quadratic cost; nil means pure LP.
	Pdiag []float64
	// Q is the linear cost.
	Q []float64
	// A and B define the conic constraint A·x + s = b.
	A *Matrix
	B []float64
	// Cones factor K, in row order matching A/B.
	Cones []Cone
	// IntegerCols lists variable columns restricted to integers. Only
	// mixed-integer-capable backends honor it.
	IntegerCols []int
}

// ConeDim returns the total constraint row count covered by the cones.
func (p *Program) ConeDim() int {
	var d int
	for _, c := range p.Cones {
		d += c.Dim()
	}
	return d
}

// Validate checks dimensional consistency between variables, constraints
// and cones.
func (p *Program) Validate() error {
	if p.N <= 0 {
		return fmt.Errorf("program has no variables")
	}
	if len(p.Q) != p.N {
		return fmt.Errorf("linear cost has %d entries, want %d", len(p.Q), p.N)
	}
	if p.Pdiag != nil && len(p.Pdiag) != p.N {
		return fmt.Errorf("quadratic cost has %d entries, want %d", len(p.Pdiag), p.N)
	}
	if p.A == nil {
		return fmt.Errorf("program has no constraint matrix")
	}
	if p.A.Cols != p.N {
		return fmt.Errorf("constraint matrix has %d columns, want %d", p.A.Cols, p.N)
	}
	if p.A.Rows != len(p.B) {
		return fmt.Errorf("constraint matrix has %d rows, rhs has %d", p.A.Rows, len(p.B))
	}
	if d := p.ConeDim(); d != p.A.Rows {
		return fmt.Errorf("cones span %d rows, constraints span %d", d, p.A.Rows)
	}
	return nil
}

// Objective evaluates the cost at x.
func (p *Program) Objective(x []float64) float64 {
	var obj float64
	for i, qi := range p.Q {
		obj += qi * x[i]
	}
	if p.Pdiag != nil {
		for i, pi := range p.Pdiag {
			obj += 0.5 * pi * x[i] * x[i]
		}
	}
	return obj
}

// Status reports how a conic solve terminated.
type Status uint8

const (
	// StatusSolved means residuals reached tolerance.
	StatusSolved Status = iota
	// StatusIterationLimit means the iteration budget ran out first.
	StatusIterationLimit
	// StatusInfeasible means the iterates certified primal infeasibility.
	StatusInfeasible
)

// String returns the string representation of a status.
func (s Status) String() string {
	switch s {
	case StatusSolved:
		return "solved"
	case StatusIterationLimit:
		return "iteration-limit"
	case StatusInfeasible:
		return "infeasible"
	default:
		return "unknown"
	}
}

// Result is the raw outcome of a conic solve. Y carries the dual multipliers
// per constraint row; lowerings read locational prices and binding
// constraints from it.
type Result struct {
	Status     Status
	X          []float64
	Y          []float64
	S          []float64
	Objective  float64
	Iterations int
	PrimalRes  float64
	DualRes    float64
}

// Lowering converts between a network-level problem and the conic IR. It is
// carried as the opaque payload of a Problem so that cone-capable backends
// can solve any formulation of the right class without knowing its physics.
type Lowering interface {
	// Program lowers (or re-lowers, after Refine) the problem.
	Program() (*Program, error)
	// Extract writes the solver result into sol in engineering units.
	Extract(res *Result, sol *opf.Solution) error
	// WarmVector maps a warm start onto the decision vector, or nil for a
	// cold start.
	WarmVector(ws *opf.WarmStart) []float64
}

// Refinable is implemented by lowerings that want bounded re-solve rounds,
// updating internal data from the previous solution (loss-aware DC dispatch
// uses this to fold estimated losses back into the balance).
type Refinable interface {
	// Refine inspects the extracted solution and returns true when another
	// lowering round is worthwhile.
	Refine(sol *opf.Solution) bool
}
