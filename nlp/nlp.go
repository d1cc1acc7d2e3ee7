// Package nlp defines the nonlinear-program payload contract between the
// AC formulation tier and penalty-method backends. A Program exposes a
// smooth economic cost, a squared-violation penalty for its equality and
// inequality constraints, and simple variable bounds; backends minimize
//
//	cost(x) + μ·penalty(x)
//
// over the bounds with an increasing penalty weight μ, then hand the final
// iterate back for extraction.
package nlp

import "github.com/gridfold/opf"

// Program is the nonlinear payload carried by a Problem.
type Program interface {
	// Dim is the number of decision variables.
	Dim() int
	// Cost is the economic objective at x.
	Cost(x []float64) float64
	// Penalty is the sum of squared constraint violations at x.
	Penalty(x []float64) float64
	// MaxViolation is the worst single constraint violation at x, used as
	// the feasibility stopping test.
	MaxViolation(x []float64) float64
	// Bounds returns per-variable lower and upper bounds.
	Bounds() (lo, hi []float64)
	// InitialPoint is the cold-start iterate (flat voltage profile).
	InitialPoint() []float64
	// WarmPoint maps a warm start onto the decision vector, or nil to fall
	// back to InitialPoint.
	WarmPoint(ws *opf.WarmStart) []float64
	// Extract writes the final iterate into sol in engineering units.
	Extract(x []float64, sol *opf.Solution) error
}

// Clamp projects x onto [lo, hi] in place.
func Clamp(x, lo, hi []float64) {
	for i := range x {
		if x[i] < lo[i] {
			x[i] = lo[i]
		} else if x[i] > hi[i] {
			x[i] = hi[i]
		}
	}
}
