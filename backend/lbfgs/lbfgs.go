// Package lbfgs implements the built-in nonlinear solver: a quadratic
// penalty method whose inner unconstrained minimizations run gonum's L-BFGS
// with finite-difference gradients. It handles the nonlinear problem class
// for payloads implementing nlp.Program.
package lbfgs

import (
	"math"
	"time"

	"github.com/gridfold/opf"
	"github.com/gridfold/opf/logger"
	"github.com/gridfold/opf/nlp"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

const (
	// Penalty schedule: μ starts at penaltyMu0 and multiplies by
	// penaltyGrowth each outer round.
	penaltyMu0    = 1e3
	penaltyGrowth = 10.0
	outerRounds   = 5

	// fdStep is the finite-difference step for inner gradients.
	fdStep = 1e-7

	// feasFloor is the best constraint violation the quadratic penalty can
	// reliably reach; the feasibility test never demands tighter.
	feasFloor = 1e-4
)

// Backend is the penalty-method nonlinear solver.
type Backend struct{}

// New returns the nonlinear backend.
func New() *Backend { return &Backend{} }

// ID implements opf.Backend.
func (*Backend) ID() string { return "lbfgs" }

// SupportedClasses implements opf.Backend.
func (*Backend) SupportedClasses() []opf.ProblemClass {
	return []opf.ProblemClass{opf.NonlinearProgram}
}

// IsAvailable implements opf.Backend.
func (*Backend) IsAvailable() bool { return true }

// Solve implements opf.Backend.
func (b *Backend) Solve(p *opf.Problem, cfg opf.SolverConfig, ws *opf.WarmStart) (*opf.Solution, error) {
	prog, ok := p.Payload.(nlp.Program)
	if !ok {
		return nil, &opf.NotImplementedError{Reason: "problem payload is not a nonlinear program"}
	}
	log := logger.Logger().With().Str("backend", b.ID()).Str("formulation", p.FormulationID).Logger()

	x := prog.WarmPoint(ws)
	if x == nil {
		x = prog.InitialPoint()
	}
	x = append([]float64(nil), x...)
	lo, hi := prog.Bounds()
	nlp.Clamp(x, lo, hi)

	featol := math.Max(cfg.Tolerance, feasFloor)
	innerBudget := cfg.MaxIterations / outerRounds
	if innerBudget < 1 {
		innerBudget = 1
	}
	deadline := time.Time{}
	if cfg.Timeout > 0 {
		deadline = time.Now().Add(cfg.Timeout)
	}

	start := time.Now()
	totalIters := 0
	mu := penaltyMu0

	for round := 0; round < outerRounds; round++ {
		merit := func(v []float64) float64 {
			return prog.Cost(v) + mu*prog.Penalty(v) + mu*boundPenalty(v, lo, hi)
		}
		problem := optimize.Problem{
			Func: merit,
			Grad: func(grad, v []float64) {
				fd.Gradient(grad, merit, v, &fd.Settings{Step: fdStep})
			},
		}
		settings := &optimize.Settings{
			MajorIterations:   innerBudget,
			GradientThreshold: cfg.Tolerance,
		}
		if !deadline.IsZero() {
			settings.Runtime = time.Until(deadline)
		}

		res, err := optimize.Minimize(problem, x, settings, &optimize.LBFGS{})
		if res != nil {
			copy(x, res.X)
			totalIters += res.Stats.MajorIterations
		} else if err != nil {
			return nil, &opf.ConvergenceError{
				Cause:      opf.RestorationFailed,
				Iterations: totalIters,
				Residual:   prog.MaxViolation(x),
			}
		}
		nlp.Clamp(x, lo, hi)

		viol := prog.MaxViolation(x)
		log.Debug().Int("round", round).Float64("mu", mu).
			Float64("violation", viol).Msg("penalty round done")
		if viol <= featol {
			sol := opf.NewSolution(p.FormulationID, b.ID())
			if err := prog.Extract(x, sol); err != nil {
				return nil, err
			}
			sol.Converged = true
			sol.Iterations = totalIters
			sol.SolveTime = time.Since(start)
			return sol, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, &opf.ConvergenceError{
				Cause:      opf.IterationLimit,
				Iterations: totalIters,
				Residual:   viol,
			}
		}
		mu *= penaltyGrowth
	}

	return nil, &opf.ConvergenceError{
		Cause:      opf.RestorationFailed,
		Iterations: totalIters,
		Residual:   prog.MaxViolation(x),
	}
}

// boundPenalty is the squared violation of the simple bounds, folded into
// the merit function so the inner solver stays unconstrained.
func boundPenalty(x, lo, hi []float64) float64 {
	var p float64
	for i := range x {
		if d := lo[i] - x[i]; d > 0 {
			p += d * d
		}
		if d := x[i] - hi[i]; d > 0 {
			p += d * d
		}
	}
	return p
}
