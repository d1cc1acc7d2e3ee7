// Package splitcone implements the built-in first-order conic solver. It
// handles the linear and conic problem classes with an ADMM operator
// splitting over zero, nonnegative and second-order cones, and drives the
// bounded refinement loop of lowerings that ask for it.
package splitcone

import (
	"time"

	"github.com/gridfold/opf"
	"github.com/gridfold/opf/coneprog"
	"github.com/gridfold/opf/logger"
)

// maxRefineRounds bounds the re-lowering loop a Refinable payload can
// request, on top of the initial solve.
const maxRefineRounds = 3

// Backend is the splitting-cone solver.
type Backend struct{}

// New returns the splitting-cone backend.
func New() *Backend { return &Backend{} }

// ID implements opf.Backend.
func (*Backend) ID() string { return "splitcone" }

// SupportedClasses implements opf.Backend.
func (*Backend) SupportedClasses() []opf.ProblemClass {
	return []opf.ProblemClass{opf.LinearProgram, opf.ConicProgram}
}

// IsAvailable implements opf.Backend. The solver is pure Go and always
// available.
func (*Backend) IsAvailable() bool { return true }

// Solve implements opf.Backend.
func (b *Backend) Solve(p *opf.Problem, cfg opf.SolverConfig, ws *opf.WarmStart) (*opf.Solution, error) {
	low, ok := p.Payload.(coneprog.Lowering)
	if !ok {
		return nil, &opf.NotImplementedError{Reason: "problem payload is not a conic lowering"}
	}
	log := logger.Logger().With().Str("backend", b.ID()).Str("formulation", p.FormulationID).Logger()

	sol := opf.NewSolution(p.FormulationID, b.ID())
	start := time.Now()
	totalIters := 0

	for round := 0; ; round++ {
		prog, err := low.Program()
		if err != nil {
			return nil, err
		}
		if err := prog.Validate(); err != nil {
			return nil, &opf.DataError{Reason: err.Error()}
		}
		if len(prog.IntegerCols) > 0 {
			return nil, &opf.NotImplementedError{Reason: "integer variables require a native MIP solver"}
		}

		res, err := solve(prog, iterOpts{
			maxIter: cfg.MaxIterations,
			tol:     cfg.Tolerance,
			timeout: cfg.Timeout,
			x0:      low.WarmVector(ws),
		})
		if err != nil {
			return nil, err
		}
		totalIters += res.Iterations

		switch res.Status {
		case coneprog.StatusIterationLimit:
			return nil, &opf.ConvergenceError{
				Cause:      opf.IterationLimit,
				Iterations: totalIters,
				Residual:   res.PrimalRes,
			}
		case coneprog.StatusInfeasible:
			return nil, &opf.ConvergenceError{
				Cause:      opf.Infeasible,
				Iterations: totalIters,
				Residual:   res.PrimalRes,
			}
		}

		if err := low.Extract(res, sol); err != nil {
			return nil, err
		}
		log.Debug().Int("round", round).Int("iterations", res.Iterations).
			Float64("objective", res.Objective).Msg("conic solve round done")

		ref, ok := low.(coneprog.Refinable)
		if !ok || round >= maxRefineRounds || !ref.Refine(sol) {
			break
		}
	}

	sol.Converged = true
	sol.Iterations = totalIters
	sol.SolveTime = time.Since(start)
	return sol, nil
}
