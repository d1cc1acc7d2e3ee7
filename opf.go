package opf

import (
	"github.com/gridfold/opf/network"
)

// Formulation defines WHAT to solve. It lowers a Network into a Problem of
// a specific mathematical class and declares which warm-start kinds it can
// consume. Implementations must be safe for concurrent use: BuildProblem is
// called from many solving goroutines during batch studies.
//
// BuildProblem must not mutate the network and must be deterministic for
// identical input. It returns a *DataError when the network is structurally
// invalid for the formulation (e.g. no reference bus, a zero-reactance
// branch).
type Formulation interface {
	// ID returns the stable identifier used for registry lookup,
	// e.g. "dc-opf", "socp", "ac-opf", "economic-dispatch".
	ID() string

	// ProblemClass returns the class of the problems this formulation builds.
	ProblemClass() ProblemClass

	// BuildProblem lowers the network into a solver-ready problem.
	BuildProblem(net *network.Network) (*Problem, error)

	// AcceptedWarmStarts returns the warm-start kinds this formulation can
	// consume. The dispatcher only offers kinds listed here.
	AcceptedWarmStarts() []WarmStartKind
}

// Backend defines HOW to solve. Implementations must tolerate concurrent
// Solve calls on the same instance; each call owns its problem and solution.
//
// A backend whose prerequisites are missing (e.g. an external native solver
// binary) reports IsAvailable() == false instead of failing inside Solve, so
// the registry can skip it during selection.
type Backend interface {
	// ID returns the stable identifier, e.g. "splitcone", "lbfgs", "ipopt".
	ID() string

	// SupportedClasses returns the problem classes this backend can solve.
	SupportedClasses() []ProblemClass

	// IsAvailable reports whether the backend can solve right now. It is
	// probed at selection time and must be cheap.
	IsAvailable() bool

	// Solve attempts to solve the problem. ws may be nil (flat start).
	// The problem must not be mutated. Convergence failures are reported
	// as *ConvergenceError; they are the only retry-eligible failures.
	Solve(p *Problem, cfg SolverConfig, ws *WarmStart) (*Solution, error)
}

// Problem is the formulation-agnostic container built once per solve attempt.
// Payload is meaningful only to backends that understand the formulation that
// built it (an arena-plus-tag pattern: downcast inside the matching backend).
type Problem struct {
	// FormulationID tags the payload with the formulation that built it.
	FormulationID string

	// Class determines which backends may solve this problem.
	Class ProblemClass

	NbBuses      int
	NbGenerators int

	// Payload holds the formulation-specific lowering (precomputed matrices,
	// index maps). Conic-class formulations store a coneprog.Lowering, the
	// AC tier an nlp.Program.
	Payload any
}
