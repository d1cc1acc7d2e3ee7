// Package dispatch orchestrates a solve end to end: formulation lookup,
// problem build, backend selection, the attempt itself, and the warm-start
// fallback cascade that kicks in when — and only when — an attempt fails to
// converge. Any other failure is final and returned as-is.
package dispatch

import (
	"context"

	"github.com/gridfold/opf"
	"github.com/gridfold/opf/formulation/dcopf"
	"github.com/gridfold/opf/formulation/socp"
	"github.com/gridfold/opf/logger"
	"github.com/gridfold/opf/network"
	"github.com/gridfold/opf/registry"
)

// warmSourceID maps a derived warm-start kind to the formulation whose
// solution produces it. Flat has no source; it is the first attempt.
var warmSourceID = map[opf.WarmStartKind]string{
	opf.DcDerived:   dcopf.FormulationID,
	opf.SocpDerived: socp.FormulationID,
}

// defaultFallbacks is the chain tried when the caller does not supply one,
// in increasing fidelity.
var defaultFallbacks = []opf.WarmStartKind{opf.DcDerived, opf.SocpDerived}

// SolveOption customizes a single Solve call.
type SolveOption func(*solveSettings)

type solveSettings struct {
	fallbacks []opf.WarmStartKind
}

// WithFallbacks sets the warm-start fallback chain for this solve, tried in
// the given order after a convergence failure. Kinds the formulation does
// not accept are skipped; an empty chain disables the cascade entirely.
// Without this option the dispatcher tries DcDerived, then SocpDerived.
func WithFallbacks(kinds ...opf.WarmStartKind) SolveOption {
	return func(s *solveSettings) {
		s.fallbacks = append([]opf.WarmStartKind{}, kinds...)
	}
}

// Dispatcher runs solves against a registry with a shared solver
// configuration.
type Dispatcher struct {
	reg *registry.Registry
	cfg opf.SolverConfig
}

// New returns a dispatcher over reg.
func New(reg *registry.Registry, opts ...opf.Option) (*Dispatcher, error) {
	cfg, err := opf.NewSolverConfig(opts...)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{reg: reg, cfg: cfg}, nil
}

// Config returns the dispatcher's solver configuration.
func (d *Dispatcher) Config() opf.SolverConfig { return d.cfg }

// Solve runs formulationID over net. On a convergence failure it walks the
// fallback chain in order, solving each warm start's source formulation to
// seed a retry; if every fallback also fails, the error of the original
// attempt is returned.
func (d *Dispatcher) Solve(ctx context.Context, net *network.Network, formulationID string, opts ...SolveOption) (*opf.Solution, error) {
	settings := solveSettings{fallbacks: defaultFallbacks}
	for _, opt := range opts {
		opt(&settings)
	}
	log := logger.Logger().With().Str("formulation", formulationID).Logger()

	if err := net.Validate(); err != nil {
		return nil, &opf.DataError{Reason: err.Error()}
	}
	form, err := d.reg.Formulation(formulationID)
	if err != nil {
		return nil, err
	}

	sol, firstErr := d.attempt(ctx, net, form, nil)
	if firstErr == nil {
		return sol, nil
	}
	if !opf.IsConvergenceFailure(firstErr) {
		return nil, firstErr
	}
	log.Warn().Err(firstErr).Msg("solve failed to converge, entering fallback cascade")

	for _, kind := range settings.fallbacks {
		srcID, ok := warmSourceID[kind]
		if !ok || srcID == formulationID {
			continue
		}
		if !opf.Accepts(form.AcceptedWarmStarts(), kind) {
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		srcForm, err := d.reg.Formulation(srcID)
		if err != nil {
			continue // source formulation not registered in this setup
		}
		srcSol, err := d.attempt(ctx, net, srcForm, nil)
		if err != nil {
			log.Debug().Err(err).Str("source", srcID).Msg("warm-start source failed")
			continue
		}
		ws := opf.WarmStartFromSolution(kind, srcSol)

		sol, err := d.attempt(ctx, net, form, ws)
		if err == nil {
			log.Info().Str("warm_start", kind.String()).Msg("fallback retry converged")
			return sol, nil
		}
		log.Debug().Err(err).Str("warm_start", kind.String()).Msg("fallback retry failed")
	}
	return nil, firstErr
}

// attempt builds and solves one problem instance. The problem is rebuilt
// per attempt so stateful lowerings start clean.
func (d *Dispatcher) attempt(ctx context.Context, net *network.Network, form opf.Formulation, ws *opf.WarmStart) (*opf.Solution, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	problem, err := form.BuildProblem(net)
	if err != nil {
		return nil, err
	}
	backend, err := d.reg.SelectBackend(problem.Class)
	if err != nil {
		return nil, err
	}
	log := logger.Logger()
	log.Debug().Str("formulation", form.ID()).
		Str("backend", backend.ID()).Msg("solving")
	return backend.Solve(problem, d.cfg, ws)
}
