// Package native bridges to optional solver binaries (ipopt, highs, cbc)
// over a versioned CBOR pipe protocol. Binaries are discovered under
// $OPF_SOLVER_DIR, then ~/.opf/solvers, then $PATH, as opf-<name>; a
// handshake gates on protocol compatibility, so an engine upgrade never
// talks past an old solver pack. Discovery runs once per backend per
// process; its result is cached.
package native

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gridfold/opf"
	"github.com/gridfold/opf/coneprog"
	"github.com/gridfold/opf/logger"
	"github.com/gridfold/opf/network"
)

// SolverDirEnv overrides the solver binary search directory.
const SolverDirEnv = "OPF_SOLVER_DIR"

// NetworkCarrier is implemented by payloads that can hand the native bridge
// the underlying network, for solvers that build their own model.
type NetworkCarrier interface {
	Net() *network.Network
}

// Backend shells a named solver binary.
type Backend struct {
	name    string
	classes []opf.ProblemClass

	probeOnce sync.Once
	path      string
	probeErr  error
}

// Ipopt returns the bridge to the interior-point nonlinear solver.
func Ipopt() *Backend {
	return &Backend{name: "ipopt", classes: []opf.ProblemClass{opf.NonlinearProgram}}
}

// Highs returns the bridge to the HiGHS linear/mixed-integer solver.
func Highs() *Backend {
	return &Backend{name: "highs", classes: []opf.ProblemClass{opf.LinearProgram, opf.MixedInteger}}
}

// Cbc returns the bridge to the CBC branch-and-cut solver.
func Cbc() *Backend {
	return &Backend{name: "cbc", classes: []opf.ProblemClass{opf.MixedInteger}}
}

// ID implements opf.Backend.
func (b *Backend) ID() string { return b.name }

// SupportedClasses implements opf.Backend.
func (b *Backend) SupportedClasses() []opf.ProblemClass {
	return append([]opf.ProblemClass(nil), b.classes...)
}

// IsAvailable implements opf.Backend: the binary must exist and answer a
// compatible handshake. The probe runs once and its result is cached for
// the process lifetime — backend selection may call this on every solve,
// and spawning a subprocess each time would dominate small solves. A
// solver installed mid-run is picked up on the next process start.
func (b *Backend) IsAvailable() bool {
	b.probeOnce.Do(b.probe)
	return b.probeErr == nil
}

func (b *Backend) probe() {
	bin := "opf-" + b.name
	var candidates []string
	if dir := os.Getenv(SolverDirEnv); dir != "" {
		candidates = append(candidates, filepath.Join(dir, bin))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".opf", "solvers", bin))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			b.path = c
			break
		}
	}
	if b.path == "" {
		p, err := exec.LookPath(bin)
		if err != nil {
			b.probeErr = fmt.Errorf("solver binary %s not found: %w", bin, err)
			return
		}
		b.path = p
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, b.path, "--handshake").Output()
	if err != nil {
		b.probeErr = fmt.Errorf("handshake with %s failed: %w", b.path, err)
		return
	}
	var h handshake
	if err := cbor.Unmarshal(out, &h); err != nil {
		b.probeErr = fmt.Errorf("handshake from %s is malformed: %w", b.path, err)
		return
	}
	if err := h.compatible(); err != nil {
		b.probeErr = err
		return
	}
	log := logger.Logger()
	log.Debug().Str("backend", b.name).Str("path", b.path).
		Str("protocol", h.Protocol).Msg("native solver probed")
}

// Solve implements opf.Backend.
func (b *Backend) Solve(p *opf.Problem, cfg opf.SolverConfig, ws *opf.WarmStart) (*opf.Solution, error) {
	b.probeOnce.Do(b.probe)
	if b.probeErr != nil {
		return nil, &opf.NoBackendError{Class: p.Class}
	}

	req := request{
		Protocol:      ProtocolVersion,
		Formulation:   p.FormulationID,
		Class:         p.Class.String(),
		MaxIterations: cfg.MaxIterations,
		Tolerance:     cfg.Tolerance,
	}
	if cfg.Timeout > 0 {
		req.TimeoutMS = cfg.Timeout.Milliseconds()
	}
	if ws != nil {
		req.Warm = &wireWarm{
			Kind:          ws.Kind.String(),
			BusVoltageMag: ws.BusVoltageMag,
			BusVoltageAng: ws.BusVoltageAng,
			GeneratorP:    ws.GeneratorP,
			GeneratorQ:    ws.GeneratorQ,
		}
	}

	var low coneprog.Lowering
	switch payload := p.Payload.(type) {
	case coneprog.Lowering:
		low = payload
		prog, err := payload.Program()
		if err != nil {
			return nil, err
		}
		if err := prog.Validate(); err != nil {
			return nil, &opf.DataError{Reason: err.Error()}
		}
		req.Conic, err = encodeConic(prog)
		if err != nil {
			return nil, &opf.NotImplementedError{Reason: err.Error()}
		}
	case NetworkCarrier:
		req.Network = encodeNetwork(payload.Net())
	default:
		return nil, &opf.NotImplementedError{
			Reason: fmt.Sprintf("payload %T has no wire encoding", p.Payload),
		}
	}

	start := time.Now()
	resp, err := b.run(req, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	sol := opf.NewSolution(p.FormulationID, b.name)
	switch resp.Status {
	case "solved":
	case "iteration-limit":
		return nil, &opf.ConvergenceError{Cause: opf.IterationLimit, Iterations: resp.Iterations, Residual: resp.Residual}
	case "infeasible":
		return nil, &opf.ConvergenceError{Cause: opf.Infeasible, Iterations: resp.Iterations, Residual: resp.Residual}
	case "restoration-failed":
		return nil, &opf.ConvergenceError{Cause: opf.RestorationFailed, Iterations: resp.Iterations, Residual: resp.Residual}
	default:
		return nil, fmt.Errorf("solver %s failed: %s", b.name, resp.Error)
	}

	if low != nil && resp.X != nil {
		res := &coneprog.Result{
			Status:     coneprog.StatusSolved,
			X:          resp.X,
			Y:          resp.Y,
			S:          resp.S,
			Iterations: resp.Iterations,
		}
		if err := low.Extract(res, sol); err != nil {
			return nil, err
		}
	} else {
		sol.Objective = resp.Objective
		copyInto(sol.GeneratorP, resp.GeneratorP)
		copyInto(sol.GeneratorQ, resp.GeneratorQ)
		copyInto(sol.BusVoltageMag, resp.BusVoltageMag)
		copyInto(sol.BusVoltageAng, resp.BusVoltageAng)
		copyInto(sol.BusPrice, resp.BusPrice)
		copyInto(sol.BranchFlowP, resp.BranchFlowP)
		copyInto(sol.BranchFlowQ, resp.BranchFlowQ)
		sol.TotalLossesMW = resp.TotalLossesMW
	}
	sol.Converged = true
	sol.Iterations = resp.Iterations
	sol.SolveTime = time.Since(start)
	return sol, nil
}

// run pipes one CBOR request through the solver binary.
func (b *Backend) run(req request, timeout time.Duration) (*response, error) {
	payload, err := cbor.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding solver request: %w", err)
	}

	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		// Margin so the solver's own timeout fires first and reports cleanly.
		ctx, cancel = context.WithTimeout(ctx, timeout+10*time.Second)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, b.path, "--solve")
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("solver %s exited: %w (%s)", b.name, err, stderr.String())
	}
	var resp response
	if err := cbor.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decoding solver response: %w", err)
	}
	return &resp, nil
}

func copyInto(dst, src map[string]float64) {
	for k, v := range src {
		dst[k] = v
	}
}
