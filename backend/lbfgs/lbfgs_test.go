package lbfgs

import (
	"math"
	"testing"

	"github.com/gridfold/opf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quadProgram minimizes (x₀-1)² + (x₁+1)² subject to x₀ + x₁ = target,
// within [-10, 10] bounds.
type quadProgram struct {
	target float64
	warmed bool
}

func (q *quadProgram) Dim() int { return 2 }

func (q *quadProgram) Cost(x []float64) float64 {
	return (x[0]-1)*(x[0]-1) + (x[1]+1)*(x[1]+1)
}

func (q *quadProgram) residual(x []float64) float64 {
	return x[0] + x[1] - q.target
}

func (q *quadProgram) Penalty(x []float64) float64 {
	r := q.residual(x)
	return r * r
}

func (q *quadProgram) MaxViolation(x []float64) float64 {
	return math.Abs(q.residual(x))
}

func (q *quadProgram) Bounds() (lo, hi []float64) {
	return []float64{-10, -10}, []float64{10, 10}
}

func (q *quadProgram) InitialPoint() []float64 { return []float64{0, 0} }

func (q *quadProgram) WarmPoint(ws *opf.WarmStart) []float64 {
	if ws == nil || ws.Kind == opf.Flat {
		return nil
	}
	q.warmed = true
	return []float64{q.target / 2, q.target / 2}
}

func (q *quadProgram) Extract(x []float64, sol *opf.Solution) error {
	sol.Objective = q.Cost(x)
	sol.GeneratorP["x0"] = x[0]
	sol.GeneratorP["x1"] = x[1]
	return nil
}

func newCfg(t *testing.T) opf.SolverConfig {
	t.Helper()
	cfg, err := opf.NewSolverConfig(opf.WithMaxIterations(2000), opf.WithTolerance(1e-6))
	require.NoError(t, err)
	return cfg
}

func TestBackendMetadata(t *testing.T) {
	b := New()
	assert.Equal(t, "lbfgs", b.ID())
	assert.True(t, b.IsAvailable())
	assert.Equal(t, []opf.ProblemClass{opf.NonlinearProgram}, b.SupportedClasses())
}

func TestSolveRejectsForeignPayload(t *testing.T) {
	b := New()
	_, err := b.Solve(&opf.Problem{Payload: 42}, newCfg(t), nil)
	var nie *opf.NotImplementedError
	require.ErrorAs(t, err, &nie)
}

func TestSolvePenaltyMethod(t *testing.T) {
	b := New()
	prog := &quadProgram{target: 2}
	sol, err := b.Solve(&opf.Problem{FormulationID: "quad", Payload: prog}, newCfg(t), nil)
	require.NoError(t, err)

	require.True(t, sol.Converged)
	assert.Equal(t, "lbfgs", sol.BackendID)
	// The constrained optimum of this quadratic is x = (2, 0).
	assert.InDelta(t, 2.0, sol.GeneratorP["x0"], 5e-2)
	assert.InDelta(t, 0.0, sol.GeneratorP["x1"], 5e-2)
	assert.InDelta(t, 2.0, sol.GeneratorP["x0"]+sol.GeneratorP["x1"], feasFloor*2)
}

func TestSolveUsesWarmPoint(t *testing.T) {
	b := New()
	prog := &quadProgram{target: 2}
	ws := &opf.WarmStart{Kind: opf.DcDerived}
	_, err := b.Solve(&opf.Problem{FormulationID: "quad", Payload: prog}, newCfg(t), ws)
	require.NoError(t, err)
	assert.True(t, prog.warmed)
}

// boundBlocked demands x = 5 while the bounds cap x at 1; restoration
// cannot succeed.
type boundBlocked struct{ quadProgram }

func (b *boundBlocked) Bounds() (lo, hi []float64) {
	return []float64{0, 0}, []float64{1, 1}
}

func TestSolveReportsRestorationFailure(t *testing.T) {
	b := New()
	prog := &boundBlocked{quadProgram{target: 5}}
	_, err := b.Solve(&opf.Problem{FormulationID: "quad", Payload: prog}, newCfg(t), nil)
	require.Error(t, err)

	var ce *opf.ConvergenceError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, opf.RestorationFailed, ce.Cause)
	assert.Greater(t, ce.Residual, 1.0)
}
