package splitcone

import (
	"testing"

	"github.com/gridfold/opf/coneprog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runSolve(t *testing.T, p *coneprog.Program, maxIter int) *coneprog.Result {
	t.Helper()
	require.NoError(t, p.Validate())
	res, err := solve(p, iterOpts{maxIter: maxIter, tol: 1e-7})
	require.NoError(t, err)
	return res
}

func TestSolveEqualityLP(t *testing.T) {
	// min x subject to x = 2.
	b := coneprog.NewBuilder(1, 1)
	b.Add(0, 0, 1)
	p := &coneprog.Program{
		N: 1, Q: []float64{1},
		A: b.Build(), B: []float64{2},
		Cones: []coneprog.Cone{coneprog.ZeroCone(1)},
	}

	res := runSolve(t, p, 10000)
	require.Equal(t, coneprog.StatusSolved, res.Status)
	assert.InDelta(t, 2.0, res.X[0], 1e-4)
	assert.InDelta(t, 2.0, res.Objective, 1e-3)
	// Stationarity gives y = -c for the equality multiplier.
	assert.InDelta(t, -1.0, res.Y[0], 1e-3)
}

func TestSolveBoxLP(t *testing.T) {
	// min -x subject to 0 ≤ x ≤ 1; optimum at the upper bound.
	b := coneprog.NewBuilder(2, 1)
	b.Add(0, 0, 1)
	b.Add(1, 0, -1)
	p := &coneprog.Program{
		N: 1, Q: []float64{-1},
		A: b.Build(), B: []float64{1, 0},
		Cones: []coneprog.Cone{coneprog.NonnegativeCone(2)},
	}

	res := runSolve(t, p, 20000)
	require.Equal(t, coneprog.StatusSolved, res.Status)
	assert.InDelta(t, 1.0, res.X[0], 1e-3)
	assert.InDelta(t, 0.0, res.S[0], 1e-3, "upper bound binds")
	assert.Greater(t, res.Y[0], 0.5, "binding row carries a positive multiplier")
}

func TestSolveEqualityQP(t *testing.T) {
	// min ½(x₁² + x₂²) subject to x₁ + x₂ = 2; optimum (1, 1).
	b := coneprog.NewBuilder(1, 2)
	b.Add(0, 0, 1)
	b.Add(0, 1, 1)
	p := &coneprog.Program{
		N: 2, Pdiag: []float64{1, 1}, Q: []float64{0, 0},
		A: b.Build(), B: []float64{2},
		Cones: []coneprog.Cone{coneprog.ZeroCone(1)},
	}

	res := runSolve(t, p, 10000)
	require.Equal(t, coneprog.StatusSolved, res.Status)
	assert.InDelta(t, 1.0, res.X[0], 1e-4)
	assert.InDelta(t, 1.0, res.X[1], 1e-4)
	assert.InDelta(t, 1.0, res.Objective, 1e-3)
}

func TestSolveSecondOrderCone(t *testing.T) {
	// min x₀ subject to x₀ ≥ ‖(x₁, x₂)‖, x₁ = 3, x₂ = 4; optimum x₀ = 5.
	b := coneprog.NewBuilder(5, 3)
	b.Add(0, 1, 1)
	b.Add(1, 2, 1)
	b.Add(2, 0, -1)
	b.Add(3, 1, -1)
	b.Add(4, 2, -1)
	p := &coneprog.Program{
		N: 3, Q: []float64{1, 0, 0},
		A: b.Build(), B: []float64{3, 4, 0, 0, 0},
		Cones: []coneprog.Cone{coneprog.ZeroCone(2), coneprog.SecondOrderCone(3)},
	}

	res := runSolve(t, p, 50000)
	require.Equal(t, coneprog.StatusSolved, res.Status)
	assert.InDelta(t, 5.0, res.X[0], 1e-2)
}

func TestSolveInfeasibleDoesNotReportSolved(t *testing.T) {
	// x = 1 and x = 2 simultaneously.
	b := coneprog.NewBuilder(2, 1)
	b.Add(0, 0, 1)
	b.Add(1, 0, 1)
	p := &coneprog.Program{
		N: 1, Q: []float64{0},
		A: b.Build(), B: []float64{1, 2},
		Cones: []coneprog.Cone{coneprog.ZeroCone(2)},
	}

	require.NoError(t, p.Validate())
	res, err := solve(p, iterOpts{maxIter: 2000, tol: 1e-7})
	require.NoError(t, err)
	assert.NotEqual(t, coneprog.StatusSolved, res.Status)
}

func TestSolveWarmStartShortensRun(t *testing.T) {
	b := coneprog.NewBuilder(1, 2)
	b.Add(0, 0, 1)
	b.Add(0, 1, 1)
	p := &coneprog.Program{
		N: 2, Pdiag: []float64{1, 1}, Q: []float64{0, 0},
		A: b.Build(), B: []float64{2},
		Cones: []coneprog.Cone{coneprog.ZeroCone(1)},
	}

	cold, err := solve(p, iterOpts{maxIter: 10000, tol: 1e-9})
	require.NoError(t, err)
	require.Equal(t, coneprog.StatusSolved, cold.Status)

	warm, err := solve(p, iterOpts{maxIter: 10000, tol: 1e-9, x0: cold.X})
	require.NoError(t, err)
	require.Equal(t, coneprog.StatusSolved, warm.Status)
	assert.LessOrEqual(t, warm.Iterations, cold.Iterations)
}
