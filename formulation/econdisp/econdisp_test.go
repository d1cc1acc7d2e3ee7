package econdisp

import (
	"testing"

	"github.com/gridfold/opf"
	"github.com/gridfold/opf/backend/splitcone"
	"github.com/gridfold/opf/internal/testnets"
	"github.com/gridfold/opf/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cfg(t *testing.T) opf.SolverConfig {
	t.Helper()
	c, err := opf.NewSolverConfig(opf.WithMaxIterations(100000), opf.WithTolerance(1e-7))
	require.NoError(t, err)
	return c
}

func TestFormulationMetadata(t *testing.T) {
	f := New()
	assert.Equal(t, "economic-dispatch", f.ID())
	assert.Equal(t, opf.LinearProgram, f.ProblemClass())
	assert.Equal(t, []opf.WarmStartKind{opf.Flat}, f.AcceptedWarmStarts())
}

func TestMeritOrderDispatch(t *testing.T) {
	net := testnets.ThreeBus()
	p, err := New().BuildProblem(net)
	require.NoError(t, err)

	sol, err := splitcone.New().Solve(p, cfg(t), nil)
	require.NoError(t, err)
	require.True(t, sol.Converged)

	// Demand plus the 1% loss adder: 121.2 MW. Merit order fills the cheap
	// unit first.
	total := sol.GeneratorP["g1"] + sol.GeneratorP["g2"]
	assert.InDelta(t, 121.2, total, 0.5)
	assert.InDelta(t, 100.0, sol.GeneratorP["g1"], 0.5)
	assert.InDelta(t, 21.2, sol.GeneratorP["g2"], 0.5)

	// Single system price from the marginal unit, on every bus.
	for _, bus := range []string{"b1", "b2", "b3"} {
		assert.InDelta(t, 25.0, sol.BusPrice[bus], 1.0)
	}

	assert.InDelta(t, 120.0*0.01, sol.TotalLossesMW, 1e-9)
	assert.InDelta(t, 10*100+25*21.2, sol.Objective, 10)
}

func TestCapacityShortfallIsDataError(t *testing.T) {
	net := network.New("short")
	net.AddBus(network.Bus{Name: "b1", Type: network.Reference}).
		AddGenerator(network.Generator{Name: "g1", Bus: "b1", PMax: 10, Cost: network.LinearCost(0, 10)}).
		AddLoad(network.Load{Name: "d1", Bus: "b1", P: 50})

	_, err := New().BuildProblem(net)
	var de *opf.DataError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Reason, "capacity")
}

func TestBindingLimits(t *testing.T) {
	net := testnets.ThreeBus()
	p, err := New().BuildProblem(net)
	require.NoError(t, err)

	sol, err := splitcone.New().Solve(p, cfg(t), nil)
	require.NoError(t, err)

	var sawG1Max bool
	for _, bc := range sol.Binding {
		if bc.Name == "g1" && bc.Kind == opf.GeneratorPMax {
			sawG1Max = true
			assert.InDelta(t, 15.0, bc.ShadowPrice, 1.5)
		}
	}
	assert.True(t, sawG1Max)
}
