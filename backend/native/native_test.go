package native

import (
	"testing"

	"github.com/gridfold/opf"
	"github.com/gridfold/opf/coneprog"
	"github.com/gridfold/opf/internal/testnets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendMetadata(t *testing.T) {
	assert.Equal(t, "ipopt", Ipopt().ID())
	assert.Equal(t, []opf.ProblemClass{opf.NonlinearProgram}, Ipopt().SupportedClasses())

	assert.Equal(t, "highs", Highs().ID())
	assert.ElementsMatch(t,
		[]opf.ProblemClass{opf.LinearProgram, opf.MixedInteger},
		Highs().SupportedClasses())

	assert.Equal(t, "cbc", Cbc().ID())
	assert.Equal(t, []opf.ProblemClass{opf.MixedInteger}, Cbc().SupportedClasses())
}

func TestUnavailableWithoutBinary(t *testing.T) {
	// Point discovery at an empty directory so a host installation cannot
	// leak into the test.
	t.Setenv(SolverDirEnv, t.TempDir())
	t.Setenv("PATH", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	b := Ipopt()
	assert.False(t, b.IsAvailable())

	_, err := b.Solve(&opf.Problem{Class: opf.NonlinearProgram}, opf.SolverConfig{}, nil)
	var nb *opf.NoBackendError
	require.ErrorAs(t, err, &nb)
}

func TestHandshakeVersionGate(t *testing.T) {
	require.NoError(t, handshake{Protocol: "1.0.0", Solver: "ipopt"}.compatible())
	require.NoError(t, handshake{Protocol: "1.9.3", Solver: "ipopt"}.compatible())
	assert.Error(t, handshake{Protocol: "2.0.0", Solver: "ipopt"}.compatible())
	assert.Error(t, handshake{Protocol: "0.9.0", Solver: "ipopt"}.compatible())
	assert.Error(t, handshake{Protocol: "garbage", Solver: "ipopt"}.compatible())
}

func TestEncodeConic(t *testing.T) {
	b := coneprog.NewBuilder(3, 2)
	b.Add(0, 0, 1)
	b.Add(1, 1, 1)
	b.Add(2, 0, -1)
	prog := &coneprog.Program{
		N: 2, Q: []float64{1, 2},
		A: b.Build(), B: []float64{1, 2, 0},
		Cones:       []coneprog.Cone{coneprog.ZeroCone(1), coneprog.NonnegativeCone(1), coneprog.SecondOrderCone(1)},
		IntegerCols: []int{1},
	}

	w, err := encodeConic(prog)
	require.NoError(t, err)
	assert.Equal(t, 2, w.N)
	assert.Equal(t, 3, w.Rows)
	assert.Equal(t, []uint8{0, 1, 2}, w.ConeKinds)
	assert.Equal(t, []int{1, 1, 1}, w.ConeDims)
	assert.Equal(t, []int{1}, w.IntegerCols)
	assert.Equal(t, prog.A.ColPtr, w.ColPtr)
}

func TestEncodeNetwork(t *testing.T) {
	net := testnets.ThreeBus()
	w := encodeNetwork(net)

	assert.Equal(t, "three-bus", w.Name)
	assert.Equal(t, 100.0, w.BaseMVA)
	require.Len(t, w.Buses, 3)
	require.Len(t, w.Branches, 3)
	require.Len(t, w.Generators, 2)
	require.Len(t, w.Loads, 1)

	assert.Equal(t, "b1", w.Buses[0].Name)
	assert.Equal(t, "l12", w.Branches[0].Name)
	assert.Equal(t, "b1", w.Branches[0].From)
	assert.Equal(t, 100.0, w.Generators[0].PMax)
	assert.Equal(t, []float64{0, 10}, w.Generators[0].Coeffs)
	assert.Equal(t, 120.0, w.Loads[0].P)
}
