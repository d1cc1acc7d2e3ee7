package ybus

import (
	"math"
	"testing"

	"github.com/gridfold/opf/internal/testnets"
	"github.com/gridfold/opf/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSusceptanceStructure(t *testing.T) {
	net := testnets.ThreeBus()
	bp, err := Susceptance(net)
	require.NoError(t, err)

	n := len(net.Buses)
	for i := 0; i < n; i++ {
		// Symmetric, diagonally dominant, zero row sums (no shunts in DC).
		var row float64
		for j := 0; j < n; j++ {
			assert.InDelta(t, bp.At(j, i), bp.At(i, j), 1e-12)
			row += bp.At(i, j)
		}
		assert.InDelta(t, 0.0, row, 1e-9)
		assert.Greater(t, bp.At(i, i), 0.0)
	}
}

func TestSusceptanceSkipsOutagedBranches(t *testing.T) {
	net := testnets.ThreeBus()
	full, err := Susceptance(net)
	require.NoError(t, err)

	net.Branches[0].Out = true
	reduced, err := Susceptance(net)
	require.NoError(t, err)

	b, err := net.Branches[0].Susceptance()
	require.NoError(t, err)
	assert.InDelta(t, full.At(0, 0)-b, reduced.At(0, 0), 1e-12)
	assert.InDelta(t, 0.0, reduced.At(0, 1), 1e-12)
}

func TestAdmittanceRowSums(t *testing.T) {
	net := testnets.ThreeBus()
	y, err := Admittance(net)
	require.NoError(t, err)

	// Without shunts or taps, each row of Y sums to the charging injection
	// at that bus (zero here).
	n := len(net.Buses)
	for i := 0; i < n; i++ {
		var sum complex128
		for j := 0; j < n; j++ {
			sum += y.At(i, j)
		}
		assert.InDelta(t, 0.0, real(sum), 1e-9)
		assert.InDelta(t, 0.0, imag(sum), 1e-9)
	}
}

func TestAdmittanceRejectsZeroImpedance(t *testing.T) {
	net := testnets.TwoBus()
	net.Branches[0].R = 0
	net.Branches[0].X = 0
	_, err := Admittance(net)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zero impedance")
}

func TestPTDFReferenceColumnIsZero(t *testing.T) {
	net := testnets.ThreeBus()
	ptdf, err := NewPTDF(net)
	require.NoError(t, err)

	for l := range net.Branches {
		assert.InDelta(t, 0.0, ptdf.Factors.At(l, ptdf.Ref), 1e-12)
	}
}

func TestPTDFInjectionSplitsAcrossPaths(t *testing.T) {
	net := testnets.ThreeBus()
	ptdf, err := NewPTDF(net)
	require.NoError(t, err)

	// An injection at b3 returns to the reference over l13 directly and
	// over l23+l12; the two path flows must add to the full injection.
	busIdx := net.BusIndexMap()
	i3 := busIdx["b3"]
	f13 := ptdf.Factors.At(1, i3) // l13, measured from→to
	f23 := ptdf.Factors.At(2, i3)
	assert.InDelta(t, -1.0, f13+f23, 1e-9)

	for l := range net.Branches {
		assert.LessOrEqual(t, math.Abs(ptdf.Factors.At(l, i3)), 1.0+1e-9)
	}
}

func TestPTDFRequiresReference(t *testing.T) {
	net := testnets.ThreeBus()
	net.Buses[0].Type = network.LoadBus
	_, err := NewPTDF(net)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no reference bus")
}

func TestLODF(t *testing.T) {
	net := testnets.ThreeBus()
	ptdf, err := NewPTDF(net)
	require.NoError(t, err)
	lodf := ptdf.LODF(net)

	// Tripping l13 forces its flow onto the l12+l23 path in full.
	assert.InDelta(t, -1.0, lodf.At(1, 1), 1e-12)
	assert.InDelta(t, 1.0, lodf.At(2, 1), 1e-9)
	assert.InDelta(t, 1.0, lodf.At(0, 1), 1e-9)
}

func TestIslandingOutage(t *testing.T) {
	radial := testnets.TwoBus()
	ptdf, err := NewPTDF(radial)
	require.NoError(t, err)
	assert.True(t, ptdf.IslandingOutage(radial, 0))

	meshed := testnets.ThreeBus()
	ptdf, err = NewPTDF(meshed)
	require.NoError(t, err)
	for k := range meshed.Branches {
		assert.False(t, ptdf.IslandingOutage(meshed, k), "triangle survives any single outage")
	}
}

func TestBranchLosses(t *testing.T) {
	net := testnets.ThreeBus()
	flows := []float64{0.5, 1.0, 0.0}
	per, total := BranchLosses(net, flows)

	assert.InDelta(t, 0.010*0.25, per[0], 1e-12)
	assert.InDelta(t, 0.012*1.0, per[1], 1e-12)
	assert.Zero(t, per[2])
	assert.InDelta(t, per[0]+per[1], total, 1e-12)
}

func TestLossFactorsIncreaseDownstream(t *testing.T) {
	net := testnets.ThreeBus()
	ptdf, err := NewPTDF(net)
	require.NoError(t, err)

	// With power flowing toward b3, extra injection at b3 backs flows off
	// and its loss factor drops below the reference's.
	flows := []float64{0.3, 0.6, 0.4}
	lambda := ptdf.LossFactors(net, flows)
	busIdx := net.BusIndexMap()
	assert.InDelta(t, 1.0, lambda[ptdf.Ref], 1e-12)
	assert.Less(t, lambda[busIdx["b3"]], 1.0)
}

func TestValidateAngles(t *testing.T) {
	require.NoError(t, ValidateAngles([]float64{0, 0.1, -0.2}))
	assert.Error(t, ValidateAngles([]float64{0, math.NaN()}))
	assert.Error(t, ValidateAngles([]float64{math.Inf(1)}))
}
