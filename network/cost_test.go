package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuadraticCost(t *testing.T) {
	c := QuadraticCost(100, 10, 0.05)
	assert.InDelta(t, 100.0, c.At(0), 1e-12)
	assert.InDelta(t, 100+10*20+0.05*400, c.At(20), 1e-12)
	assert.InDelta(t, 10+2*0.05*20, c.Marginal(20), 1e-12)

	c0, c1, c2 := c.PolyCoeffs(0, 100)
	assert.Equal(t, 100.0, c0)
	assert.Equal(t, 10.0, c1)
	assert.Equal(t, 0.05, c2)
}

func TestLinearCost(t *testing.T) {
	c := LinearCost(5, 12)
	assert.InDelta(t, 5+12*30, c.At(30), 1e-12)
	assert.InDelta(t, 12.0, c.Marginal(30), 1e-12)
}

func TestPiecewiseCost(t *testing.T) {
	c := PiecewiseCost([][2]float64{{0, 0}, {50, 500}, {100, 1500}})

	assert.InDelta(t, 250.0, c.At(25), 1e-12)  // first segment, 10 $/MWh
	assert.InDelta(t, 1000.0, c.At(75), 1e-12) // second segment, 20 $/MWh
	assert.InDelta(t, 10.0, c.Marginal(25), 1e-12)
	assert.InDelta(t, 20.0, c.Marginal(75), 1e-12)

	// Clamped outside the breakpoints.
	assert.InDelta(t, 0.0, c.At(-10), 1e-12)
	assert.InDelta(t, 1500.0, c.At(200), 1e-12)

	// Lowering approximates by the marginal at the band midpoint.
	_, c1, c2 := c.PolyCoeffs(0, 100)
	assert.InDelta(t, 10.0, c1, 1e-12)
	assert.Zero(t, c2)
}

func TestZeroValueCost(t *testing.T) {
	var c CostCurve
	assert.Zero(t, c.At(50))
	assert.Zero(t, c.Marginal(50))
	c0, c1, c2 := c.PolyCoeffs(0, 10)
	assert.Zero(t, c0)
	assert.Zero(t, c1)
	assert.Zero(t, c2)
}
