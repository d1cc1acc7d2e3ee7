package network

// CostCurve maps a generator's active output (MW) to cost ($/hr).
// Either a polynomial (Coeffs[i] multiplies P^i) or a piecewise-linear set
// of (MW, $/hr) breakpoints; polynomial wins when both are set. A zero-value
// curve costs nothing.
type CostCurve struct {
	Coeffs []float64
	Points [][2]float64
}

// QuadraticCost returns c0 + c1·P + c2·P².
func QuadraticCost(c0, c1, c2 float64) CostCurve {
	return CostCurve{Coeffs: []float64{c0, c1, c2}}
}

// LinearCost returns c0 + c1·P.
func LinearCost(c0, c1 float64) CostCurve {
	return CostCurve{Coeffs: []float64{c0, c1}}
}

// PiecewiseCost returns a piecewise-linear curve over (MW, $/hr) breakpoints.
func PiecewiseCost(points [][2]float64) CostCurve {
	return CostCurve{Points: points}
}

// Coeff returns Coeffs[i], zero when absent.
func (c CostCurve) Coeff(i int) float64 {
	if i < len(c.Coeffs) {
		return c.Coeffs[i]
	}
	return 0
}

// At evaluates the cost at p MW.
func (c CostCurve) At(p float64) float64 {
	if len(c.Coeffs) > 0 {
		cost, pow := 0.0, 1.0
		for _, ci := range c.Coeffs {
			cost += ci * pow
			pow *= p
		}
		return cost
	}
	if len(c.Points) == 0 {
		return 0
	}
	if p <= c.Points[0][0] {
		return c.Points[0][1]
	}
	last := c.Points[len(c.Points)-1]
	if p >= last[0] {
		return last[1]
	}
	for i := 0; i < len(c.Points)-1; i++ {
		a, b := c.Points[i], c.Points[i+1]
		if p >= a[0] && p <= b[0] {
			t := (p - a[0]) / (b[0] - a[0])
			return a[1] + t*(b[1]-a[1])
		}
	}
	return 0
}

// Marginal evaluates dCost/dP at p MW.
func (c CostCurve) Marginal(p float64) float64 {
	if len(c.Coeffs) > 0 {
		mc, pow := 0.0, 1.0
		for i := 1; i < len(c.Coeffs); i++ {
			mc += float64(i) * c.Coeffs[i] * pow
			pow *= p
		}
		return mc
	}
	if len(c.Points) < 2 {
		return 0
	}
	for i := 0; i < len(c.Points)-1; i++ {
		a, b := c.Points[i], c.Points[i+1]
		if p >= a[0] && p <= b[0] && b[0] > a[0] {
			return (b[1] - a[1]) / (b[0] - a[0])
		}
	}
	// Outside the breakpoints: extend the nearest segment's slope.
	a, b := c.Points[len(c.Points)-2], c.Points[len(c.Points)-1]
	if p < c.Points[0][0] {
		a, b = c.Points[0], c.Points[1]
	}
	if b[0] == a[0] {
		return 0
	}
	return (b[1] - a[1]) / (b[0] - a[0])
}

// PolyCoeffs returns quadratic coefficients (c0, c1, c2) for lowering into
// LP/QP objectives. Piecewise curves are approximated by the marginal cost
// at the midpoint of [pmin, pmax], the same simplification the DC tier of
// most production tools applies.
func (c CostCurve) PolyCoeffs(pmin, pmax float64) (c0, c1, c2 float64) {
	if len(c.Coeffs) > 0 {
		return c.Coeff(0), c.Coeff(1), c.Coeff(2)
	}
	if len(c.Points) > 0 {
		mid := (pmin + pmax) / 2
		return 0, c.Marginal(mid), 0
	}
	return 0, 0, 0
}

func (c CostCurve) clone() CostCurve {
	out := CostCurve{}
	if c.Coeffs != nil {
		out.Coeffs = append([]float64(nil), c.Coeffs...)
	}
	if c.Points != nil {
		out.Points = append([][2]float64(nil), c.Points...)
	}
	return out
}
