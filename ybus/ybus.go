// Package ybus assembles the admittance and susceptance matrices of a
// network and the sensitivity factors derived from them (PTDF, LODF, loss
// factors). These feed the formulation tiers: B' drives the DC lowering,
// the complex Y-bus drives the AC power-balance residuals, and PTDF-based
// loss factors drive the DC tier's loss-aware refinement.
package ybus

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/gridfold/opf/network"
	"gonum.org/v1/gonum/mat"
)

// BranchAdmittance holds the two-port admittance parameters of a branch in
// the standard transmission-line pi model with an ideal tap transformer at
// the from end:
//
//	I_f = yff·V_f + yft·V_t
//	I_t = ytf·V_f + ytt·V_t
type BranchAdmittance struct {
	From, To int // bus indices
	Yff, Yft complex128
	Ytf, Ytt complex128
}

// BranchAdmittances computes the per-branch two-port parameters for all
// in-service branches, in network branch order (out-of-service branches get
// a zero entry).
func BranchAdmittances(net *network.Network) ([]BranchAdmittance, error) {
	busIdx := net.BusIndexMap()
	out := make([]BranchAdmittance, len(net.Branches))
	for i, br := range net.Branches {
		if br.Out {
			continue
		}
		z := complex(br.R, br.X)
		if cmplx.Abs(z) < 1e-12 {
			return nil, fmt.Errorf("branch %s has zero impedance", br.Name)
		}
		ys := 1 / z
		bc := complex(0, br.ChargingB/2)
		tap := cmplx.Rect(br.Tap(), br.PhaseShift)

		f, ok := busIdx[br.From]
		if !ok {
			return nil, fmt.Errorf("branch %s references unknown bus %q", br.Name, br.From)
		}
		t, ok := busIdx[br.To]
		if !ok {
			return nil, fmt.Errorf("branch %s references unknown bus %q", br.Name, br.To)
		}

		out[i] = BranchAdmittance{
			From: f,
			To:   t,
			Yff:  (ys + bc) / (tap * cmplx.Conj(tap)),
			Yft:  -ys / cmplx.Conj(tap),
			Ytf:  -ys / tap,
			Ytt:  ys + bc,
		}
	}
	return out, nil
}

// Admittance assembles the complex bus admittance matrix Y.
func Admittance(net *network.Network) (*mat.CDense, error) {
	n := len(net.Buses)
	y := mat.NewCDense(n, n, nil)

	adm, err := BranchAdmittances(net)
	if err != nil {
		return nil, err
	}
	for i, br := range net.Branches {
		if br.Out {
			continue
		}
		a := adm[i]
		y.Set(a.From, a.From, y.At(a.From, a.From)+a.Yff)
		y.Set(a.From, a.To, y.At(a.From, a.To)+a.Yft)
		y.Set(a.To, a.From, y.At(a.To, a.From)+a.Ytf)
		y.Set(a.To, a.To, y.At(a.To, a.To)+a.Ytt)
	}
	return y, nil
}

// Susceptance assembles the DC B' matrix:
//
//	B'[i][j] = -b_ij for i ≠ j, B'[i][i] = Σ_k b_ik
//
// where b = 1/x' per in-service branch.
func Susceptance(net *network.Network) (*mat.Dense, error) {
	n := len(net.Buses)
	busIdx := net.BusIndexMap()
	b := mat.NewDense(n, n, nil)

	for _, br := range net.Branches {
		if br.Out {
			continue
		}
		s, err := br.Susceptance()
		if err != nil {
			return nil, err
		}
		i, j := busIdx[br.From], busIdx[br.To]
		b.Set(i, j, b.At(i, j)-s)
		b.Set(j, i, b.At(j, i)-s)
		b.Set(i, i, b.At(i, i)+s)
		b.Set(j, j, b.At(j, j)+s)
	}
	return b, nil
}

// ValidateAngles sanity-checks a set of bus angles for NaN/Inf before they
// are used as a warm start.
func ValidateAngles(theta []float64) error {
	for i, a := range theta {
		if math.IsNaN(a) || math.IsInf(a, 0) {
			return fmt.Errorf("bus angle %d is not finite", i)
		}
	}
	return nil
}
