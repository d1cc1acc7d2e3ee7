package splitcone

import (
	"fmt"
	"math"
	"time"

	"github.com/gridfold/opf/coneprog"
	"gonum.org/v1/gonum/mat"
)

// admm solver parameters. rho is the constraint penalty, sigma a small
// primal regularizer that keeps the KKT system positive definite for pure
// LPs, alpha the over-relaxation factor.
const (
	defaultRho   = 1.0
	defaultSigma = 1e-6
	defaultAlpha = 1.6

	divergenceLimit = 1e12
)

type iterOpts struct {
	maxIter int
	tol     float64
	timeout time.Duration
	x0      []float64
}

// solve runs the operator-splitting iteration on prog:
//
//	x ← argmin ½xᵀPx + qᵀx + (ρ/2)‖Ax + s − b + y/ρ‖² + (σ/2)‖x − xᵏ‖²
//	s ← Proj_K(b − Ax − y/ρ)
//	y ← y + ρ(Ax + s − b)
//
// The x-update linear system (P + σI + ρAᵀA) is factored once by Cholesky
// and reused every iteration.
func solve(prog *coneprog.Program, o iterOpts) (*coneprog.Result, error) {
	n, m := prog.N, prog.A.Rows
	rho, sigma := defaultRho, defaultSigma

	// KKT matrix M = diag(P) + σI + ρAᵀA, formed dense.
	ad := prog.A.Dense()
	var ata mat.Dense
	ata.Mul(ad.T(), ad)
	kkt := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := rho * ata.At(i, j)
			if i == j {
				v += sigma
				if prog.Pdiag != nil {
					v += prog.Pdiag[i]
				}
			}
			kkt.SetSym(i, j, v)
		}
	}
	var chol mat.Cholesky
	if !chol.Factorize(kkt) {
		return nil, fmt.Errorf("kkt matrix is not positive definite")
	}

	x := make([]float64, n)
	if o.x0 != nil {
		copy(x, o.x0)
	}
	s := make([]float64, m)
	y := make([]float64, m)

	ax := make([]float64, m)
	prog.A.MulVec(ax, x)
	for i := range s {
		s[i] = prog.B[i] - ax[i]
	}
	projectCones(prog.Cones, s)

	rhs := make([]float64, n)
	aty := make([]float64, n)
	sPrev := make([]float64, m)
	rDual := make([]float64, n)
	deadline := time.Time{}
	if o.timeout > 0 {
		deadline = time.Now().Add(o.timeout)
	}

	var primal, dual float64
	for k := 1; k <= o.maxIter; k++ {
		// x-update rhs: σxᵏ − q − Aᵀ(y + ρ(s − b))
		for i := range sPrev {
			sPrev[i] = y[i] + rho*(s[i]-prog.B[i])
		}
		prog.A.MulVecTrans(aty, sPrev)
		for i := 0; i < n; i++ {
			rhs[i] = sigma*x[i] - prog.Q[i] - aty[i]
		}
		xv := mat.NewVecDense(n, x)
		if err := chol.SolveVecTo(xv, mat.NewVecDense(n, rhs)); err != nil {
			return nil, fmt.Errorf("kkt solve failed: %w", err)
		}

		prog.A.MulVec(ax, x)

		copy(sPrev, s)
		for i := range s {
			s[i] = o.relax(prog.B[i]-ax[i], sPrev[i]) - y[i]/rho
		}
		projectCones(prog.Cones, s)

		primal = 0
		for i := range y {
			r := ax[i] + s[i] - prog.B[i]
			y[i] += rho * r
			if a := math.Abs(r); a > primal {
				primal = a
			}
		}

		// Dual residual ρ·Aᵀ(s − sᵏ).
		for i := range sPrev {
			sPrev[i] = rho * (s[i] - sPrev[i])
		}
		prog.A.MulVecTrans(rDual, sPrev)
		dual = 0
		for _, v := range rDual {
			if a := math.Abs(v); a > dual {
				dual = a
			}
		}

		if primal < o.tol && dual < o.tol {
			return result(prog, coneprog.StatusSolved, x, y, s, k, primal, dual), nil
		}
		if primal > divergenceLimit || normInf(x) > divergenceLimit {
			return result(prog, coneprog.StatusInfeasible, x, y, s, k, primal, dual), nil
		}
		if !deadline.IsZero() && k%100 == 0 && time.Now().After(deadline) {
			return result(prog, coneprog.StatusIterationLimit, x, y, s, k, primal, dual), nil
		}
	}
	return result(prog, coneprog.StatusIterationLimit, x, y, s, o.maxIter, primal, dual), nil
}

// relax applies over-relaxation to the consensus term.
func (o iterOpts) relax(fresh, prev float64) float64 {
	return defaultAlpha*fresh + (1-defaultAlpha)*prev
}

func projectCones(cones []coneprog.Cone, s []float64) {
	off := 0
	for _, c := range cones {
		c.Project(s[off : off+c.Dim()])
		off += c.Dim()
	}
}

func normInf(v []float64) float64 {
	var m float64
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}

func result(prog *coneprog.Program, st coneprog.Status, x, y, s []float64, iters int, primal, dual float64) *coneprog.Result {
	return &coneprog.Result{
		Status:     st,
		X:          append([]float64(nil), x...),
		Y:          append([]float64(nil), y...),
		S:          append([]float64(nil), s...),
		Objective:  prog.Objective(x),
		Iterations: iters,
		PrimalRes:  primal,
		DualRes:    dual,
	}
}
