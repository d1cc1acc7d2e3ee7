// Package socp implements the conic-tier formulation: a second-order cone
// relaxation of optimal power flow in the branch-flow model. Squared
// voltage magnitudes, squared branch currents and directed complex flows
// are decision variables; the nonconvex current equation v·ℓ = P² + Q² is
// relaxed to a rotated second-order cone, and bus angles are recovered
// through a linearized angle-linkage row per branch.
package socp

import (
	"math"

	"github.com/gridfold/opf"
	"github.com/gridfold/opf/coneprog"
	"github.com/gridfold/opf/network"
)

// FormulationID identifies this formulation in the registry.
const FormulationID = "socp-opf"

const bindingTol = 1e-5

// Formulation is the branch-flow SOCP relaxation.
type Formulation struct{}

// New returns the SOCP formulation.
func New() *Formulation { return &Formulation{} }

// ID implements opf.Formulation.
func (*Formulation) ID() string { return FormulationID }

// ProblemClass implements opf.Formulation.
func (*Formulation) ProblemClass() opf.ProblemClass { return opf.ConicProgram }

// AcceptedWarmStarts implements opf.Formulation.
func (*Formulation) AcceptedWarmStarts() []opf.WarmStartKind {
	return []opf.WarmStartKind{opf.Flat, opf.DcDerived}
}

// BuildProblem implements opf.Formulation.
func (f *Formulation) BuildProblem(net *network.Network) (*opf.Problem, error) {
	if err := net.Validate(); err != nil {
		return nil, &opf.DataError{Reason: err.Error()}
	}
	ref, ok := net.ReferenceBus()
	if !ok {
		return nil, &opf.DataError{Reason: "network has no reference bus"}
	}
	var brs []int
	for i, br := range net.Branches {
		if !br.Out {
			brs = append(brs, i)
		}
	}
	low := &lowering{net: net, ref: ref, brs: brs}
	return &opf.Problem{
		FormulationID: FormulationID,
		Class:         opf.ConicProgram,
		NbBuses:       len(net.Buses),
		NbGenerators:  len(net.Generators),
		Payload:       low,
	}, nil
}

// lowering lowers the network into the conic IR. The decision vector is
//
//	x = [v (nb) | θ non-ref (nb−1) | Pg (ng) | Qg (ng) | Pf (nl) | Qf (nl) | ℓ (nl)]
//
// with v = |V|² and ℓ = |I|², all per-unit.
type lowering struct {
	net  *network.Network
	ref  int
	brs  []int // in-service branch indices
	rows []rowMeta
}

type rowMeta struct {
	kind  opf.ConstraintKind
	name  string
	limit float64
}

type layout struct {
	nb, ng, nl            int
	v, th, pg, qg, pf, qf int
	ll                    int
	n                     int
}

func (l *lowering) layout() layout {
	nb, ng, nl := len(l.net.Buses), len(l.net.Generators), len(l.brs)
	lay := layout{nb: nb, ng: ng, nl: nl}
	lay.v = 0
	lay.th = nb
	lay.pg = lay.th + nb - 1
	lay.qg = lay.pg + ng
	lay.pf = lay.qg + ng
	lay.qf = lay.pf + nl
	lay.ll = lay.qf + nl
	lay.n = lay.ll + nl
	return lay
}

func (l *lowering) thetaCol(lay layout, j int) int {
	if j == l.ref {
		return -1
	}
	if j > l.ref {
		j--
	}
	return lay.th + j
}

// Program implements coneprog.Lowering.
func (l *lowering) Program() (*coneprog.Program, error) {
	net := l.net
	base := net.Base()
	busIdx := net.BusIndexMap()
	lay := l.layout()
	nb, ng, nl := lay.nb, lay.ng, lay.nl

	nRated := 0
	for _, bi := range l.brs {
		if net.Branches[bi].RateMVA > 0 {
			nRated++
		}
	}

	nZero := 2*nb + 2*nl // P/Q balance, voltage drop, angle link
	nIneq := 4*ng + 2*nb // gen P/Q bounds, voltage bounds
	nRows := nZero + nIneq + 3*nRated + 4*nl

	a := coneprog.NewBuilder(nRows, lay.n)
	b := make([]float64, nRows)
	l.rows = make([]rowMeta, nRows)

	// Groups 1–2: nodal active and reactive balance (zero cone).
	for i, bus := range net.Buses {
		rp, rq := i, nb+i
		for g, gen := range net.Generators {
			if busIdx[gen.Bus] == i {
				a.Add(rp, lay.pg+g, 1)
				a.Add(rq, lay.qg+g, 1)
			}
		}
		for k, bi := range l.brs {
			br := net.Branches[bi]
			fi, ti := busIdx[br.From], busIdx[br.To]
			if fi == i {
				a.Add(rp, lay.pf+k, -1)
				a.Add(rq, lay.qf+k, -1)
				a.Add(rq, lay.v+i, br.ChargingB/2)
			}
			if ti == i {
				a.Add(rp, lay.pf+k, 1)
				a.Add(rp, lay.ll+k, -br.R)
				a.Add(rq, lay.qf+k, 1)
				a.Add(rq, lay.ll+k, -br.X)
				a.Add(rq, lay.v+i, br.ChargingB/2)
			}
		}
		pd, qd := net.LoadAt(bus.Name)
		b[rp] = pd / base
		b[rq] = qd / base
		l.rows[rp] = rowMeta{kind: opf.PowerBalance, name: bus.Name}
		l.rows[rq] = rowMeta{kind: opf.PowerBalance, name: bus.Name}
	}

	// Group 3: voltage drop v_t = v_f/t² − 2(r·Pf + x·Qf) + (r²+x²)·ℓ.
	// Group 4: angle linkage θ_f − θ_t − (x·Pf − r·Qf) = shift, linearized
	// around a flat voltage profile.
	for k, bi := range l.brs {
		br := net.Branches[bi]
		fi, ti := busIdx[br.From], busIdx[br.To]
		t2 := br.Tap() * br.Tap()

		rd := 2*nb + k
		a.Add(rd, lay.v+ti, 1)
		a.Add(rd, lay.v+fi, -1/t2)
		a.Add(rd, lay.pf+k, 2*br.R)
		a.Add(rd, lay.qf+k, 2*br.X)
		a.Add(rd, lay.ll+k, -(br.R*br.R + br.X*br.X))
		l.rows[rd] = rowMeta{kind: opf.PowerBalance, name: br.Name}

		ra := 2*nb + nl + k
		if col := l.thetaCol(lay, fi); col >= 0 {
			a.Add(ra, col, 1)
		}
		if col := l.thetaCol(lay, ti); col >= 0 {
			a.Add(ra, col, -1)
		}
		a.Add(ra, lay.pf+k, -br.X)
		a.Add(ra, lay.qf+k, br.R)
		b[ra] = br.PhaseShift
		l.rows[ra] = rowMeta{kind: opf.PowerBalance, name: br.Name}
	}

	// Groups 5–6: generator and voltage bounds (nonnegative cone).
	row := nZero
	for g, gen := range net.Generators {
		a.Add(row, lay.pg+g, 1)
		b[row] = gen.PMax / base
		l.rows[row] = rowMeta{kind: opf.GeneratorPMax, name: gen.Name, limit: gen.PMax}
		row++
		a.Add(row, lay.pg+g, -1)
		b[row] = -gen.PMin / base
		l.rows[row] = rowMeta{kind: opf.GeneratorPMin, name: gen.Name, limit: gen.PMin}
		row++
		a.Add(row, lay.qg+g, 1)
		b[row] = gen.QMax / base
		l.rows[row] = rowMeta{kind: opf.GeneratorQMax, name: gen.Name, limit: gen.QMax}
		row++
		a.Add(row, lay.qg+g, -1)
		b[row] = -gen.QMin / base
		l.rows[row] = rowMeta{kind: opf.GeneratorQMin, name: gen.Name, limit: gen.QMin}
		row++
	}
	for i, bus := range net.Buses {
		vmin, vmax := bus.VoltageLimits()
		a.Add(row, lay.v+i, 1)
		b[row] = vmax * vmax
		l.rows[row] = rowMeta{kind: opf.VoltageMax, name: bus.Name, limit: vmax}
		row++
		a.Add(row, lay.v+i, -1)
		b[row] = -vmin * vmin
		l.rows[row] = rowMeta{kind: opf.VoltageMin, name: bus.Name, limit: vmin}
		row++
	}

	cones := []coneprog.Cone{
		coneprog.ZeroCone(nZero),
		coneprog.NonnegativeCone(nIneq),
	}

	// Group 7: thermal limits rate ≥ ‖(Pf, Qf)‖ (second-order cone, dim 3).
	for k, bi := range l.brs {
		br := net.Branches[bi]
		if br.RateMVA <= 0 {
			continue
		}
		b[row] = br.RateMVA / base
		l.rows[row] = rowMeta{kind: opf.BranchFlowLimit, name: br.Name, limit: br.RateMVA}
		a.Add(row+1, lay.pf+k, -1)
		a.Add(row+2, lay.qf+k, -1)
		cones = append(cones, coneprog.SecondOrderCone(3))
		row += 3
	}

	// Group 8: relaxed current equation 2·(v_f/t²)·ℓ ≥ ... i.e.
	// v_f/t² · ℓ ≥ Pf² + Qf², written as the standard dim-4 cone
	// ‖(2Pf, 2Qf, u − w)‖ ≤ u + w with u = v_f/t², w = ℓ.
	for k, bi := range l.brs {
		br := net.Branches[bi]
		fi := busIdx[br.From]
		t2 := br.Tap() * br.Tap()

		a.Add(row, lay.v+fi, -1/t2)
		a.Add(row, lay.ll+k, -1)
		a.Add(row+1, lay.pf+k, -2)
		a.Add(row+2, lay.qf+k, -2)
		a.Add(row+3, lay.v+fi, -1/t2)
		a.Add(row+3, lay.ll+k, 1)
		l.rows[row] = rowMeta{kind: opf.BranchFlowLimit, name: br.Name}
		cones = append(cones, coneprog.SecondOrderCone(4))
		row += 4
	}

	// Cost: generation cost plus a small loss weight on ℓ that nudges the
	// relaxation toward tightness.
	q := make([]float64, lay.n)
	var pdiag []float64
	for g, gen := range net.Generators {
		_, c1, c2 := gen.Cost.PolyCoeffs(gen.PMin, gen.PMax)
		q[lay.pg+g] = c1 * base
		if c2 != 0 {
			if pdiag == nil {
				pdiag = make([]float64, lay.n)
			}
			pdiag[lay.pg+g] = 2 * c2 * base * base
		}
	}
	for k, bi := range l.brs {
		q[lay.ll+k] = net.Branches[bi].R * 1e-3 * base
	}

	return &coneprog.Program{
		N:     lay.n,
		Pdiag: pdiag,
		Q:     q,
		A:     a.Build(),
		B:     b,
		Cones: cones,
	}, nil
}

// WarmVector implements coneprog.Lowering. A DC-derived start seeds angles
// and active injections; voltages start flat and reactive output at the
// midpoint of its band.
func (l *lowering) WarmVector(ws *opf.WarmStart) []float64 {
	if ws == nil || ws.Kind == opf.Flat {
		return nil
	}
	net := l.net
	base := net.Base()
	busIdx := net.BusIndexMap()
	lay := l.layout()

	x := make([]float64, lay.n)
	theta := make([]float64, lay.nb)
	for i, bus := range net.Buses {
		x[lay.v+i] = 1.0
		if a, ok := ws.BusVoltageAng[bus.Name]; ok {
			theta[i] = a
		}
		if vm, ok := ws.BusVoltageMag[bus.Name]; ok && vm > 0 {
			x[lay.v+i] = vm * vm
		}
		if col := l.thetaCol(lay, i); col >= 0 {
			x[col] = theta[i]
		}
	}
	for g, gen := range net.Generators {
		if p, ok := ws.GeneratorP[gen.Name]; ok {
			x[lay.pg+g] = p / base
		}
		if q, ok := ws.GeneratorQ[gen.Name]; ok {
			x[lay.qg+g] = q / base
		} else {
			x[lay.qg+g] = (gen.QMin + gen.QMax) / 2 / base
		}
	}
	for k, bi := range l.brs {
		br := net.Branches[bi]
		bs, err := br.Susceptance()
		if err != nil {
			continue
		}
		fi, ti := busIdx[br.From], busIdx[br.To]
		pf := bs * (theta[fi] - theta[ti] - br.PhaseShift)
		x[lay.pf+k] = pf
		x[lay.ll+k] = pf * pf
	}
	return x
}

// Extract implements coneprog.Lowering.
func (l *lowering) Extract(res *coneprog.Result, sol *opf.Solution) error {
	net := l.net
	base := net.Base()
	lay := l.layout()

	var obj float64
	for g, gen := range net.Generators {
		pMW := res.X[lay.pg+g] * base
		sol.GeneratorP[gen.Name] = pMW
		sol.GeneratorQ[gen.Name] = res.X[lay.qg+g] * base
		obj += gen.Cost.At(pMW)
	}
	sol.Objective = obj

	for i, bus := range net.Buses {
		v := res.X[lay.v+i]
		if v < 0 {
			v = 0
		}
		sol.BusVoltageMag[bus.Name] = math.Sqrt(v)
		if col := l.thetaCol(lay, i); col >= 0 {
			sol.BusVoltageAng[bus.Name] = res.X[col]
		} else {
			sol.BusVoltageAng[bus.Name] = 0
		}
		sol.BusPrice[bus.Name] = -res.Y[i] / base
	}

	var loss float64
	for k, bi := range l.brs {
		br := net.Branches[bi]
		sol.BranchFlowP[br.Name] = res.X[lay.pf+k] * base
		sol.BranchFlowQ[br.Name] = res.X[lay.qf+k] * base
		loss += br.R * res.X[lay.ll+k]
	}
	sol.TotalLossesMW = loss * base

	sol.Binding = sol.Binding[:0]
	nZero := 2*lay.nb + 2*lay.nl
	nIneq := 4*lay.ng + 2*lay.nb
	for r := nZero; r < nZero+nIneq; r++ {
		if math.Abs(res.S[r]) < bindingTol && res.Y[r] > bindingTol {
			m := l.rows[r]
			sol.Binding = append(sol.Binding, opf.BindingConstraint{
				Name:        m.name,
				Kind:        m.kind,
				Limit:       m.limit,
				ShadowPrice: res.Y[r] / base,
			})
		}
	}
	// Thermal cones: binding when the slack sits on the cone boundary.
	row := nZero + nIneq
	for _, bi := range l.brs {
		br := net.Branches[bi]
		if br.RateMVA <= 0 {
			continue
		}
		gap := res.S[row] - math.Hypot(res.S[row+1], res.S[row+2])
		if gap < bindingTol && res.Y[row] > bindingTol {
			sol.Binding = append(sol.Binding, opf.BindingConstraint{
				Name:        br.Name,
				Kind:        opf.BranchFlowLimit,
				Limit:       br.RateMVA,
				ShadowPrice: res.Y[row] / base,
			})
		}
		row += 3
	}
	return nil
}
