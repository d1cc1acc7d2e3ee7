// Package dcopf implements the linear-tier formulation: a DC optimal power
// flow over bus angles and generator injections, with an optional
// loss-aware refinement that folds estimated series losses back into the
// nodal balance and scales generator costs by marginal loss factors.
package dcopf

import (
	"math"

	"github.com/gridfold/opf"
	"github.com/gridfold/opf/coneprog"
	"github.com/gridfold/opf/network"
	"github.com/gridfold/opf/ybus"
)

// FormulationID identifies this formulation in the registry.
const FormulationID = "dc-opf"

const (
	// refinement stops after lossRounds extra solves or once the objective
	// moves by less than lossObjTol relative.
	lossRounds = 2
	lossObjTol = 1e-3

	bindingTol = 1e-5
)

// Formulation is the DC optimal power flow.
type Formulation struct {
	// Lossy enables the loss-aware refinement rounds.
	Lossy bool
}

// New returns the lossless DC formulation.
func New() *Formulation { return &Formulation{} }

// NewLossy returns the DC formulation with loss-aware refinement.
func NewLossy() *Formulation { return &Formulation{Lossy: true} }

// ID implements opf.Formulation.
func (*Formulation) ID() string { return FormulationID }

// ProblemClass implements opf.Formulation.
func (*Formulation) ProblemClass() opf.ProblemClass { return opf.LinearProgram }

// AcceptedWarmStarts implements opf.Formulation.
func (*Formulation) AcceptedWarmStarts() []opf.WarmStartKind {
	return []opf.WarmStartKind{opf.Flat}
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

	low := &lowering{
		net:   net,
		ref:   ref,
		lossy: f.Lossy,
	}
	low.busLoss = make([]float64, len(net.Buses))
	low.costScale = make([]float64, len(net.Generators))
	for i := range low.costScale {
		low.costScale[i] = 1.0
	}

	if f.Lossy {
		ptdf, err := ybus.NewPTDF(net)
		if err != nil {
			return nil, &opf.DataError{Reason: err.Error()}
		}
		low.ptdf = ptdf
	}

	return &opf.Problem{
		FormulationID: FormulationID,
		Class:         opf.LinearProgram,
		NbBuses:       len(net.Buses),
		NbGenerators:  len(net.Generators),
		Payload:       low,
	}, nil
}

// lowering carries the network plus the mutable refinement state: per-bus
// loss adders and per-generator marginal cost scaling. The decision vector
// is x = [Pg (pu) | θ at non-reference buses (rad)].
type lowering struct {
	net   *network.Network
	ref   int
	lossy bool
	ptdf  *ybus.PTDF

	busLoss   []float64 // extra pu demand per bus from estimated losses
	costScale []float64 // marginal loss factor per generator

	round     int
	prevObj   float64
	lastFlows []float64
	rows      []rowMeta
}

type rowMeta struct {
	kind  opf.ConstraintKind
	name  string
	limit float64
}

func (l *lowering) nbVars() int {
	return len(l.net.Generators) + len(l.net.Buses) - 1
}

// thetaCol returns the column of θ at bus index j, or -1 for the reference.
func (l *lowering) thetaCol(j int) int {
	if j == l.ref {
		return -1
	}
	if j > l.ref {
		j--
	}
	return len(l.net.Generators) + j
}

// Program implements coneprog.Lowering.
func (l *lowering) Program() (*coneprog.Program, error) {
	net := l.net
	base := net.Base()
	busIdx := net.BusIndexMap()
	ng, nb := len(net.Generators), len(net.Buses)
	n := l.nbVars()

	bp, err := ybus.Susceptance(net)
	if err != nil {
		return nil, &opf.DataError{Reason: err.Error()}
	}

	// Count inequality rows: 2 per generator, plus 2 per rated in-service
	// branch and 2 per angle-bounded in-service branch.
	nIneq := 2 * ng
	for _, br := range net.Branches {
		if br.Out {
			continue
		}
		if br.RateMVA > 0 {
			nIneq += 2
		}
		if br.AngleDiffMax > 0 {
			nIneq += 2
		}
	}

	a := coneprog.NewBuilder(nb+nIneq, n)
	b := make([]float64, nb+nIneq)
	l.rows = make([]rowMeta, nb+nIneq)

	// Nodal balance: Σ Pg at i − Σ_j B'[i][j]·θ_j = Pd_i + loss_i.
	for i, bus := range net.Buses {
		for g, gen := range net.Generators {
			if busIdx[gen.Bus] == i {
				a.Add(i, g, 1)
			}
		}
		for j := 0; j < nb; j++ {
			if col := l.thetaCol(j); col >= 0 {
				a.Add(i, col, -bp.At(i, j))
			}
		}
		pd, _ := net.LoadAt(bus.Name)
		b[i] = pd/base + l.busLoss[i]
		l.rows[i] = rowMeta{kind: opf.PowerBalance, name: bus.Name}
	}

	row := nb
	for g, gen := range net.Generators {
		a.Add(row, g, 1)
		b[row] = gen.PMax / base
		l.rows[row] = rowMeta{kind: opf.GeneratorPMax, name: gen.Name, limit: gen.PMax}
		row++
		a.Add(row, g, -1)
		b[row] = -gen.PMin / base
		l.rows[row] = rowMeta{kind: opf.GeneratorPMin, name: gen.Name, limit: gen.PMin}
		row++
	}

	for _, br := range net.Branches {
		if br.Out {
			continue
		}
		fi, ti := busIdx[br.From], busIdx[br.To]
		if br.RateMVA > 0 {
			bs, err := br.Susceptance()
			if err != nil {
				return nil, &opf.DataError{Reason: err.Error()}
			}
			rate := br.RateMVA / base
			shift := bs * br.PhaseShift
			// f = b(θ_f − θ_t − shift); |f| ≤ rate.
			for _, sgn := range []float64{1, -1} {
				if col := l.thetaCol(fi); col >= 0 {
					a.Add(row, col, sgn*bs)
				}
				if col := l.thetaCol(ti); col >= 0 {
					a.Add(row, col, -sgn*bs)
				}
				b[row] = rate + sgn*shift
				l.rows[row] = rowMeta{kind: opf.BranchFlowLimit, name: br.Name, limit: br.RateMVA}
				row++
			}
		}
		if br.AngleDiffMax > 0 {
			for _, sgn := range []float64{1, -1} {
				if col := l.thetaCol(fi); col >= 0 {
					a.Add(row, col, sgn)
				}
				if col := l.thetaCol(ti); col >= 0 {
					a.Add(row, col, -sgn)
				}
				b[row] = br.AngleDiffMax
				l.rows[row] = rowMeta{kind: opf.BranchFlowLimit, name: br.Name, limit: br.AngleDiffMax}
				row++
			}
		}
	}

	// Cost in $/hr over pu injections, scaled by the marginal loss factor.
	q := make([]float64, n)
	var pdiag []float64
	for g, gen := range net.Generators {
		c0, c1, c2 := gen.Cost.PolyCoeffs(gen.PMin, gen.PMax)
		_ = c0 // constant cost does not move the optimum
		q[g] = l.costScale[g] * c1 * base
		if c2 != 0 {
			if pdiag == nil {
				pdiag = make([]float64, n)
			}
			pdiag[g] = l.costScale[g] * 2 * c2 * base * base
		}
	}

	return &coneprog.Program{
		N:     n,
		Pdiag: pdiag,
		Q:     q,
		A:     a.Build(),
		B:     b,
		Cones: []coneprog.Cone{coneprog.ZeroCone(nb), coneprog.NonnegativeCone(nIneq)},
	}, nil
}

// WarmVector implements coneprog.Lowering. The linear tier only accepts a
// flat start, which for DC is the zero vector.
func (l *lowering) WarmVector(ws *opf.WarmStart) []float64 { return nil }

// Extract implements coneprog.Lowering.
func (l *lowering) Extract(res *coneprog.Result, sol *opf.Solution) error {
	net := l.net
	base := net.Base()
	busIdx := net.BusIndexMap()
	nb := len(net.Buses)

	var obj float64
	for g, gen := range net.Generators {
		pMW := res.X[g] * base
		sol.GeneratorP[gen.Name] = pMW
		obj += gen.Cost.At(pMW)
	}
	sol.Objective = obj

	theta := make([]float64, nb)
	for j, bus := range net.Buses {
		if col := l.thetaCol(j); col >= 0 {
			theta[j] = res.X[col]
		}
		sol.BusVoltageAng[bus.Name] = theta[j]
		sol.BusVoltageMag[bus.Name] = 1.0
	}

	for i, bus := range net.Buses {
		sol.BusPrice[bus.Name] = -res.Y[i] / base
	}

	flows := make([]float64, len(net.Branches))
	for i, br := range net.Branches {
		if br.Out {
			continue
		}
		bs, err := br.Susceptance()
		if err != nil {
			return err
		}
		fi, ti := busIdx[br.From], busIdx[br.To]
		flows[i] = bs * (theta[fi] - theta[ti] - br.PhaseShift)
		sol.BranchFlowP[br.Name] = flows[i] * base
	}

	sol.Binding = sol.Binding[:0]
	for r := nb; r < len(l.rows); r++ {
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

	_, totalLoss := ybus.BranchLosses(net, flows)
	if l.lossy {
		sol.TotalLossesMW = totalLoss * base
	}
	l.lastFlows = flows
	return nil
}

// Refine implements coneprog.Refinable: it folds the latest loss estimate
// back into the nodal balance and the cost scaling, and asks for another
// round while the objective still moves.
func (l *lowering) Refine(sol *opf.Solution) bool {
	if !l.lossy {
		return false
	}
	if l.round >= lossRounds {
		return false
	}
	if l.round > 0 && l.prevObj != 0 &&
		math.Abs(sol.Objective-l.prevObj)/math.Abs(l.prevObj) < lossObjTol {
		return false
	}
	l.round++
	l.prevObj = sol.Objective

	net := l.net
	busIdx := net.BusIndexMap()
	perBranch, _ := ybus.BranchLosses(net, l.lastFlows)
	for i := range l.busLoss {
		l.busLoss[i] = 0
	}
	for i, br := range net.Branches {
		if br.Out {
			continue
		}
		half := perBranch[i] / 2
		l.busLoss[busIdx[br.From]] += half
		l.busLoss[busIdx[br.To]] += half
	}
	lambda := l.ptdf.LossFactors(net, l.lastFlows)
	for g, gen := range net.Generators {
		l.costScale[g] = lambda[busIdx[gen.Bus]]
	}
	return true
}
