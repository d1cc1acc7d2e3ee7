// Package acopf implements the nonlinear-tier formulation: full AC optimal
// power flow in polar coordinates. Power-balance mismatches and thermal
// excesses enter the penalty term of an nlp.Program; voltage and generator
// limits are simple bounds on the decision vector.
package acopf

import (
	"math"
	"math/cmplx"

	"github.com/gridfold/opf"
	"github.com/gridfold/opf/network"
	"github.com/gridfold/opf/ybus"
	"gonum.org/v1/gonum/mat"
)

// FormulationID identifies this formulation in the registry.
const FormulationID = "ac-opf"

const boundTol = 1e-4

// Formulation is the AC optimal power flow.
type Formulation struct{}

// New returns the AC formulation.
func New() *Formulation { return &Formulation{} }

// ID implements opf.Formulation.
func (*Formulation) ID() string { return FormulationID }

// ProblemClass implements opf.Formulation.
func (*Formulation) ProblemClass() opf.ProblemClass { return opf.NonlinearProgram }

// AcceptedWarmStarts implements opf.Formulation.
func (*Formulation) AcceptedWarmStarts() []opf.WarmStartKind {
	return []opf.WarmStartKind{opf.Flat, opf.DcDerived, opf.SocpDerived}
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
	y, err := ybus.Admittance(net)
	if err != nil {
		return nil, &opf.DataError{Reason: err.Error()}
	}
	adm, err := ybus.BranchAdmittances(net)
	if err != nil {
		return nil, &opf.DataError{Reason: err.Error()}
	}

	prog := &program{net: net, ref: ref, ybus: y, adm: adm}
	prog.genBus = make([]int, len(net.Generators))
	busIdx := net.BusIndexMap()
	for g, gen := range net.Generators {
		prog.genBus[g] = busIdx[gen.Bus]
	}
	prog.loadP = make([]float64, len(net.Buses))
	prog.loadQ = make([]float64, len(net.Buses))
	base := net.Base()
	for i, bus := range net.Buses {
		p, q := net.LoadAt(bus.Name)
		prog.loadP[i] = p / base
		prog.loadQ[i] = q / base
	}

	return &opf.Problem{
		FormulationID: FormulationID,
		Class:         opf.NonlinearProgram,
		NbBuses:       len(net.Buses),
		NbGenerators:  len(net.Generators),
		Payload:       prog,
	}, nil
}

// program is the nlp.Program for AC optimal power flow. The decision vector
// is x = [Vm (nb) | Va non-ref (nb−1) | Pg (ng) | Qg (ng)], per-unit and
// radians.
type program struct {
	net    *network.Network
	ref    int
	ybus   *mat.CDense
	adm    []ybus.BranchAdmittance
	genBus []int
	loadP  []float64
	loadQ  []float64
}

func (p *program) nb() int { return len(p.net.Buses) }
func (p *program) ng() int { return len(p.net.Generators) }

// Net exposes the network for bridges that rebuild the model themselves.
func (p *program) Net() *network.Network { return p.net }

// Dim implements nlp.Program.
func (p *program) Dim() int { return 2*p.nb() - 1 + 2*p.ng() }

func (p *program) vaCol(j int) int {
	if j == p.ref {
		return -1
	}
	if j > p.ref {
		j--
	}
	return p.nb() + j
}

func (p *program) angles(x []float64) []float64 {
	va := make([]float64, p.nb())
	for j := range va {
		if col := p.vaCol(j); col >= 0 {
			va[j] = x[col]
		}
	}
	return va
}

// injections evaluates the complex power injected at every bus for the
// voltage profile in x.
func (p *program) injections(x []float64) (pi, qi []float64) {
	nb := p.nb()
	va := p.angles(x)
	pi = make([]float64, nb)
	qi = make([]float64, nb)
	for i := 0; i < nb; i++ {
		vi := x[i]
		for j := 0; j < nb; j++ {
			y := p.ybus.At(i, j)
			g, b := real(y), imag(y)
			if g == 0 && b == 0 {
				continue
			}
			dth := va[i] - va[j]
			c, s := math.Cos(dth), math.Sin(dth)
			vij := vi * x[j]
			pi[i] += vij * (g*c + b*s)
			qi[i] += vij * (g*s - b*c)
		}
	}
	return pi, qi
}

// mismatches returns the active and reactive balance residuals per bus.
func (p *program) mismatches(x []float64) (dp, dq []float64) {
	nb, ng := p.nb(), p.ng()
	pi, qi := p.injections(x)
	dp = make([]float64, nb)
	dq = make([]float64, nb)
	for i := 0; i < nb; i++ {
		dp[i] = pi[i] + p.loadP[i]
		dq[i] = qi[i] + p.loadQ[i]
	}
	off := 2*nb - 1
	for g := 0; g < ng; g++ {
		dp[p.genBus[g]] -= x[off+g]
		dq[p.genBus[g]] -= x[off+ng+g]
	}
	return dp, dq
}

// flows evaluates directed complex flows per branch, per-unit.
func (p *program) flows(x []float64) (sf, st []complex128) {
	va := p.angles(x)
	sf = make([]complex128, len(p.adm))
	st = make([]complex128, len(p.adm))
	for l, a := range p.adm {
		if a.Yff == 0 && a.Ytt == 0 {
			continue
		}
		vf := cmplx.Rect(x[a.From], va[a.From])
		vt := cmplx.Rect(x[a.To], va[a.To])
		sf[l] = vf * cmplx.Conj(a.Yff*vf+a.Yft*vt)
		st[l] = vt * cmplx.Conj(a.Ytf*vf+a.Ytt*vt)
	}
	return sf, st
}

// Cost implements nlp.Program.
func (p *program) Cost(x []float64) float64 {
	base := p.net.Base()
	off := 2*p.nb() - 1
	var cost float64
	for g, gen := range p.net.Generators {
		cost += gen.Cost.At(x[off+g] * base)
	}
	return cost
}

// Penalty implements nlp.Program: squared balance mismatches plus squared
// thermal and angle-spread excesses.
func (p *program) Penalty(x []float64) float64 {
	dp, dq := p.mismatches(x)
	var pen float64
	for i := range dp {
		pen += dp[i]*dp[i] + dq[i]*dq[i]
	}
	pen += p.limitPenalty(x, nil)
	return pen
}

// limitPenalty accumulates squared inequality excesses; when worst is
// non-nil it also tracks the largest single excess.
func (p *program) limitPenalty(x []float64, worst *float64) float64 {
	base := p.net.Base()
	va := p.angles(x)
	sf, st := p.flows(x)
	var pen float64
	note := func(excess float64) {
		if excess <= 0 {
			return
		}
		pen += excess * excess
		if worst != nil && excess > *worst {
			*worst = excess
		}
	}
	for l, br := range p.net.Branches {
		if br.Out {
			continue
		}
		if br.RateMVA > 0 {
			rate := br.RateMVA / base
			note(cmplx.Abs(sf[l]) - rate)
			note(cmplx.Abs(st[l]) - rate)
		}
		if br.AngleDiffMax > 0 {
			a := p.adm[l]
			note(math.Abs(va[a.From]-va[a.To]) - br.AngleDiffMax)
		}
	}
	return pen
}

// MaxViolation implements nlp.Program.
func (p *program) MaxViolation(x []float64) float64 {
	dp, dq := p.mismatches(x)
	var worst float64
	for i := range dp {
		if a := math.Abs(dp[i]); a > worst {
			worst = a
		}
		if a := math.Abs(dq[i]); a > worst {
			worst = a
		}
	}
	p.limitPenalty(x, &worst)
	return worst
}

// Bounds implements nlp.Program.
func (p *program) Bounds() (lo, hi []float64) {
	nb, ng := p.nb(), p.ng()
	base := p.net.Base()
	lo = make([]float64, p.Dim())
	hi = make([]float64, p.Dim())
	for i, bus := range p.net.Buses {
		vmin, vmax := bus.VoltageLimits()
		lo[i], hi[i] = vmin, vmax
	}
	for j := nb; j < 2*nb-1; j++ {
		lo[j], hi[j] = -math.Pi/2, math.Pi/2
	}
	off := 2*nb - 1
	for g, gen := range p.net.Generators {
		lo[off+g], hi[off+g] = gen.PMin/base, gen.PMax/base
		lo[off+ng+g], hi[off+ng+g] = gen.QMin/base, gen.QMax/base
	}
	return lo, hi
}

// InitialPoint implements nlp.Program: a flat voltage profile with active
// output sharing the load (plus a loss margin) in proportion to capacity.
func (p *program) InitialPoint() []float64 {
	nb, ng := p.nb(), p.ng()
	base := p.net.Base()
	x := make([]float64, p.Dim())
	for i := 0; i < nb; i++ {
		x[i] = 1.0
	}

	totalP, _ := p.net.TotalLoad()
	need := totalP / base * 1.01
	var capacity float64
	for _, gen := range p.net.Generators {
		capacity += gen.PMax / base
	}
	off := 2*nb - 1
	for g, gen := range p.net.Generators {
		pg := 0.0
		if capacity > 0 {
			pg = need * (gen.PMax / base) / capacity
		}
		pg = math.Max(gen.PMin/base, math.Min(gen.PMax/base, pg))
		x[off+g] = pg
		x[off+ng+g] = (gen.QMin + gen.QMax) / 2 / base
	}
	return x
}

// WarmPoint implements nlp.Program.
func (p *program) WarmPoint(ws *opf.WarmStart) []float64 {
	if ws == nil || ws.Kind == opf.Flat {
		return nil
	}
	x := p.InitialPoint()
	base := p.net.Base()
	nb, ng := p.nb(), p.ng()
	for i, bus := range p.net.Buses {
		if vm, ok := ws.BusVoltageMag[bus.Name]; ok && vm > 0 {
			x[i] = vm
		}
		if col := p.vaCol(i); col >= 0 {
			if va, ok := ws.BusVoltageAng[bus.Name]; ok {
				x[col] = va
			}
		}
	}
	off := 2*nb - 1
	for g, gen := range p.net.Generators {
		if pg, ok := ws.GeneratorP[gen.Name]; ok {
			x[off+g] = pg / base
		}
		if qg, ok := ws.GeneratorQ[gen.Name]; ok {
			x[off+ng+g] = qg / base
		}
	}
	return x
}

// Extract implements nlp.Program.
func (p *program) Extract(x []float64, sol *opf.Solution) error {
	net := p.net
	base := net.Base()
	va := p.angles(x)

	for i, bus := range net.Buses {
		sol.BusVoltageMag[bus.Name] = x[i]
		sol.BusVoltageAng[bus.Name] = va[i]
	}

	off := 2*p.nb() - 1
	ng := p.ng()
	var obj float64
	for g, gen := range net.Generators {
		pMW := x[off+g] * base
		qMVAr := x[off+ng+g] * base
		sol.GeneratorP[gen.Name] = pMW
		sol.GeneratorQ[gen.Name] = qMVAr
		obj += gen.Cost.At(pMW)

		if gen.PMax-pMW < boundTol*base {
			sol.Binding = append(sol.Binding, opf.BindingConstraint{
				Name: gen.Name, Kind: opf.GeneratorPMax, Value: pMW, Limit: gen.PMax,
			})
		} else if pMW-gen.PMin < boundTol*base {
			sol.Binding = append(sol.Binding, opf.BindingConstraint{
				Name: gen.Name, Kind: opf.GeneratorPMin, Value: pMW, Limit: gen.PMin,
			})
		}
	}
	sol.Objective = obj

	for i, bus := range net.Buses {
		vmin, vmax := bus.VoltageLimits()
		if vmax-x[i] < boundTol {
			sol.Binding = append(sol.Binding, opf.BindingConstraint{
				Name: bus.Name, Kind: opf.VoltageMax, Value: x[i], Limit: vmax,
			})
		} else if x[i]-vmin < boundTol {
			sol.Binding = append(sol.Binding, opf.BindingConstraint{
				Name: bus.Name, Kind: opf.VoltageMin, Value: x[i], Limit: vmin,
			})
		}
	}

	sf, st := p.flows(x)
	var loss float64
	for l, br := range net.Branches {
		if br.Out {
			continue
		}
		sol.BranchFlowP[br.Name] = real(sf[l]) * base
		sol.BranchFlowQ[br.Name] = imag(sf[l]) * base
		loss += real(sf[l]) + real(st[l])
	}
	sol.TotalLossesMW = loss * base
	return nil
}
