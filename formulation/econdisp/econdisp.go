// Package econdisp implements a network-free economic dispatch: generators
// share a single copper-plate balance covering total demand plus a fixed
// loss adder. It is the cheapest formulation in the engine and a common
// screening step before the network-constrained tiers.
package econdisp

import (
	"math"

	"github.com/gridfold/opf"
	"github.com/gridfold/opf/coneprog"
	"github.com/gridfold/opf/network"
)

// FormulationID identifies this formulation in the registry.
const FormulationID = "economic-dispatch"

// lossAdder inflates demand to cover network losses the copper plate
// cannot see.
const lossAdder = 0.01

const bindingTol = 1e-5

// Formulation is the copper-plate economic dispatch.
type Formulation struct{}

// New returns the economic-dispatch formulation.
func New() *Formulation { return &Formulation{} }

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
	totalP, _ := net.TotalLoad()
	var capacity float64
	for _, gen := range net.Generators {
		capacity += gen.PMax
	}
	if capacity < totalP*(1+lossAdder) {
		return nil, &opf.DataError{Reason: "generation capacity below demand plus loss adder"}
	}
	return &opf.Problem{
		FormulationID: FormulationID,
		Class:         opf.LinearProgram,
		NbBuses:       len(net.Buses),
		NbGenerators:  len(net.Generators),
		Payload:       &lowering{net: net},
	}, nil
}

// lowering lowers the dispatch into a one-balance LP over x = Pg (pu).
type lowering struct {
	net *network.Network
}

// Program implements coneprog.Lowering.
func (l *lowering) Program() (*coneprog.Program, error) {
	net := l.net
	base := net.Base()
	ng := len(net.Generators)

	a := coneprog.NewBuilder(1+2*ng, ng)
	b := make([]float64, 1+2*ng)

	for g := 0; g < ng; g++ {
		a.Add(0, g, 1)
	}
	totalP, _ := net.TotalLoad()
	b[0] = totalP * (1 + lossAdder) / base

	row := 1
	for g, gen := range net.Generators {
		a.Add(row, g, 1)
		b[row] = gen.PMax / base
		row++
		a.Add(row, g, -1)
		b[row] = -gen.PMin / base
		row++
	}

	q := make([]float64, ng)
	var pdiag []float64
	for g, gen := range net.Generators {
		_, c1, c2 := gen.Cost.PolyCoeffs(gen.PMin, gen.PMax)
		q[g] = c1 * base
		if c2 != 0 {
			if pdiag == nil {
				pdiag = make([]float64, ng)
			}
			pdiag[g] = 2 * c2 * base * base
		}
	}

	return &coneprog.Program{
		N:     ng,
		Pdiag: pdiag,
		Q:     q,
		A:     a.Build(),
		B:     b,
		Cones: []coneprog.Cone{coneprog.ZeroCone(1), coneprog.NonnegativeCone(2 * ng)},
	}, nil
}

// WarmVector implements coneprog.Lowering.
func (l *lowering) WarmVector(ws *opf.WarmStart) []float64 { return nil }

// Extract implements coneprog.Lowering. Every bus gets the single system
// marginal price.
func (l *lowering) Extract(res *coneprog.Result, sol *opf.Solution) error {
	net := l.net
	base := net.Base()

	var obj float64
	for g, gen := range net.Generators {
		pMW := res.X[g] * base
		sol.GeneratorP[gen.Name] = pMW
		obj += gen.Cost.At(pMW)
	}
	sol.Objective = obj

	lambda := -res.Y[0] / base
	for _, bus := range net.Buses {
		sol.BusPrice[bus.Name] = lambda
		sol.BusVoltageMag[bus.Name] = 1.0
		sol.BusVoltageAng[bus.Name] = 0
	}

	sol.Binding = sol.Binding[:0]
	for g, gen := range net.Generators {
		up, dn := 1+2*g, 2+2*g
		if math.Abs(res.S[up]) < bindingTol && res.Y[up] > bindingTol {
			sol.Binding = append(sol.Binding, opf.BindingConstraint{
				Name: gen.Name, Kind: opf.GeneratorPMax,
				Value: res.X[g] * base, Limit: gen.PMax,
				ShadowPrice: res.Y[up] / base,
			})
		}
		if math.Abs(res.S[dn]) < bindingTol && res.Y[dn] > bindingTol {
			sol.Binding = append(sol.Binding, opf.BindingConstraint{
				Name: gen.Name, Kind: opf.GeneratorPMin,
				Value: res.X[g] * base, Limit: gen.PMin,
				ShadowPrice: res.Y[dn] / base,
			})
		}
	}

	totalP, _ := net.TotalLoad()
	sol.TotalLossesMW = totalP * lossAdder
	return nil
}
