package native

import (
	"fmt"

	"github.com/blang/semver/v4"
	"github.com/gridfold/opf/coneprog"
	"github.com/gridfold/opf/network"
)

// ProtocolVersion is the wire protocol this engine speaks. Solver binaries
// answering a handshake with an incompatible major version are treated as
// unavailable.
const ProtocolVersion = "1.2.0"

var protocolRange = semver.MustParseRange(">=1.0.0 <2.0.0")

// handshake is the solver's answer to `<binary> --handshake`, CBOR on
// stdout.
type handshake struct {
	Protocol string `cbor:"protocol"`
	Solver   string `cbor:"solver"`
	Version  string `cbor:"version"`
}

func (h handshake) compatible() error {
	v, err := semver.Parse(h.Protocol)
	if err != nil {
		return fmt.Errorf("solver %s reports malformed protocol %q: %w", h.Solver, h.Protocol, err)
	}
	if !protocolRange(v) {
		return fmt.Errorf("solver %s speaks protocol %s, engine requires >=1.0.0 <2.0.0", h.Solver, h.Protocol)
	}
	return nil
}

// request is one solve job, CBOR on the solver's stdin. Exactly one of
// Conic or Network is set: lowered problems travel in conic form, nonlinear
// problems travel as the network itself and the solver rebuilds the model.
type request struct {
	Protocol      string       `cbor:"protocol"`
	Formulation   string       `cbor:"formulation"`
	Class         string       `cbor:"class"`
	MaxIterations int          `cbor:"max_iterations"`
	Tolerance     float64      `cbor:"tolerance"`
	TimeoutMS     int64        `cbor:"timeout_ms,omitempty"`
	Conic         *wireConic   `cbor:"conic,omitempty"`
	Network       *wireNetwork `cbor:"network,omitempty"`
	Warm          *wireWarm    `cbor:"warm,omitempty"`
}

// response is the solver's answer, CBOR on stdout.
type response struct {
	Protocol   string  `cbor:"protocol"`
	Status     string  `cbor:"status"` // solved | iteration-limit | infeasible | error
	Error      string  `cbor:"error,omitempty"`
	Iterations int     `cbor:"iterations"`
	Residual   float64 `cbor:"residual"`

	// Conic-form results.
	X []float64 `cbor:"x,omitempty"`
	Y []float64 `cbor:"y,omitempty"`
	S []float64 `cbor:"s,omitempty"`

	// Network-form results, keyed by element name.
	Objective     float64            `cbor:"objective"`
	GeneratorP    map[string]float64 `cbor:"generator_p,omitempty"`
	GeneratorQ    map[string]float64 `cbor:"generator_q,omitempty"`
	BusVoltageMag map[string]float64 `cbor:"bus_vm,omitempty"`
	BusVoltageAng map[string]float64 `cbor:"bus_va,omitempty"`
	BusPrice      map[string]float64 `cbor:"bus_price,omitempty"`
	BranchFlowP   map[string]float64 `cbor:"branch_p,omitempty"`
	BranchFlowQ   map[string]float64 `cbor:"branch_q,omitempty"`
	TotalLossesMW float64            `cbor:"losses_mw,omitempty"`
}

// wireConic is a coneprog.Program flattened for the wire.
type wireConic struct {
	N           int       `cbor:"n"`
	Pdiag       []float64 `cbor:"pdiag,omitempty"`
	Q           []float64 `cbor:"q"`
	Rows        int       `cbor:"rows"`
	ColPtr      []int     `cbor:"colptr"`
	RowIdx      []int     `cbor:"rowidx"`
	Val         []float64 `cbor:"val"`
	B           []float64 `cbor:"b"`
	ConeKinds   []uint8   `cbor:"cone_kinds"` // 0 zero, 1 nonneg, 2 soc
	ConeDims    []int     `cbor:"cone_dims"`
	IntegerCols []int     `cbor:"integer_cols,omitempty"`
}

func encodeConic(p *coneprog.Program) (*wireConic, error) {
	w := &wireConic{
		N:           p.N,
		Pdiag:       p.Pdiag,
		Q:           p.Q,
		Rows:        p.A.Rows,
		ColPtr:      p.A.ColPtr,
		RowIdx:      p.A.RowIdx,
		Val:         p.A.Val,
		B:           p.B,
		IntegerCols: p.IntegerCols,
	}
	for _, c := range p.Cones {
		var kind uint8
		switch c.(type) {
		case coneprog.ZeroCone:
			kind = 0
		case coneprog.NonnegativeCone:
			kind = 1
		case coneprog.SecondOrderCone:
			kind = 2
		default:
			return nil, fmt.Errorf("cone type %T has no wire encoding", c)
		}
		w.ConeKinds = append(w.ConeKinds, kind)
		w.ConeDims = append(w.ConeDims, c.Dim())
	}
	return w, nil
}

// wireNetwork carries the full network for solvers that build their own
// model (the nonlinear solver does).
type wireNetwork struct {
	Name    string  `cbor:"name"`
	BaseMVA float64 `cbor:"base_mva"`

	Buses      []wireBus       `cbor:"buses"`
	Branches   []wireBranch    `cbor:"branches"`
	Generators []wireGenerator `cbor:"generators"`
	Loads      []wireLoad      `cbor:"loads"`
}

type wireBus struct {
	Name   string  `cbor:"name"`
	Type   uint8   `cbor:"type"`
	BaseKV float64 `cbor:"base_kv,omitempty"`
	VMin   float64 `cbor:"vmin,omitempty"`
	VMax   float64 `cbor:"vmax,omitempty"`
}

type wireBranch struct {
	Name         string  `cbor:"name"`
	From         string  `cbor:"from"`
	To           string  `cbor:"to"`
	R            float64 `cbor:"r"`
	X            float64 `cbor:"x"`
	ChargingB    float64 `cbor:"b,omitempty"`
	TapRatio     float64 `cbor:"tap,omitempty"`
	PhaseShift   float64 `cbor:"shift,omitempty"`
	RateMVA      float64 `cbor:"rate,omitempty"`
	AngleDiffMax float64 `cbor:"angle_max,omitempty"`
	Out          bool    `cbor:"out,omitempty"`
}

type wireGenerator struct {
	Name   string       `cbor:"name"`
	Bus    string       `cbor:"bus"`
	PMin   float64      `cbor:"pmin"`
	PMax   float64      `cbor:"pmax"`
	QMin   float64      `cbor:"qmin"`
	QMax   float64      `cbor:"qmax"`
	Coeffs []float64    `cbor:"cost_coeffs,omitempty"`
	Points [][2]float64 `cbor:"cost_points,omitempty"`
}

type wireLoad struct {
	Name string  `cbor:"name"`
	Bus  string  `cbor:"bus"`
	P    float64 `cbor:"p"`
	Q    float64 `cbor:"q"`
}

func encodeNetwork(net *network.Network) *wireNetwork {
	w := &wireNetwork{Name: net.Name, BaseMVA: net.Base()}
	for _, b := range net.Buses {
		w.Buses = append(w.Buses, wireBus{
			Name: b.Name, Type: uint8(b.Type), BaseKV: b.BaseKV, VMin: b.VMin, VMax: b.VMax,
		})
	}
	for _, br := range net.Branches {
		w.Branches = append(w.Branches, wireBranch{
			Name: br.Name, From: br.From, To: br.To,
			R: br.R, X: br.X, ChargingB: br.ChargingB,
			TapRatio: br.TapRatio, PhaseShift: br.PhaseShift,
			RateMVA: br.RateMVA, AngleDiffMax: br.AngleDiffMax, Out: br.Out,
		})
	}
	for _, g := range net.Generators {
		w.Generators = append(w.Generators, wireGenerator{
			Name: g.Name, Bus: g.Bus,
			PMin: g.PMin, PMax: g.PMax, QMin: g.QMin, QMax: g.QMax,
			Coeffs: g.Cost.Coeffs, Points: g.Cost.Points,
		})
	}
	for _, l := range net.Loads {
		w.Loads = append(w.Loads, wireLoad{Name: l.Name, Bus: l.Bus, P: l.P, Q: l.Q})
	}
	return w
}

// wireWarm carries a warm start.
type wireWarm struct {
	Kind          string             `cbor:"kind"`
	BusVoltageMag map[string]float64 `cbor:"bus_vm,omitempty"`
	BusVoltageAng map[string]float64 `cbor:"bus_va,omitempty"`
	GeneratorP    map[string]float64 `cbor:"generator_p,omitempty"`
	GeneratorQ    map[string]float64 `cbor:"generator_q,omitempty"`
}
