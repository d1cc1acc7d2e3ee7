// Package network defines the power-system data model consumed by the
// solving engine: buses, branches, generators and loads with their
// electrical and economic parameters.
//
// A Network is owned by the caller and treated as immutable for the duration
// of a solve; formulations read it, never write it. Populating a Network from
// external file formats (MATPOWER, PSS/E, CIM) is the job of I/O
// collaborators outside this module.
package network

import (
	"fmt"
	"math"
)

// DefaultBaseMVA is the system base used for per-unit conversion when the
// caller does not set one.
const DefaultBaseMVA = 100.0

// BusType classifies a bus for power-flow purposes.
type BusType uint8

const (
	// LoadBus (PQ) has fixed active/reactive demand.
	LoadBus BusType = iota
	// VoltageControlled (PV) holds voltage magnitude via generator excitation.
	VoltageControlled
	// Reference (slack) fixes the angle reference and absorbs the mismatch.
	Reference
)

// String returns the string representation of a bus type.
func (t BusType) String() string {
	switch t {
	case LoadBus:
		return "load"
	case VoltageControlled:
		return "voltage-controlled"
	case Reference:
		return "reference"
	default:
		return "unknown"
	}
}

// Bus is a network node.
type Bus struct {
	Name   string
	Type   BusType
	BaseKV float64
	// VMin / VMax are voltage magnitude limits in per-unit.
	// Zero values default to 0.94 / 1.06 during lowering.
	VMin float64
	VMax float64
}

// VoltageLimits returns the effective per-unit voltage limits, applying the
// conventional 0.94/1.06 defaults when unset.
func (b Bus) VoltageLimits() (vmin, vmax float64) {
	vmin, vmax = b.VMin, b.VMax
	if vmin <= 0 {
		vmin = 0.94
	}
	if vmax <= 0 {
		vmax = 1.06
	}
	return vmin, vmax
}

// Branch is a transmission element (line or transformer) between two buses.
// Impedances and charging are in per-unit on the system base.
type Branch struct {
	Name string
	From string
	To   string

	// R and X are the series resistance and reactance (pu).
	R float64
	X float64
	// ChargingB is the total line charging susceptance (pu, split half/half).
	ChargingB float64
	// TapRatio is the off-nominal tap magnitude; zero means 1.0.
	TapRatio float64
	// PhaseShift is the phase-shift angle in radians (from→to).
	PhaseShift float64
	// RateMVA is the thermal limit; zero means unlimited.
	RateMVA float64
	// AngleDiffMax bounds |θ_from - θ_to| in radians; zero means unbounded.
	AngleDiffMax float64
	// Out marks the branch switched out of service (contingency studies).
	Out bool
}

// Tap returns the effective tap ratio (1.0 when unset).
func (br Branch) Tap() float64 {
	if br.TapRatio == 0 {
		return 1.0
	}
	return br.TapRatio
}

// Susceptance returns the DC series susceptance b = 1/x', with the tap folded
// into the effective reactance.
func (br Branch) Susceptance() (float64, error) {
	x := br.X * br.Tap()
	if math.Abs(x) < 1e-12 {
		return 0, fmt.Errorf("branch %s has zero reactance", br.Name)
	}
	return 1.0 / x, nil
}

// Generator is a dispatchable source attached to a bus. Limits are in
// MW / MVAr; Cost maps MW to $/hr.
type Generator struct {
	Name string
	Bus  string

	PMin float64
	PMax float64
	QMin float64
	QMax float64

	Cost CostCurve
}

// Load is a fixed demand attached to a bus, in MW / MVAr.
type Load struct {
	Name string
	Bus  string
	P    float64
	Q    float64
}

// Network is the topology plus electrical/economic parameters. Element order
// is significant: formulations index buses, branches and generators by their
// position in these slices.
type Network struct {
	Name    string
	BaseMVA float64

	Buses      []Bus
	Branches   []Branch
	Generators []Generator
	Loads      []Load
}

// New returns an empty network on the default MVA base.
func New(name string) *Network {
	return &Network{Name: name, BaseMVA: DefaultBaseMVA}
}

// Base returns the system MVA base (default when unset).
func (n *Network) Base() float64 {
	if n.BaseMVA <= 0 {
		return DefaultBaseMVA
	}
	return n.BaseMVA
}

// AddBus appends a bus and returns the network for chaining.
func (n *Network) AddBus(b Bus) *Network {
	n.Buses = append(n.Buses, b)
	return n
}

// AddBranch appends a branch and returns the network for chaining.
func (n *Network) AddBranch(br Branch) *Network {
	n.Branches = append(n.Branches, br)
	return n
}

// AddGenerator appends a generator and returns the network for chaining.
func (n *Network) AddGenerator(g Generator) *Network {
	n.Generators = append(n.Generators, g)
	return n
}

// AddLoad appends a load and returns the network for chaining.
func (n *Network) AddLoad(l Load) *Network {
	n.Loads = append(n.Loads, l)
	return n
}

// BusIndexMap returns name → slice index for buses.
func (n *Network) BusIndexMap() map[string]int {
	m := make(map[string]int, len(n.Buses))
	for i, b := range n.Buses {
		m[b.Name] = i
	}
	return m
}

// ReferenceBus returns the index of the reference (slack) bus.
func (n *Network) ReferenceBus() (int, bool) {
	for i, b := range n.Buses {
		if b.Type == Reference {
			return i, true
		}
	}
	return 0, false
}

// InService returns the branches currently in service.
func (n *Network) InService() []Branch {
	out := make([]Branch, 0, len(n.Branches))
	for _, br := range n.Branches {
		if !br.Out {
			out = append(out, br)
		}
	}
	return out
}

// TotalLoad returns the total active and reactive demand (MW, MVAr).
func (n *Network) TotalLoad() (p, q float64) {
	for _, l := range n.Loads {
		p += l.P
		q += l.Q
	}
	return p, q
}

// LoadAt returns the aggregate demand at the named bus (MW, MVAr).
func (n *Network) LoadAt(bus string) (p, q float64) {
	for _, l := range n.Loads {
		if l.Bus == bus {
			p += l.P
			q += l.Q
		}
	}
	return p, q
}

// Clone returns a deep copy. Batch/contingency drivers clone the base case
// and flip Branch.Out flags on the copy.
func (n *Network) Clone() *Network {
	c := &Network{
		Name:       n.Name,
		BaseMVA:    n.BaseMVA,
		Buses:      append([]Bus(nil), n.Buses...),
		Branches:   append([]Branch(nil), n.Branches...),
		Generators: make([]Generator, len(n.Generators)),
		Loads:      append([]Load(nil), n.Loads...),
	}
	for i, g := range n.Generators {
		g.Cost = g.Cost.clone()
		c.Generators[i] = g
	}
	return c
}

// Validate checks structural consistency: at least one bus and generator,
// unique element names, and no dangling bus references.
func (n *Network) Validate() error {
	if len(n.Buses) == 0 {
		return fmt.Errorf("network %s has no buses", n.Name)
	}
	if len(n.Generators) == 0 {
		return fmt.Errorf("network %s has no generators", n.Name)
	}

	busIdx := make(map[string]struct{}, len(n.Buses))
	for _, b := range n.Buses {
		if _, dup := busIdx[b.Name]; dup {
			return fmt.Errorf("duplicate bus name %q", b.Name)
		}
		busIdx[b.Name] = struct{}{}
	}

	seen := make(map[string]struct{})
	for _, br := range n.Branches {
		if _, dup := seen[br.Name]; dup {
			return fmt.Errorf("duplicate branch name %q", br.Name)
		}
		seen[br.Name] = struct{}{}
		if _, ok := busIdx[br.From]; !ok {
			return fmt.Errorf("branch %s references unknown bus %q", br.Name, br.From)
		}
		if _, ok := busIdx[br.To]; !ok {
			return fmt.Errorf("branch %s references unknown bus %q", br.Name, br.To)
		}
	}
	for _, g := range n.Generators {
		if _, ok := busIdx[g.Bus]; !ok {
			return fmt.Errorf("generator %s references unknown bus %q", g.Name, g.Bus)
		}
		if g.PMax < g.PMin {
			return fmt.Errorf("generator %s has PMax < PMin", g.Name)
		}
	}
	for _, l := range n.Loads {
		if _, ok := busIdx[l.Bus]; !ok {
			return fmt.Errorf("load %s references unknown bus %q", l.Name, l.Bus)
		}
	}
	return nil
}
