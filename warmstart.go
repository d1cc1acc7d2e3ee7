package opf

// WarmStartKind identifies where warm-start data came from, which determines
// what it carries and which formulations can consume it.
type WarmStartKind uint8

const (
	// Flat is the no-prior-knowledge start: V=1.0 pu, θ=0, dispatch at the
	// midpoint of generator limits.
	Flat WarmStartKind = iota
	// DcDerived carries bus angles and active dispatch from a DC-tier solve.
	DcDerived
	// SocpDerived carries voltage magnitude, angle and active+reactive
	// dispatch from a conic-tier solve.
	SocpDerived
)

// String returns the string representation of a warm-start kind.
func (k WarmStartKind) String() string {
	switch k {
	case Flat:
		return "flat"
	case DcDerived:
		return "dc-derived"
	case SocpDerived:
		return "socp-derived"
	default:
		return "unknown"
	}
}

// WarmStart is an initial guess for an iterative solver, derived from a
// previously computed (usually cheaper-tier) solution. Maps are keyed by
// element name; absent entries mean "use the flat default".
//
// A DcDerived warm start has no voltage-magnitude or reactive model: Vm
// defaults to 1.0 and the consuming formulation seeds Qg at the midpoint of
// the generator's reactive limits.
type WarmStart struct {
	Kind          WarmStartKind
	BusVoltageMag map[string]float64
	BusVoltageAng map[string]float64
	GeneratorP    map[string]float64
	GeneratorQ    map[string]float64
}

// WarmStartFromSolution converts a solved tier's output into the warm-start
// payload a higher tier expects. The caller picks the kind matching the tier
// that produced sol (DC tier ⇒ DcDerived, conic tier ⇒ SocpDerived).
func WarmStartFromSolution(kind WarmStartKind, sol *Solution) *WarmStart {
	ws := &WarmStart{
		Kind:          kind,
		BusVoltageAng: make(map[string]float64, len(sol.BusVoltageAng)),
		GeneratorP:    make(map[string]float64, len(sol.GeneratorP)),
	}
	for bus, a := range sol.BusVoltageAng {
		ws.BusVoltageAng[bus] = a
	}
	for gen, p := range sol.GeneratorP {
		ws.GeneratorP[gen] = p
	}
	if kind == SocpDerived {
		ws.BusVoltageMag = make(map[string]float64, len(sol.BusVoltageMag))
		ws.GeneratorQ = make(map[string]float64, len(sol.GeneratorQ))
		for bus, v := range sol.BusVoltageMag {
			ws.BusVoltageMag[bus] = v
		}
		for gen, q := range sol.GeneratorQ {
			ws.GeneratorQ[gen] = q
		}
	}
	return ws
}

// Accepts reports whether kind is in the accepted set.
func Accepts(accepted []WarmStartKind, kind WarmStartKind) bool {
	for _, k := range accepted {
		if k == kind {
			return true
		}
	}
	return false
}
