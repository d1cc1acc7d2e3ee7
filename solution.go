package opf

import "time"

// ConstraintKind classifies a binding constraint for reporting.
type ConstraintKind uint8

const (
	GeneratorPMax ConstraintKind = iota
	GeneratorPMin
	GeneratorQMax
	GeneratorQMin
	BranchFlowLimit
	VoltageMax
	VoltageMin
	PowerBalance
)

// String returns the string representation of a constraint kind.
func (k ConstraintKind) String() string {
	switch k {
	case GeneratorPMax:
		return "generator-pmax"
	case GeneratorPMin:
		return "generator-pmin"
	case GeneratorQMax:
		return "generator-qmax"
	case GeneratorQMin:
		return "generator-qmin"
	case BranchFlowLimit:
		return "branch-flow-limit"
	case VoltageMax:
		return "voltage-max"
	case VoltageMin:
		return "voltage-min"
	case PowerBalance:
		return "power-balance"
	default:
		return "unknown"
	}
}

// BindingConstraint records a constraint at (or beyond) its limit in the
// final solution, with its shadow price where the backend exposes duals.
type BindingConstraint struct {
	Name        string
	Kind        ConstraintKind
	Value       float64
	Limit       float64
	ShadowPrice float64
}

// Solution is the output of a solve attempt. It is owned by the caller after
// return and never aliases problem internals. All maps are keyed by element
// name as given in the network.
type Solution struct {
	Converged     bool
	FormulationID string
	BackendID     string
	Iterations    int
	SolveTime     time.Duration

	// Objective is the total generation cost in $/hr.
	Objective float64

	// GeneratorP / GeneratorQ are the dispatch in MW / MVAr.
	GeneratorP map[string]float64
	GeneratorQ map[string]float64

	// BusVoltageMag is in per-unit; BusVoltageAng in radians.
	BusVoltageMag map[string]float64
	BusVoltageAng map[string]float64

	// BranchFlowP / BranchFlowQ are sending-end flows in MW / MVAr.
	BranchFlowP map[string]float64
	BranchFlowQ map[string]float64

	// BusPrice holds locational marginal prices in $/MWh where available.
	BusPrice map[string]float64

	Binding       []BindingConstraint
	TotalLossesMW float64
}

// NewSolution returns a Solution with all maps allocated.
func NewSolution(formulationID, backendID string) *Solution {
	return &Solution{
		FormulationID: formulationID,
		BackendID:     backendID,
		GeneratorP:    make(map[string]float64),
		GeneratorQ:    make(map[string]float64),
		BusVoltageMag: make(map[string]float64),
		BusVoltageAng: make(map[string]float64),
		BranchFlowP:   make(map[string]float64),
		BranchFlowQ:   make(map[string]float64),
		BusPrice:      make(map[string]float64),
	}
}
