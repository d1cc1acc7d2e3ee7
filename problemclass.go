package opf

// ProblemClass identifies the mathematical class of a lowered problem.
// It is the matching key between formulations and backends: a backend may
// only be selected for a problem whose class it supports.
type ProblemClass uint8

const (
	// UnknownClass is the zero value; no backend supports it.
	UnknownClass ProblemClass = iota
	// LinearProgram covers LPs, including those with a diagonal quadratic
	// objective (QP) which the cone backends tolerate.
	LinearProgram
	// ConicProgram covers second-order-cone programs.
	ConicProgram
	// NonlinearProgram covers general smooth non-convex programs.
	NonlinearProgram
	// MixedInteger covers mixed-integer linear programs.
	MixedInteger
)

// Classes returns the list of problem classes the engine dispatches on.
func Classes() []ProblemClass {
	return []ProblemClass{LinearProgram, ConicProgram, NonlinearProgram, MixedInteger}
}

// String returns the string representation of a problem class.
func (c ProblemClass) String() string {
	switch c {
	case LinearProgram:
		return "linear-program"
	case ConicProgram:
		return "conic-program"
	case NonlinearProgram:
		return "nonlinear-program"
	case MixedInteger:
		return "mixed-integer"
	default:
		return "unknown"
	}
}
