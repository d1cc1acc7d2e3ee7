package opf

import (
	"errors"
	"fmt"
)

// ConvergenceCause narrows a numerical failure.
type ConvergenceCause uint8

const (
	// IterationLimit means the solver ran out of iterations (or time) before
	// its residuals dropped below tolerance.
	IterationLimit ConvergenceCause = iota
	// Infeasible means the solver detected primal infeasibility.
	Infeasible
	// RestorationFailed means the solver could not recover a feasible
	// iterate after a failed step.
	RestorationFailed
)

// String returns the string representation of a convergence cause.
func (c ConvergenceCause) String() string {
	switch c {
	case IterationLimit:
		return "iteration-limit-exceeded"
	case Infeasible:
		return "infeasible-detected"
	case RestorationFailed:
		return "restoration-failed"
	default:
		return "unknown"
	}
}

// NotFoundError reports an unknown formulation or backend identifier.
// Caller error; never retried.
type NotFoundError struct {
	Kind string // "formulation" or "backend"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.ID)
}

// NoBackendError reports that no currently-available backend supports the
// problem class. Environment/configuration issue; never retried.
type NoBackendError struct {
	Class ProblemClass
}

func (e *NoBackendError) Error() string {
	return fmt.Sprintf("no available backend for %s", e.Class)
}

// DataError reports a network unsuitable for the chosen formulation.
// Caller error; never retried.
type DataError struct {
	Reason string
}

func (e *DataError) Error() string {
	return "data validation: " + e.Reason
}

// ConvergenceError reports a numerical failure. It is the only retry-eligible
// error category: the dispatcher's warm-start fallback cascade fires on it.
type ConvergenceError struct {
	Cause      ConvergenceCause
	Iterations int
	Residual   float64
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("convergence failure (%s) after %d iterations, residual %.3e",
		e.Cause, e.Iterations, e.Residual)
}

// NotImplementedError reports a stub backend or an unsupported
// formulation/backend combination. Never retried.
type NotImplementedError struct {
	Reason string
}

func (e *NotImplementedError) Error() string {
	return "not implemented: " + e.Reason
}

// IsConvergenceFailure reports whether err (or anything it wraps) is a
// convergence-class failure, i.e. eligible for a warm-started retry.
func IsConvergenceFailure(err error) bool {
	var ce *ConvergenceError
	return errors.As(err, &ce)
}
