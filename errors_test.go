package opf

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, `unknown formulation "bogus-opf"`, (&NotFoundError{Kind: "formulation", ID: "bogus-opf"}).Error())
	assert.Contains(t, (&NoBackendError{Class: NonlinearProgram}).Error(), NonlinearProgram.String())
	assert.Contains(t, (&DataError{Reason: "no reference bus"}).Error(), "no reference bus")
	assert.Contains(t, (&NotImplementedError{Reason: "piecewise thermal limits"}).Error(), "piecewise")
}

func TestConvergenceErrorCauses(t *testing.T) {
	for _, cause := range []ConvergenceCause{IterationLimit, Infeasible, RestorationFailed} {
		err := &ConvergenceError{Cause: cause, Iterations: 42, Residual: 1e-2}
		assert.Contains(t, err.Error(), cause.String())
		assert.True(t, IsConvergenceFailure(err))
	}
}

func TestIsConvergenceFailureUnwraps(t *testing.T) {
	inner := &ConvergenceError{Cause: IterationLimit, Iterations: 100}
	wrapped := fmt.Errorf("solving dc-opf: %w", inner)
	require.True(t, IsConvergenceFailure(wrapped))

	var ce *ConvergenceError
	require.True(t, errors.As(wrapped, &ce))
	assert.Equal(t, 100, ce.Iterations)
}

func TestIsConvergenceFailureRejectsOthers(t *testing.T) {
	assert.False(t, IsConvergenceFailure(nil))
	assert.False(t, IsConvergenceFailure(errors.New("plain")))
	assert.False(t, IsConvergenceFailure(&DataError{Reason: "x"}))
	assert.False(t, IsConvergenceFailure(&NoBackendError{Class: LinearProgram}))
}
