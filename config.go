package opf

import (
	"fmt"
	"time"
)

// SolverConfig carries the numeric knobs common to all backends. It is a
// value type, copied per call; there is no shared mutable state.
//
// Timeout is cooperative: solving loops check it between iterations. A
// backend that ignores it simply runs to its iteration limit.
type SolverConfig struct {
	// MaxIterations bounds the solver's main iteration loop.
	MaxIterations int
	// Tolerance is the convergence tolerance on the backend's residuals.
	Tolerance float64
	// Timeout bounds wall-clock time; zero means no timeout.
	Timeout time.Duration
}

// Option alters a SolverConfig in NewSolverConfig.
type Option func(*SolverConfig) error

// NewSolverConfig returns the default configuration with opts applied.
func NewSolverConfig(opts ...Option) (SolverConfig, error) {
	cfg := SolverConfig{
		MaxIterations: 5000,
		Tolerance:     1e-6,
		Timeout:       5 * time.Minute,
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return SolverConfig{}, err
		}
	}
	return cfg, nil
}

// WithMaxIterations sets the iteration budget.
func WithMaxIterations(n int) Option {
	return func(cfg *SolverConfig) error {
		if n <= 0 {
			return fmt.Errorf("max iterations must be positive, got %d", n)
		}
		cfg.MaxIterations = n
		return nil
	}
}

// WithTolerance sets the convergence tolerance.
func WithTolerance(tol float64) Option {
	return func(cfg *SolverConfig) error {
		if tol <= 0 {
			return fmt.Errorf("tolerance must be positive, got %g", tol)
		}
		cfg.Tolerance = tol
		return nil
	}
}

// WithTimeout sets the cooperative wall-clock timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(cfg *SolverConfig) error {
		if d < 0 {
			return fmt.Errorf("timeout must not be negative, got %s", d)
		}
		cfg.Timeout = d
		return nil
	}
}
