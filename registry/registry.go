// Package registry tracks the formulations and backends known to the
// engine and selects a backend per problem class using a fixed preference
// order, falling back to any available backend that supports the class.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gridfold/opf"
	"github.com/gridfold/opf/backend/lbfgs"
	"github.com/gridfold/opf/backend/native"
	"github.com/gridfold/opf/backend/splitcone"
	"github.com/gridfold/opf/formulation/acopf"
	"github.com/gridfold/opf/formulation/dcopf"
	"github.com/gridfold/opf/formulation/econdisp"
	"github.com/gridfold/opf/formulation/socp"
)

// classPriority is the fixed backend preference per problem class. Entries
// name backends that may or may not be registered or available; selection
// skips the missing ones.
var classPriority = map[opf.ProblemClass][]string{
	opf.LinearProgram:    {"highs", "splitcone"},
	opf.ConicProgram:     {"splitcone"},
	opf.NonlinearProgram: {"ipopt", "lbfgs"},
	opf.MixedInteger:     {"highs", "cbc"},
}

// Registry holds registered formulations and backends. It is safe for
// concurrent use.
type Registry struct {
	mu           sync.RWMutex
	formulations map[string]opf.Formulation
	backends     map[string]opf.Backend
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		formulations: make(map[string]opf.Formulation),
		backends:     make(map[string]opf.Backend),
	}
}

// WithDefaults returns a registry loaded with the built-in formulations and
// backends, plus the native solver bridges (available only when their
// binaries are installed).
func WithDefaults() *Registry {
	r := New()
	for _, f := range []opf.Formulation{
		dcopf.NewLossy(),
		socp.New(),
		acopf.New(),
		econdisp.New(),
	} {
		if err := r.RegisterFormulation(f); err != nil {
			panic(err) // built-in ids collide only through a programming error
		}
	}
	for _, b := range []opf.Backend{
		splitcone.New(),
		lbfgs.New(),
		native.Ipopt(),
		native.Highs(),
		native.Cbc(),
	} {
		if err := r.RegisterBackend(b); err != nil {
			panic(err)
		}
	}
	return r
}

// RegisterFormulation adds a formulation; registering a duplicate id fails.
func (r *Registry) RegisterFormulation(f opf.Formulation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.formulations[f.ID()]; dup {
		return fmt.Errorf("formulation %q already registered", f.ID())
	}
	r.formulations[f.ID()] = f
	return nil
}

// RegisterBackend adds a backend; registering a duplicate id fails.
func (r *Registry) RegisterBackend(b opf.Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.backends[b.ID()]; dup {
		return fmt.Errorf("backend %q already registered", b.ID())
	}
	r.backends[b.ID()] = b
	return nil
}

// Formulation returns the formulation registered under id.
func (r *Registry) Formulation(id string) (opf.Formulation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.formulations[id]
	if !ok {
		return nil, &opf.NotFoundError{Kind: "formulation", ID: id}
	}
	return f, nil
}

// Backend returns the backend registered under id.
func (r *Registry) Backend(id string) (opf.Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[id]
	if !ok {
		return nil, &opf.NotFoundError{Kind: "backend", ID: id}
	}
	return b, nil
}

// Formulations lists registered formulation ids, sorted.
func (r *Registry) Formulations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.formulations))
	for id := range r.formulations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Backends lists registered backend ids, sorted.
func (r *Registry) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.backends))
	for id := range r.backends {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// BackendsFor returns the available backends supporting class, sorted by
// id.
func (r *Registry) BackendsFor(class opf.ProblemClass) []opf.Backend {
	r.mu.RLock()
	ids := make([]string, 0, len(r.backends))
	for id := range r.backends {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)

	var out []opf.Backend
	for _, id := range ids {
		b, err := r.Backend(id)
		if err != nil {
			continue
		}
		if supports(b, class) && b.IsAvailable() {
			out = append(out, b)
		}
	}
	return out
}

// SelectBackend picks the backend for class: the first preferred id that is
// registered, supports the class and is available; failing that, any
// available backend supporting the class (in id order). Returns
// NoBackendError when nothing qualifies.
func (r *Registry) SelectBackend(class opf.ProblemClass) (opf.Backend, error) {
	for _, id := range classPriority[class] {
		b, err := r.Backend(id)
		if err != nil {
			continue
		}
		if supports(b, class) && b.IsAvailable() {
			return b, nil
		}
	}
	if others := r.BackendsFor(class); len(others) > 0 {
		return others[0], nil
	}
	return nil, &opf.NoBackendError{Class: class}
}

func supports(b opf.Backend, class opf.ProblemClass) bool {
	for _, c := range b.SupportedClasses() {
		if c == class {
			return true
		}
	}
	return false
}
