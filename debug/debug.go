//go:build !debug

// Package debug holds the build-tagged debug switch shared by the solver
// packages. Build with -tags debug to enable verbose solver logging and
// internal assertions.
package debug

// Debug is true only when built with -tags debug.
const Debug = false

// Assert does nothing in release builds.
func Assert(condition bool, message ...string) {}
