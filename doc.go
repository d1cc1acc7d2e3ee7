// Package opf is an extensible Optimal Power Flow solving engine.
//
// Given a network topology (buses, branches, generators, loads) and a cost
// objective, it computes the generator dispatch and resulting flows that
// satisfy physical and operational constraints at minimum cost, using a
// tiered hierarchy of mathematical relaxations of increasing fidelity:
//
//   - DC tier: linearized, lossless real-power approximation (LP)
//   - Conic tier: branch-flow second-order-cone relaxation (SOCP)
//   - AC tier: exact nonlinear power-flow equations (NLP)
//
// The root package defines the two capability contracts of the engine:
// a [Formulation] decides WHAT to solve (it lowers a network into a
// [Problem] of some [ProblemClass]), and a [Backend] decides HOW (it takes
// a Problem and produces a [Solution] or fails). Formulations and backends
// are registered in a registry and orchestrated by a dispatcher which, on a
// convergence failure, retries with warm starts derived from cheaper tiers.
//
// See the registry, dispatch, and formulation/... subpackages.
package opf
