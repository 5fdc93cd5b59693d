// Package dag owns the validated task graph.
//
// It is intentionally split into:
//   - Construction and validation (uniqueness, dependency existence,
//     alias disjointness, acyclicity)
//   - Orderings derived from the dependency relation (topological sort,
//     target closures, dependency levels)
//
// A Graph is immutable after New returns and is safe for concurrent reads.
package dag
