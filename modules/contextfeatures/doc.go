// Package contextfeatures owns the ordered registry of context features: the
// named dimensions that rules are matched against, each holding a zero-based
// index. Indices are always a contiguous permutation of 0..n-1 and names are
// unique.
//
// The registry is process-wide shared state backed by Postgres. Every
// mutation (add, delete, move, startup reconciliation) runs in a single
// transaction holding a registry advisory lock, so in-use checks and index
// compaction never interleave with a concurrent reorder.
//
// Startup reconciliation compares the persisted registry against the ordering
// the deployment expects. An empty registry is initialized from the expected
// list; a disagreement in the *set* of names is fatal (ErrConfigurationMismatch)
// so dimensions are never silently added or removed; a disagreement only in
// ordering rewrites just the drifted index values, keeping startup idempotent.
package contextfeatures
