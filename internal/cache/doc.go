// Package cache implements the partitioned cache store, one instance per
// entity family.
//
// A family's cached collection is split into partitions keyed by a derived
// grouping value (day for ledger entries, month for budgets, a constant key
// for goals and notifications). Each partition persists as one envelope in
// the encrypted key-value store; a metadata record tracks the known partition
// keys. Partitioning makes expiry and single-record rewrites partial: a TTL
// lapse drops one envelope, an upsert rewrites one envelope, and neither
// touches the rest of the collection.
//
// INVARIANTS:
//
// Metadata never dangles:
// Every key in the metadata set corresponds to a live envelope, or is removed
// in the same operation that pruned the envelope.
//
// CapturedAt moves only on write:
// An envelope's capture timestamp refreshes on every successful envelope
// write and never on read.
//
// Absent is not empty:
// GetAll reports absent only when zero partitions survive. An envelope whose
// item list has been emptied by deletions is still present and fresh; callers
// must not treat it as a miss, or real deletions would force a refetch.
//
// FAILURE SEMANTICS:
//
// The cache is an optimization layer. Storage failures are logged and
// degraded - a failed read is a miss, a failed write is dropped - and are
// never surfaced to callers. Corrupt or schema-mismatched envelopes fail
// closed as misses so the authoritative path can rebuild them.
package cache
