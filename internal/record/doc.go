// Package record defines the generic record model shared by every entity
// family (ledger entries, budgets, goals, notifications).
//
// The cache and sync machinery is agnostic to business fields: a record is an
// identifier, a timestamp, a version, and an opaque field map. The few fields
// the engine does inspect (partition grouping, the watched comparison field,
// amounts for aggregates) are accessed through the typed helpers in fields.go.
//
// DESIGN CONSTRAINTS:
//
// Lossless round-trip:
// Field values are restricted to string, bool, json.Number, and RFC 3339
// timestamp strings. Numeric values stay json.Number end to end so that
// amounts survive the cache codec without float64 precision loss.
//
// Local identifiers:
// Records created optimistically before the remote store has assigned an id
// carry a "local-" prefixed UUID. Local ids are settled away by background
// reconciliation, never patched in place.
//
// Ordering:
// Reconciliation compares sequences by ordinal position, which is only sound
// when both sides share one deterministic order. SortStable is that order
// (timestamp, then id); callers must apply it before comparison.
package record
