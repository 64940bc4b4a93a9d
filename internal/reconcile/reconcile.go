// Package reconcile implements cheap change detection between a freshly
// fetched authoritative collection and the currently published one.
//
// The comparison is intentionally shallow: length plus, per ordinal position,
// one identity field and one watched field. Its only job is to decide whether
// a state publish and cache rewrite can be skipped, not to diff or merge
// data. A false positive costs one redundant publish; the contract below
// exists to rule out false negatives.
//
// ORDERING CONTRACT: both sequences must be in the same deterministic order
// (record.SortStable) before comparison. Callers that skip the sort can see
// spurious change signals but never a silently dropped change, because any
// real difference in membership or watched values survives reordering of
// equal-length sequences only if every position still matches.
package reconcile

import "tally/internal/record"

// Outcome reports what a reconciliation pass did.
type Outcome int

const (
	// Unchanged means the candidate matched current state; no side effects.
	Unchanged Outcome = iota
	// Updated means published state and cache were replaced.
	Updated
)

// String returns the outcome name for logs and metrics labels.
func (o Outcome) String() string {
	if o == Updated {
		return "updated"
	}
	return "unchanged"
}

// Comparator selects the identity and watched fields for one entity family.
//
// Identity distinguishes records (usually the id); Watched is the single
// business field whose drift matters enough to republish (amount for ledger
// entries, limit for budgets).
type Comparator struct {
	Identity func(record.Record) string
	Watched  func(record.Record) string
}

// HasChanged reports whether candidate differs from current under the
// shallow ordinal comparison.
//
// Both sequences must be record.SortStable ordered; see the package doc.
// HasChanged(x, x) is always false, and the function has no side effects.
func (c Comparator) HasChanged(candidate, current []record.Record) bool {
	if len(candidate) != len(current) {
		return true
	}
	for i := range candidate {
		if c.Identity(candidate[i]) != c.Identity(current[i]) {
			return true
		}
		if c.Watched(candidate[i]) != c.Watched(current[i]) {
			return true
		}
	}
	return false
}

// ByID is the identity selector shared by every family.
func ByID(r record.Record) string { return r.ID }

// ByField returns a watched-field selector reading the named field's
// canonical string form.
func ByField(name string) func(record.Record) string {
	return func(r record.Record) string {
		if d, ok := r.Amount(name); ok {
			return d.String()
		}
		return r.Str(name)
	}
}

// ByFlagField returns a watched-field selector for a boolean field.
func ByFlagField(name string) func(record.Record) string {
	return func(r record.Record) string {
		if r.Flag(name) {
			return "true"
		}
		return "false"
	}
}
