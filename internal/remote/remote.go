// Package remote defines the authoritative store boundary and its two
// adapters: an in-memory store for tests and offline runs, and a
// Postgres-backed store for a real remote.
//
// The remote store is the system of record and every call costs a round
// trip; the engine's whole design exists to minimize calls to it. Reads are
// bounded with a from-timestamp filter.
package remote

import (
	"context"
	"errors"
	"time"

	"tally/internal/record"
)

// ErrNotFound is returned by Update and Delete when the id has no record.
var ErrNotFound = errors.New("remote: record not found")

// Filter bounds the read volume of a fetch. The zero value fetches
// everything.
type Filter struct {
	// From limits the fetch to records with Timestamp >= From when non-zero.
	From time.Time
}

// Matches reports whether r passes the filter.
func (f Filter) Matches(r record.Record) bool {
	return f.From.IsZero() || !r.Timestamp.Before(f.From)
}

// Store is the remote authoritative store for one entity family.
//
// FetchAll returns records in no guaranteed order; callers that compare
// sequences must apply record.SortStable first.
type Store interface {
	// FetchAll returns every record passing the filter.
	FetchAll(ctx context.Context, f Filter) ([]record.Record, error)

	// Create commits a new record and returns its remote-assigned id.
	// The record's local id, if any, is not stored.
	Create(ctx context.Context, r record.Record) (string, error)

	// Update replaces the record with the given id.
	Update(ctx context.Context, id string, r record.Record) error

	// Delete removes the record with the given id.
	Delete(ctx context.Context, id string) error
}

// Streamer is implemented by stores that can push collection snapshots.
// The channel closes when the context is cancelled.
type Streamer interface {
	Subscribe(ctx context.Context, f Filter) (<-chan []record.Record, error)
}
