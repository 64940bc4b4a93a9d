package record

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalIDPrefix marks identifiers assigned locally, before the remote store
// has committed the record. Remote-assigned ids never carry this prefix.
const LocalIDPrefix = "local-"

// Record is the unit every entity family stores, caches, and syncs.
//
// ID is empty only transiently (a create that has not yet been assigned a
// local id). Version is a monotonic counter used for optimistic concurrency:
// updates must present the version they read, and the mutation coordinator
// rejects the write if the record has moved on since.
type Record struct {
	ID        string         `json:"id"`
	Fields    map[string]any `json:"fields"`
	Timestamp time.Time      `json:"timestamp"`
	Version   int64          `json:"version"`
}

// New creates a record with an empty field map and the given timestamp.
func New(ts time.Time) Record {
	return Record{
		Fields:    make(map[string]any),
		Timestamp: ts,
	}
}

// Clone returns a deep copy of the record. Field values themselves are
// immutable (strings, bools, json.Number), so copying the map suffices.
func (r Record) Clone() Record {
	out := r
	out.Fields = make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	return out
}

// NewLocalID generates a "local-" prefixed UUIDv7 identifier.
//
// UUIDv7 embeds a timestamp in the most significant bits, so local ids sort
// by creation time, which keeps SortStable deterministic for same-timestamp
// records created in sequence.
func NewLocalID() string {
	return LocalIDPrefix + uuid.Must(uuid.NewV7()).String()
}

// IsLocalID reports whether id was assigned locally and has not yet been
// settled against the remote store.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// SortStable orders records by timestamp, then id. This is the one canonical
// order; both the authoritative fetch and the published state must pass
// through it before any ordinal comparison.
func SortStable(items []Record) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.Before(items[j].Timestamp)
		}
		return items[i].ID < items[j].ID
	})
}
