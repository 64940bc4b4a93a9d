package remote

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"tally/internal/record"
)

// Memory is an in-memory Store used by tests and offline runs.
//
// It mimics the authoritative contract: Create assigns a server id and
// strips any local id, versions advance monotonically, and subscribers
// receive a fresh snapshot after every mutation.
//
// Thread-safety: all methods are safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	records map[string]record.Record
	subs    map[int]subscription
	nextSub int
}

type subscription struct {
	ch <-chan []record.Record
	// send is the buffered writer side; snapshots are coalesced, never
	// blocking a mutation.
	send   chan []record.Record
	filter Filter
}

var (
	_ Store    = (*Memory)(nil)
	_ Streamer = (*Memory)(nil)
)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]record.Record),
		subs:    make(map[int]subscription),
	}
}

// FetchAll returns every record passing the filter, in canonical order.
func (m *Memory) FetchAll(_ context.Context, f Filter) ([]record.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(f), nil
}

// Create assigns a UUIDv7 id, stores the record, and returns the id.
func (m *Memory) Create(_ context.Context, r record.Record) (string, error) {
	m.mu.Lock()
	id := uuid.Must(uuid.NewV7()).String()
	r = r.Clone()
	r.ID = id
	if r.Version == 0 {
		r.Version = 1
	}
	m.records[id] = r
	m.mu.Unlock()

	m.broadcast()
	return id, nil
}

// Update replaces the record with id and bumps its version.
func (m *Memory) Update(_ context.Context, id string, r record.Record) error {
	m.mu.Lock()
	existing, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	r = r.Clone()
	r.ID = id
	r.Version = existing.Version + 1
	m.records[id] = r
	m.mu.Unlock()

	m.broadcast()
	return nil
}

// Delete removes the record with id.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.records[id]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.records, id)
	m.mu.Unlock()

	m.broadcast()
	return nil
}

// Subscribe returns a channel that receives the current snapshot immediately
// and a fresh snapshot after every mutation. Snapshots coalesce: a slow
// consumer sees the latest state, not every intermediate one.
func (m *Memory) Subscribe(ctx context.Context, f Filter) (<-chan []record.Record, error) {
	m.mu.Lock()
	send := make(chan []record.Record, 1)
	id := m.nextSub
	m.nextSub++
	m.subs[id] = subscription{ch: send, send: send, filter: f}
	send <- m.snapshotLocked(f)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
		close(send)
	}()

	return send, nil
}

// Len reports the number of stored records. Test helper.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Seed stores records verbatim, keeping their ids. Test helper.
func (m *Memory) Seed(items ...record.Record) {
	m.mu.Lock()
	for _, r := range items {
		if r.Version == 0 {
			r.Version = 1
		}
		m.records[r.ID] = r.Clone()
	}
	m.mu.Unlock()
	m.broadcast()
}

func (m *Memory) snapshotLocked(f Filter) []record.Record {
	out := make([]record.Record, 0, len(m.records))
	for _, r := range m.records {
		if f.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	record.SortStable(out)
	return out
}

func (m *Memory) broadcast() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subs {
		snap := m.snapshotLocked(sub.filter)
		// Replace any pending snapshot with the latest.
		select {
		case <-sub.send:
		default:
		}
		select {
		case sub.send <- snap:
		default:
		}
	}
}
