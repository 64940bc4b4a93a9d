// Package state implements the observable state container, the in-memory
// view of one entity family that the UI layer reads and subscribes to.
package state

import (
	"sync"

	"tally/internal/record"
)

// Container holds the current in-memory collection for one entity family,
// along with loading and error flags, and notifies subscribers on mutation.
//
// Thread-safety model:
//   - all methods are safe from any goroutine
//   - reads return copies; callers never observe in-place mutation
//   - notifications are coalescing signals, not snapshots: a subscriber that
//     wakes up reads the latest state via Snapshot, so missed intermediate
//     states are harmless
type Container struct {
	mu      sync.RWMutex
	items   []record.Record
	index   map[string]int
	loading bool
	err     error
	subs    map[int]chan struct{}
	nextSub int
}

// NewContainer creates an empty container with the loading flag set: until
// the first publish or cache load completes, consumers treat the collection
// as not yet known.
func NewContainer() *Container {
	return &Container{
		index:   make(map[string]int),
		loading: true,
		subs:    make(map[int]chan struct{}),
	}
}

// Snapshot returns a copy of the current collection.
func (c *Container) Snapshot() []record.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]record.Record, len(c.items))
	copy(out, c.items)
	return out
}

// Get returns the current copy of the record with id.
func (c *Container) Get(id string) (record.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		return record.Record{}, false
	}
	return c.items[i], true
}

// Len returns the current collection size.
func (c *Container) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Loading reports whether an initial load is still in flight.
func (c *Container) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Err returns the last recorded error, or nil.
func (c *Container) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Publish replaces the whole collection, clears the loading and error flags,
// and notifies subscribers.
func (c *Container) Publish(items []record.Record) {
	c.mu.Lock()
	c.items = make([]record.Record, len(items))
	copy(c.items, items)
	c.reindex()
	c.loading = false
	c.err = nil
	c.mu.Unlock()
	c.notify()
}

// Upsert inserts or replaces one record, keeping the canonical order, and
// notifies subscribers.
func (c *Container) Upsert(rec record.Record) {
	c.mu.Lock()
	if i, ok := c.index[rec.ID]; ok {
		c.items[i] = rec
	} else {
		c.items = append(c.items, rec)
	}
	record.SortStable(c.items)
	c.reindex()
	c.mu.Unlock()
	c.notify()
}

// Remove deletes one record by id and notifies subscribers. Removing a
// missing id is a no-op without notification.
func (c *Container) Remove(id string) {
	c.mu.Lock()
	i, ok := c.index[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	c.reindex()
	c.mu.Unlock()
	c.notify()
}

// SetLoading sets the loading flag and notifies subscribers.
func (c *Container) SetLoading(loading bool) {
	c.mu.Lock()
	c.loading = loading
	c.mu.Unlock()
	c.notify()
}

// Fail records an error, clears the loading flag, and notifies subscribers.
// Published items are left as-is: last-known-good state stays readable.
func (c *Container) Fail(err error) {
	c.mu.Lock()
	c.err = err
	c.loading = false
	c.mu.Unlock()
	c.notify()
}

// Subscribe registers a change listener. The returned channel receives a
// coalesced signal after every mutation; the cancel function removes the
// subscription. Slow subscribers never block mutations - a pending signal
// already covers any further changes.
func (c *Container) Subscribe() (<-chan struct{}, func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan struct{}, 1)
	c.subs[id] = ch
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
	return ch, cancel
}

// reindex rebuilds the id index. Callers hold the write lock.
func (c *Container) reindex() {
	c.index = make(map[string]int, len(c.items))
	for i, r := range c.items {
		c.index[r.ID] = i
	}
}

func (c *Container) notify() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
