// Package dedupe provides the session deduplication guard for derived-event
// creation.
//
// Budget alerts are derived events: a threshold crossing can be evaluated
// once per budget update or in one batch check at startup, and either path
// may run several times in a session. The guard makes the creation decision
// idempotent per (source, period) key for the lifetime of the process; keys
// are never persisted.
package dedupe

import "sync"

// SessionGuard tracks idempotency keys for one process run.
//
// The guard is an explicitly constructed dependency, not package state, so
// tests get per-instance isolation. It is safe for concurrent use.
type SessionGuard struct {
	mu        sync.Mutex
	seen      map[string]struct{}
	batchDone bool
}

// NewSessionGuard creates an empty guard.
func NewSessionGuard() *SessionGuard {
	return &SessionGuard{seen: make(map[string]struct{})}
}

// Key builds the composite idempotency key for a derived event.
func Key(sourceID, periodKey string) string {
	return sourceID + "|" + periodKey
}

// ShouldProcess returns true exactly once per key within a session: the
// first call inserts the key and returns true, every later call returns
// false.
func (g *SessionGuard) ShouldProcess(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[key]; ok {
		return false
	}
	g.seen[key] = struct{}{}
	return true
}

// BatchOnce gates a whole batch-check routine: it returns true on the first
// call of the session and false afterwards. Trading a same-session late
// threshold crossing for a hard guarantee against duplicate alert storms.
func (g *SessionGuard) BatchOnce() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.batchDone {
		return false
	}
	g.batchDone = true
	return true
}

// Reset clears the key set and the batch gate. Intended for an explicit
// user-triggered refresh, not automatic invocation.
func (g *SessionGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen = make(map[string]struct{})
	g.batchDone = false
}
