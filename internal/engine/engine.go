package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tally/internal/cache"
	"tally/internal/metrics"
	"tally/internal/reconcile"
	"tally/internal/record"
	"tally/internal/remote"
	"tally/internal/state"
)

// mutationState tracks a mutation through its lifecycle for logging.
type mutationState int

const (
	stateRequested mutationState = iota
	stateLocalApplied
	stateRemoteCommitted
	stateFailed
)

func (s mutationState) String() string {
	switch s {
	case stateLocalApplied:
		return "local_applied"
	case stateRemoteCommitted:
		return "remote_committed"
	case stateFailed:
		return "failed"
	default:
		return "requested"
	}
}

// Options configures an Engine for one entity family.
type Options struct {
	Family    string
	Cache     *cache.Store
	Remote    remote.Store
	Container *state.Container
	Compare   reconcile.Comparator

	// Aggregate, when set, is maintained incrementally on every mutation.
	Aggregate *Tracker

	// IDs generates the token part of local record ids. Defaults to
	// UUIDv7Generator.
	IDs IDGenerator

	// FetchWindow bounds authoritative reads to records no older than the
	// window. Zero fetches everything.
	FetchWindow time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Engine coordinates optimistic mutations and reconciliation for one entity
// family.
//
// Thread-safety model:
//   - exported methods are safe from any goroutine
//   - mutations and reconciliation applies serialize on an internal mutex
//   - the UI layer is expected to issue mutations sequentially; overlapping
//     updates to one record fail the version check rather than interleave
type Engine struct {
	family    string
	cache     *cache.Store
	remote    remote.Store
	container *state.Container
	cmp       reconcile.Comparator
	agg       *Tracker
	ids       IDGenerator
	window    time.Duration
	log       *slog.Logger
	metrics   *metrics.Recorder

	// mu orders mutation applies against reconciliation applies.
	mu sync.Mutex

	// epoch invalidates in-flight background work across session resets.
	epoch atomic.Int64

	sessMu     sync.Mutex
	sessCtx    context.Context
	sessCancel context.CancelFunc

	bg sync.WaitGroup
}

// New creates an engine from opts. Family, Cache, Remote, Container, and
// Compare are required.
func New(opts Options) *Engine {
	if opts.IDs == nil {
		opts.IDs = UUIDv7Generator{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		family:     opts.Family,
		cache:      opts.Cache,
		remote:     opts.Remote,
		container:  opts.Container,
		cmp:        opts.Compare,
		agg:        opts.Aggregate,
		ids:        opts.IDs,
		window:     opts.FetchWindow,
		log:        opts.Logger.With("family", opts.Family),
		metrics:    opts.Metrics,
		sessCtx:    ctx,
		sessCancel: cancel,
	}
}

// Family returns the entity family name.
func (e *Engine) Family() string { return e.family }

// Container returns the family's observable state container.
func (e *Engine) Container() *state.Container { return e.container }

// Aggregate returns the current dashboard aggregate, or a zero aggregate
// when the family does not maintain one.
func (e *Engine) Aggregate() Aggregate {
	if e.agg == nil {
		return Aggregate{}
	}
	return e.agg.Snapshot()
}

// LoadCacheFirst activates the family: publish from cache when possible and
// reconcile in the background, otherwise fall through to the authoritative
// store and prime the cache.
//
// A cache hit never blocks on the network. A cache miss surfaces remote
// errors to the caller, because the user initiated the load and has no
// last-known-good state to fall back on.
func (e *Engine) LoadCacheFirst(ctx context.Context) error {
	e.container.SetLoading(true)

	if items, ok := e.cache.GetAll(ctx); ok {
		e.metrics.CacheRead(e.family, true)
		record.SortStable(items)
		e.container.Publish(items)
		if e.agg != nil && !e.agg.Load(ctx) {
			e.agg.Rebuild(ctx, items)
		}
		e.log.Debug("cache hit, reconciling in background", "items", len(items))
		e.ScheduleReconcile()
		return nil
	}
	e.metrics.CacheRead(e.family, false)

	if streamer, ok := e.remote.(remote.Streamer); ok {
		return e.loadFromStream(ctx, streamer)
	}

	items, err := e.fetchRemote(ctx)
	if err != nil {
		e.container.Fail(err)
		return fmt.Errorf("load %s: %w", e.family, err)
	}
	e.publishAndPrime(ctx, items)
	return nil
}

// Create applies a new record optimistically and commits it remotely.
//
// The returned record carries the temporary local id; the server-assigned id
// settles through background reconciliation, not an in-place rewrite. On a
// remote failure the typed error is returned and the optimistic record stays
// in state and cache (documented non-rollback behavior).
func (e *Engine) Create(ctx context.Context, rec record.Record) (record.Record, error) {
	rec = rec.Clone()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.ID == "" {
		rec.ID = record.LocalIDPrefix + e.ids.Generate()
	}
	rec.Version = 1

	e.mu.Lock()
	e.container.Upsert(rec)
	e.cache.UpsertOne(ctx, rec)
	if e.agg != nil {
		e.agg.ApplyCreate(ctx, rec)
	}
	e.mu.Unlock()
	e.log.Debug("create", "record", rec.ID, "state", stateLocalApplied)

	e.metrics.RemoteCall(e.family, "create")
	remoteID, err := e.remote.Create(ctx, rec)
	if err != nil {
		e.log.Warn("create rejected by remote", "record", rec.ID, "state", stateFailed, "error", err)
		return rec, newRemoteError(e.family, "create", rec.ID, err)
	}
	e.log.Debug("create", "record", rec.ID, "remote_id", remoteID, "state", stateRemoteCommitted)

	// Settled by the same reconciliation mechanism that serves cache-hit
	// loads; no separate id-patching write path.
	e.ScheduleReconcile()
	return rec, nil
}

// Update applies field changes to an existing record and commits them
// remotely. The caller must present the version it read; a moved version
// fails with CONFLICT before anything is applied.
func (e *Engine) Update(ctx context.Context, rec record.Record) error {
	e.mu.Lock()
	current, ok := e.container.Get(rec.ID)
	if !ok {
		e.mu.Unlock()
		return newNotFoundError(e.family, "update", rec.ID)
	}
	if record.IsLocalID(rec.ID) {
		// The remote store cannot address this record until reconciliation
		// settles its server id.
		e.mu.Unlock()
		return newUnsettledError(e.family, "update", rec.ID)
	}
	if current.Version != rec.Version {
		e.mu.Unlock()
		return newConflictError(e.family, "update", rec.ID)
	}

	rec = rec.Clone()
	rec.Version++
	e.container.Upsert(rec)
	e.cache.UpsertOne(ctx, rec)
	if e.agg != nil {
		e.agg.ApplyUpdate(ctx, current, rec)
	}
	e.mu.Unlock()
	e.log.Debug("update", "record", rec.ID, "state", stateLocalApplied)

	e.metrics.RemoteCall(e.family, "update")
	if err := e.remote.Update(ctx, rec.ID, rec); err != nil {
		// Local copy stays ahead of the remote until retried or reconciled.
		e.log.Warn("update rejected by remote", "record", rec.ID, "state", stateFailed, "error", err)
		return newRemoteError(e.family, "update", rec.ID, err)
	}
	e.log.Debug("update", "record", rec.ID, "state", stateRemoteCommitted)
	return nil
}

// Delete removes a record locally and remotely, same ordering as every
// mutation: state, cache, then remote.
func (e *Engine) Delete(ctx context.Context, id string) error {
	e.mu.Lock()
	current, ok := e.container.Get(id)
	if !ok {
		e.mu.Unlock()
		return newNotFoundError(e.family, "delete", id)
	}
	if record.IsLocalID(id) {
		// Deleting locally while the create may have committed remotely
		// would resurrect the record on the next reconciliation.
		e.mu.Unlock()
		return newUnsettledError(e.family, "delete", id)
	}

	e.container.Remove(id)
	e.cache.DeleteOne(ctx, current)
	if e.agg != nil {
		e.agg.ApplyDelete(ctx, current)
	}
	e.mu.Unlock()
	e.log.Debug("delete", "record", id, "state", stateLocalApplied)

	e.metrics.RemoteCall(e.family, "delete")
	if err := e.remote.Delete(ctx, id); err != nil {
		e.log.Warn("delete rejected by remote", "record", id, "state", stateFailed, "error", err)
		return newRemoteError(e.family, "delete", id, err)
	}
	e.log.Debug("delete", "record", id, "state", stateRemoteCommitted)
	return nil
}

// Reconcile fetches the authoritative collection and replaces published
// state and cache when the cheap change check says they differ.
func (e *Engine) Reconcile(ctx context.Context) (reconcile.Outcome, error) {
	items, err := e.fetchRemote(ctx)
	if err != nil {
		return reconcile.Unchanged, fmt.Errorf("reconcile %s: %w", e.family, err)
	}
	outcome, _ := e.applySnapshot(ctx, items, e.epoch.Load())
	return outcome, nil
}

// ScheduleReconcile starts a fire-and-forget background reconciliation.
// Failures are logged, never surfaced: the user did not initiate this fetch
// and published state stays last-known-good. Results from a superseded
// session epoch are discarded.
func (e *Engine) ScheduleReconcile() {
	epoch := e.epoch.Load()
	ctx := e.sessionContext()

	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		items, err := e.fetchRemote(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				e.log.Warn("background reconciliation failed", "error", err)
			}
			return
		}
		outcome, applied := e.applySnapshot(ctx, items, epoch)
		if !applied {
			e.log.Debug("discarding reconciliation from stale session", "epoch", epoch)
			return
		}
		e.log.Debug("background reconciliation finished", "outcome", outcome.String())
	}()
}

// ResetSession invalidates all in-flight background work and starts a new
// session epoch. Must be called on user change or explicit refresh so stale
// reconciliation results cannot leak across sessions.
func (e *Engine) ResetSession() {
	e.sessMu.Lock()
	e.sessCancel()
	e.sessCtx, e.sessCancel = context.WithCancel(context.Background())
	e.sessMu.Unlock()
	e.epoch.Add(1)
}

// Close cancels background work and waits for it to drain.
func (e *Engine) Close() {
	e.sessMu.Lock()
	e.sessCancel()
	e.sessMu.Unlock()
	e.bg.Wait()
}

// loadFromStream serves a cache miss from a push-based remote: the first
// snapshot publishes synchronously, later snapshots apply like background
// reconciliations.
func (e *Engine) loadFromStream(ctx context.Context, streamer remote.Streamer) error {
	e.metrics.RemoteCall(e.family, "subscribe")
	snapshots, err := streamer.Subscribe(e.sessionContext(), e.fetchFilter())
	if err != nil {
		e.container.Fail(err)
		return fmt.Errorf("load %s: %w", e.family, err)
	}

	select {
	case items, ok := <-snapshots:
		if !ok {
			err := fmt.Errorf("load %s: stream closed before first snapshot", e.family)
			e.container.Fail(err)
			return err
		}
		e.publishAndPrime(ctx, items)
	case <-ctx.Done():
		e.container.Fail(ctx.Err())
		return fmt.Errorf("load %s: %w", e.family, ctx.Err())
	}

	epoch := e.epoch.Load()
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		for items := range snapshots {
			if _, applied := e.applySnapshot(context.Background(), items, epoch); !applied {
				return
			}
		}
	}()
	return nil
}

// publishAndPrime publishes an authoritative collection and primes cache
// and aggregate from it.
func (e *Engine) publishAndPrime(ctx context.Context, items []record.Record) {
	record.SortStable(items)
	e.mu.Lock()
	e.container.Publish(items)
	e.cache.Put(ctx, items)
	if e.agg != nil {
		e.agg.Rebuild(ctx, items)
	}
	e.mu.Unlock()
}

// applySnapshot replaces state and cache if the snapshot differs from the
// published collection. Returns applied=false when epoch is stale; in that
// case nothing is touched. Unchanged outcomes have no side effects.
func (e *Engine) applySnapshot(ctx context.Context, items []record.Record, epoch int64) (reconcile.Outcome, bool) {
	record.SortStable(items)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch.Load() != epoch {
		return reconcile.Unchanged, false
	}

	current := e.container.Snapshot()
	if !e.cmp.HasChanged(items, current) {
		e.metrics.Reconciliation(e.family, reconcile.Unchanged.String())
		return reconcile.Unchanged, true
	}

	e.container.Publish(items)
	e.cache.Put(ctx, items)
	if e.agg != nil {
		e.agg.Rebuild(ctx, items)
	}
	e.metrics.Reconciliation(e.family, reconcile.Updated.String())
	return reconcile.Updated, true
}

func (e *Engine) fetchRemote(ctx context.Context) ([]record.Record, error) {
	e.metrics.RemoteCall(e.family, "fetch")
	return e.remote.FetchAll(ctx, e.fetchFilter())
}

func (e *Engine) fetchFilter() remote.Filter {
	if e.window <= 0 {
		return remote.Filter{}
	}
	return remote.Filter{From: time.Now().Add(-e.window)}
}

func (e *Engine) sessionContext() context.Context {
	e.sessMu.Lock()
	defer e.sessMu.Unlock()
	return e.sessCtx
}
