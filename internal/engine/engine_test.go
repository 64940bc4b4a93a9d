package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/cache"
	"tally/internal/keystore"
	"tally/internal/reconcile"
	"tally/internal/record"
	"tally/internal/remote"
	"tally/internal/state"
)

// fetchOnly hides the Streamer interface of the memory remote so tests
// exercise the one-shot fetch path.
type fetchOnly struct {
	remote.Store
}

// blockingRemote runs a hook while Create is in flight, letting tests
// observe intermediate optimistic state.
type blockingRemote struct {
	remote.Store
	onCreate func()
}

func (b *blockingRemote) Create(ctx context.Context, r record.Record) (string, error) {
	if b.onCreate != nil {
		b.onCreate()
	}
	return b.Store.Create(ctx, r)
}

// failingRemote rejects every call.
type failingRemote struct{}

var errRemoteDown = errors.New("remote unreachable")

func (failingRemote) FetchAll(context.Context, remote.Filter) ([]record.Record, error) {
	return nil, errRemoteDown
}
func (failingRemote) Create(context.Context, record.Record) (string, error) {
	return "", errRemoteDown
}
func (failingRemote) Update(context.Context, string, record.Record) error { return errRemoteDown }
func (failingRemote) Delete(context.Context, string) error               { return errRemoteDown }

// gatedRemote blocks FetchAll until the gate is released.
type gatedRemote struct {
	remote.Store
	gate chan struct{}
}

func (g *gatedRemote) FetchAll(ctx context.Context, f remote.Filter) ([]record.Record, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.Store.FetchAll(ctx, f)
}

func ledgerEntry(id string, d int, amount string) record.Record {
	r := record.New(time.Date(2026, 8, d, 10, 0, 0, 0, time.UTC))
	r.ID = id
	r.SetAmount(record.FieldAmount, decimal.RequireFromString(amount))
	return r
}

type testRig struct {
	kv     *keystore.Memory
	cache  *cache.Store
	remote remote.Store
	eng    *Engine
}

func newTestRig(t *testing.T, rem remote.Store) *testRig {
	t.Helper()
	kv := keystore.NewMemory()
	st := cache.New(kv, "ledger", record.ByDay, time.Hour)
	eng := New(Options{
		Family:    "ledger",
		Cache:     st,
		Remote:    rem,
		Container: state.NewContainer(),
		Compare:   reconcile.Comparator{Identity: reconcile.ByID, Watched: reconcile.ByField(record.FieldAmount)},
		Aggregate: NewTracker(st, record.FieldAmount),
		IDs:       NewFixedGenerator("t1", "t2", "t3", "t4"),
	})
	t.Cleanup(eng.Close)
	return &testRig{kv: kv, cache: st, remote: rem, eng: eng}
}

func TestLoadCacheFirst_MissFetchesAndPrimes(t *testing.T) {
	mem := remote.NewMemory()
	mem.Seed(ledgerEntry("a", 1, "-10"), ledgerEntry("b", 1, "25"), ledgerEntry("c", 2, "-3"))
	rig := newTestRig(t, fetchOnly{mem})
	ctx := context.Background()

	require.NoError(t, rig.eng.LoadCacheFirst(ctx))

	c := rig.eng.Container()
	assert.False(t, c.Loading())
	assert.Equal(t, 3, c.Len())

	// Cache was primed: day partitions for the 1st and 2nd plus metadata
	// and the aggregate.
	cached, ok := rig.cache.GetAll(ctx)
	require.True(t, ok)
	assert.Len(t, cached, 3)
	assert.Equal(t, 4, rig.kv.Len())
}

func TestLoadCacheFirst_HitDoesNotNeedRemote(t *testing.T) {
	// Prime a cache through one rig, then serve a second activation from the
	// same keystore with the remote down: the cached collection must still
	// publish, proving the hit path never blocks on the network.
	mem := remote.NewMemory()
	mem.Seed(ledgerEntry("a", 1, "-10"), ledgerEntry("b", 2, "25"))
	rig := newTestRig(t, fetchOnly{mem})
	ctx := context.Background()
	require.NoError(t, rig.eng.LoadCacheFirst(ctx))
	rig.eng.Close()

	st := cache.New(rig.kv, "ledger", record.ByDay, time.Hour)
	eng2 := New(Options{
		Family:    "ledger",
		Cache:     st,
		Remote:    failingRemote{},
		Container: state.NewContainer(),
		Compare:   reconcile.Comparator{Identity: reconcile.ByID, Watched: reconcile.ByField(record.FieldAmount)},
	})
	defer eng2.Close()

	require.NoError(t, eng2.LoadCacheFirst(ctx))
	assert.Equal(t, 2, eng2.Container().Len())
	assert.NoError(t, eng2.Container().Err(), "background reconcile failure stays invisible")
}

func TestLoadCacheFirst_MissRemoteErrorSurfaces(t *testing.T) {
	rig := newTestRig(t, failingRemote{})

	err := rig.eng.LoadCacheFirst(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errRemoteDown)
	assert.False(t, rig.eng.Container().Loading())
	assert.Error(t, rig.eng.Container().Err())
}

func TestCreate_OptimisticOrdering(t *testing.T) {
	// State and cache must reflect the record strictly before the remote
	// call is issued.
	mem := remote.NewMemory()
	var rig *testRig
	observed := struct {
		inContainer bool
		inCache     bool
	}{}
	blocking := &blockingRemote{Store: mem, onCreate: func() {
		_, observed.inContainer = rig.eng.Container().Get("local-t1")
		cached, ok := rig.cache.GetAll(context.Background())
		observed.inCache = ok && len(cached) == 1 && cached[0].ID == "local-t1"
	}}
	rig = newTestRig(t, blocking)

	_, err := rig.eng.Create(context.Background(), ledgerEntry("", 1, "-12.50"))
	require.NoError(t, err)

	assert.True(t, observed.inContainer, "container must hold the record before the remote call")
	assert.True(t, observed.inCache, "cache must hold the record before the remote call")
}

func TestCreate_RemoteFailureKeepsOptimisticRecord(t *testing.T) {
	rig := newTestRig(t, failingRemote{})

	created, err := rig.eng.Create(context.Background(), ledgerEntry("", 1, "-12.50"))
	require.Error(t, err)
	assert.True(t, IsRemoteRejected(err))

	var me *MutationError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "create", me.Op)
	assert.Equal(t, "ledger", me.Family)

	// Documented non-rollback behavior: the optimistic record survives.
	got, ok := rig.eng.Container().Get(created.ID)
	require.True(t, ok)
	assert.True(t, record.IsLocalID(got.ID))
}

func TestCreate_SettlesViaReconciliation(t *testing.T) {
	mem := remote.NewMemory()
	rig := newTestRig(t, fetchOnly{mem})
	ctx := context.Background()

	created, err := rig.eng.Create(ctx, ledgerEntry("", 1, "-12.50"))
	require.NoError(t, err)
	assert.True(t, record.IsLocalID(created.ID))

	// The same reconciliation mechanism used for cache-hit loads settles
	// the server-assigned id; no in-place rewrite happens. Close drains the
	// reconciliation the create scheduled.
	rig.eng.Close()

	snap := rig.eng.Container().Snapshot()
	require.Len(t, snap, 1)
	assert.False(t, record.IsLocalID(snap[0].ID), "local id settles away")
	amt, _ := snap[0].Amount(record.FieldAmount)
	assert.True(t, amt.Equal(decimal.RequireFromString("-12.50")))
}

func TestUpdate_VersionConflict(t *testing.T) {
	mem := remote.NewMemory()
	mem.Seed(ledgerEntry("a", 1, "-10"))
	rig := newTestRig(t, fetchOnly{mem})
	ctx := context.Background()
	require.NoError(t, rig.eng.LoadCacheFirst(ctx))

	current, ok := rig.eng.Container().Get("a")
	require.True(t, ok)

	first := current.Clone()
	first.SetAmount(record.FieldAmount, decimal.RequireFromString("-11"))
	require.NoError(t, rig.eng.Update(ctx, first))

	// A second writer still holding the old version must be rejected, not
	// silently applied last-write-wins.
	stale := current.Clone()
	stale.SetAmount(record.FieldAmount, decimal.RequireFromString("-99"))
	err := rig.eng.Update(ctx, stale)
	assert.True(t, IsConflict(err), "stale version must conflict, got %v", err)

	got, _ := rig.eng.Container().Get("a")
	amt, _ := got.Amount(record.FieldAmount)
	assert.Equal(t, "-11", amt.String())
}

func TestUpdate_NoRollbackOnRemoteFailure(t *testing.T) {
	mem := remote.NewMemory()
	mem.Seed(ledgerEntry("a", 1, "-10"))
	rig := newTestRig(t, fetchOnly{mem})
	ctx := context.Background()
	require.NoError(t, rig.eng.LoadCacheFirst(ctx))
	rig.eng.Close()

	// Same keystore, remote now down.
	st := cache.New(rig.kv, "ledger", record.ByDay, time.Hour)
	eng := New(Options{
		Family:    "ledger",
		Cache:     st,
		Remote:    failingRemote{},
		Container: rig.eng.Container(),
		Compare:   reconcile.Comparator{Identity: reconcile.ByID, Watched: reconcile.ByField(record.FieldAmount)},
	})
	defer eng.Close()

	current, _ := eng.Container().Get("a")
	updated := current.Clone()
	updated.SetAmount(record.FieldAmount, decimal.RequireFromString("-42"))

	err := eng.Update(ctx, updated)
	assert.True(t, IsRemoteRejected(err))

	// Local copy stays ahead of the remote until retried or reconciled.
	got, _ := eng.Container().Get("a")
	amt, _ := got.Amount(record.FieldAmount)
	assert.Equal(t, "-42", amt.String())
}

func TestUpdate_NotFound(t *testing.T) {
	rig := newTestRig(t, fetchOnly{remote.NewMemory()})

	err := rig.eng.Update(context.Background(), ledgerEntry("ghost", 1, "1"))
	assert.True(t, IsNotFound(err))
}

func TestUpdate_UnsettledRejected(t *testing.T) {
	// A record whose create has not reconciled yet has no remote id to
	// address; updating it must fail fast instead of diverging.
	rig := newTestRig(t, failingRemote{})
	ctx := context.Background()

	created, _ := rig.eng.Create(ctx, ledgerEntry("", 1, "-5"))

	err := rig.eng.Update(ctx, created)
	assert.True(t, IsUnsettled(err))

	err = rig.eng.Delete(ctx, created.ID)
	assert.True(t, IsUnsettled(err))
}

func TestDelete_RemovesLocallyThenRemotely(t *testing.T) {
	mem := remote.NewMemory()
	mem.Seed(ledgerEntry("a", 1, "-10"), ledgerEntry("b", 2, "5"))
	rig := newTestRig(t, fetchOnly{mem})
	ctx := context.Background()
	require.NoError(t, rig.eng.LoadCacheFirst(ctx))

	require.NoError(t, rig.eng.Delete(ctx, "a"))

	_, ok := rig.eng.Container().Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, mem.Len(), "remote delete committed")

	cached, ok := rig.cache.GetAll(ctx)
	require.True(t, ok)
	require.Len(t, cached, 1)
	assert.Equal(t, "b", cached[0].ID)
}

func TestReconcile_UnchangedHasNoSideEffects(t *testing.T) {
	mem := remote.NewMemory()
	mem.Seed(ledgerEntry("a", 1, "-10"))
	rig := newTestRig(t, fetchOnly{mem})
	ctx := context.Background()
	require.NoError(t, rig.eng.LoadCacheFirst(ctx))

	outcome, err := rig.eng.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, reconcile.Unchanged, outcome)
}

func TestReconcile_PicksUpRemoteChange(t *testing.T) {
	mem := remote.NewMemory()
	mem.Seed(ledgerEntry("a", 1, "-10"))
	rig := newTestRig(t, fetchOnly{mem})
	ctx := context.Background()
	require.NoError(t, rig.eng.LoadCacheFirst(ctx))

	// Another device changed the amount.
	require.NoError(t, rig.remote.Update(ctx, "a", ledgerEntry("a", 1, "-20")))

	outcome, err := rig.eng.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, reconcile.Updated, outcome)

	got, _ := rig.eng.Container().Get("a")
	amt, _ := got.Amount(record.FieldAmount)
	assert.Equal(t, "-20", amt.String())
}

func TestResetSession_DiscardsStaleReconciliation(t *testing.T) {
	mem := remote.NewMemory()
	mem.Seed(ledgerEntry("a", 1, "-10"))
	gated := &gatedRemote{Store: mem, gate: make(chan struct{})}
	rig := newTestRig(t, gated)

	rig.eng.ScheduleReconcile()
	rig.eng.ResetSession()
	close(gated.gate)
	rig.eng.Close()

	// The reconciliation from the previous session epoch must not publish.
	assert.Equal(t, 0, rig.eng.Container().Len())
}

func TestLoadCacheFirst_StreamingMiss(t *testing.T) {
	mem := remote.NewMemory()
	mem.Seed(ledgerEntry("a", 1, "-10"))
	rig := newTestRig(t, mem) // memory remote streams
	ctx := context.Background()

	require.NoError(t, rig.eng.LoadCacheFirst(ctx))
	assert.Equal(t, 1, rig.eng.Container().Len(), "first snapshot publishes synchronously")

	// A push-based update arrives without any further fetch.
	_, err := mem.Create(ctx, ledgerEntry("", 2, "7"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return rig.eng.Container().Len() == 2
	}, 2*time.Second, 10*time.Millisecond, "pushed snapshot applies in the background")
}

func TestCreate_RewritesSinglePartition(t *testing.T) {
	// Three cached records in one month; a create in the same month rewrites
	// only that month's envelope, leaving metadata untouched. Fetches are
	// gated so no background reconciliation interferes with the check.
	kv := keystore.NewMemory()
	st := cache.New(kv, "budgets", record.ByMonth, 30*24*time.Hour)
	ctx := context.Background()
	seeded := []record.Record{
		ledgerEntry("a", 1, "100"),
		ledgerEntry("b", 2, "200"),
		ledgerEntry("c", 3, "300"),
	}
	st.Put(ctx, seeded)

	gated := &gatedRemote{Store: remote.NewMemory(), gate: make(chan struct{})}
	eng := New(Options{
		Family:    "budgets",
		Cache:     st,
		Remote:    gated,
		Container: state.NewContainer(),
		Compare:   reconcile.Comparator{Identity: reconcile.ByID, Watched: reconcile.ByField(record.FieldAmount)},
		IDs:       NewFixedGenerator("t1"),
	})
	defer eng.Close()
	require.NoError(t, eng.LoadCacheFirst(ctx))

	before, err := kv.Get(ctx, "cache:budgets:meta")
	require.NoError(t, err)

	_, err = eng.Create(ctx, ledgerEntry("", 15, "400"))
	require.NoError(t, err)

	cached, present := st.GetAll(ctx)
	require.True(t, present)
	assert.Len(t, cached, 4)

	after, err := kv.Get(ctx, "cache:budgets:meta")
	require.NoError(t, err)
	assert.Equal(t, before, after, "metadata untouched when the partition already exists")
}
