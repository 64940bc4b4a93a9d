package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/cache"
	"tally/internal/record"
)

// Aggregate is the dashboard summary cached alongside a collection: a
// pre-reduced count and signed sums, maintained incrementally so the
// dashboard never pays for a full recomputation on a mutation.
type Aggregate struct {
	Count      int64           `json:"count"`
	Income     decimal.Decimal `json:"income"`
	Expense    decimal.Decimal `json:"expense"`
	CapturedAt time.Time       `json:"captured_at"`
}

// Net returns income minus expense.
func (a Aggregate) Net() decimal.Decimal {
	return a.Income.Sub(a.Expense)
}

// Tracker maintains a family's Aggregate.
//
// Mutations apply deltas (+amount on create, old vs new on update, -amount on
// delete); only a reconciliation that replaced published state rebuilds from
// the authoritative list. An incremental update that drifts from the true
// sums is a correctness bug, so every apply persists through the cache store
// in the same operation.
//
// Thread-safety: all methods are safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	cache *cache.Store
	field string
	now   func() time.Time
	log   *slog.Logger
	agg   Aggregate
}

// NewTracker creates a tracker persisting through st and reading the named
// amount field.
func NewTracker(st *cache.Store, field string) *Tracker {
	return &Tracker{
		cache: st,
		field: field,
		now:   time.Now,
		log:   slog.Default(),
	}
}

// SetClock overrides the wall clock. Used by tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Snapshot returns the current aggregate.
func (t *Tracker) Snapshot() Aggregate {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.agg
}

// Load restores the aggregate from the cache. Returns false when nothing
// usable is stored; the caller should Rebuild from the current collection.
func (t *Tracker) Load(ctx context.Context) bool {
	data, ok := t.cache.GetAggregate(ctx)
	if !ok {
		return false
	}
	var agg Aggregate
	if err := json.Unmarshal(data, &agg); err != nil {
		t.log.Warn("aggregate: corrupt snapshot ignored", "family", t.cache.Family(), "error", err)
		return false
	}
	t.mu.Lock()
	t.agg = agg
	t.mu.Unlock()
	return true
}

// Rebuild recomputes the aggregate from a full collection and persists it.
// Used when priming the cache and after a reconciliation replaced state.
func (t *Tracker) Rebuild(ctx context.Context, items []record.Record) {
	t.mu.Lock()
	agg := Aggregate{Income: decimal.Zero, Expense: decimal.Zero}
	for _, r := range items {
		agg.Count++
		addAmount(&agg, t.amount(r))
	}
	agg.CapturedAt = t.now()
	t.agg = agg
	t.mu.Unlock()
	t.persist(ctx)
}

// ApplyCreate folds a created record into the aggregate.
func (t *Tracker) ApplyCreate(ctx context.Context, rec record.Record) {
	t.mu.Lock()
	t.agg.Count++
	addAmount(&t.agg, t.amount(rec))
	t.agg.CapturedAt = t.now()
	t.mu.Unlock()
	t.persist(ctx)
}

// ApplyUpdate folds a field change into the aggregate using the old and new
// copies of the record.
func (t *Tracker) ApplyUpdate(ctx context.Context, old, updated record.Record) {
	t.mu.Lock()
	subAmount(&t.agg, t.amount(old))
	addAmount(&t.agg, t.amount(updated))
	t.agg.CapturedAt = t.now()
	t.mu.Unlock()
	t.persist(ctx)
}

// ApplyDelete removes a record's contribution from the aggregate.
func (t *Tracker) ApplyDelete(ctx context.Context, rec record.Record) {
	t.mu.Lock()
	t.agg.Count--
	subAmount(&t.agg, t.amount(rec))
	t.agg.CapturedAt = t.now()
	t.mu.Unlock()
	t.persist(ctx)
}

func (t *Tracker) amount(r record.Record) decimal.Decimal {
	d, _ := r.Amount(t.field)
	return d
}

func (t *Tracker) persist(ctx context.Context) {
	t.mu.Lock()
	data, err := json.Marshal(t.agg)
	t.mu.Unlock()
	if err != nil {
		t.log.Error("aggregate: encode failed", "family", t.cache.Family(), "error", err)
		return
	}
	t.cache.PutAggregate(ctx, data)
}

// addAmount folds a signed amount into the income/expense split.
func addAmount(agg *Aggregate, d decimal.Decimal) {
	if d.IsNegative() {
		agg.Expense = agg.Expense.Add(d.Abs())
	} else {
		agg.Income = agg.Income.Add(d)
	}
}

// subAmount reverses addAmount for the same value.
func subAmount(agg *Aggregate, d decimal.Decimal) {
	if d.IsNegative() {
		agg.Expense = agg.Expense.Sub(d.Abs())
	} else {
		agg.Income = agg.Income.Sub(d)
	}
}
