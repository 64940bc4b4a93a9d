// Package family wires the four entity families of the tracker: ledger
// entries, budgets, goals, and notifications. Each family gets its own cache
// partitioning, TTL, change comparator, and engine; the Set is the
// composition root the CLI builds once per run.
package family

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"tally/internal/cache"
	"tally/internal/dedupe"
	"tally/internal/engine"
	"tally/internal/keystore"
	"tally/internal/metrics"
	"tally/internal/reconcile"
	"tally/internal/record"
	"tally/internal/remote"
	"tally/internal/state"
)

// Entity family names. Also the cache key namespace per family.
const (
	Ledger        = "ledger"
	Budgets       = "budgets"
	Goals         = "goals"
	Notifications = "notifications"
)

// Definition describes how one family is cached and reconciled.
type Definition struct {
	Name      string
	Partition record.PartitionFunc
	TTL       time.Duration

	// Watched extracts the field the cheap change check compares besides
	// record identity.
	Watched func(record.Record) string

	// Aggregated families maintain the dashboard aggregate.
	Aggregated bool
}

// Default TTLs, overridable per family through SetOptions.TTLs.
const (
	defaultLedgerTTL        = 6 * time.Hour
	defaultBudgetsTTL       = 24 * time.Hour
	defaultGoalsTTL         = 24 * time.Hour
	defaultNotificationsTTL = 30 * time.Minute
)

// Definitions returns the four families with ttls overriding the defaults.
func Definitions(ttls map[string]time.Duration) []Definition {
	ttl := func(name string, def time.Duration) time.Duration {
		if v, ok := ttls[name]; ok && v > 0 {
			return v
		}
		return def
	}
	return []Definition{
		{
			Name:       Ledger,
			Partition:  record.ByDay,
			TTL:        ttl(Ledger, defaultLedgerTTL),
			Watched:    reconcile.ByField(record.FieldAmount),
			Aggregated: true,
		},
		{
			Name:      Budgets,
			Partition: record.ByMonth,
			TTL:       ttl(Budgets, defaultBudgetsTTL),
			Watched:   reconcile.ByField(record.FieldLimit),
		},
		{
			Name:      Goals,
			Partition: record.Single("all"),
			TTL:       ttl(Goals, defaultGoalsTTL),
			Watched:   reconcile.ByField(record.FieldTarget),
		},
		{
			Name:      Notifications,
			Partition: record.Single("all"),
			TTL:       ttl(Notifications, defaultNotificationsTTL),
			Watched:   reconcile.ByFlagField(record.FieldRead),
		},
	}
}

// SetOptions configures a family Set. KV and NewRemote are required.
type SetOptions struct {
	KV keystore.KV

	// NewRemote builds the authoritative store for one family.
	NewRemote func(family string) (remote.Store, error)

	// TTLs overrides per-family cache TTLs; missing entries use defaults.
	TTLs map[string]time.Duration

	// FetchWindow bounds authoritative reads for the ledger family, which
	// is the only unbounded-growth collection. Zero fetches everything.
	FetchWindow time.Duration

	IDs     engine.IDGenerator
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Set holds one engine per entity family plus the alert subsystem.
type Set struct {
	engines map[string]*engine.Engine
	order   []string
	closers []io.Closer
	guard   *dedupe.SessionGuard

	// Alerts derives budget notifications; ready after NewSet.
	Alerts *Alerts
}

// NewSet builds the engines for all four families over one keystore.
func NewSet(opts SetOptions) (*Set, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Set{
		engines: make(map[string]*engine.Engine),
		guard:   dedupe.NewSessionGuard(),
	}
	for _, def := range Definitions(opts.TTLs) {
		rem, err := opts.NewRemote(def.Name)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("family %s: %w", def.Name, err)
		}
		if c, ok := rem.(io.Closer); ok {
			s.closers = append(s.closers, c)
		}

		st := cache.New(opts.KV, def.Name, def.Partition, def.TTL, cache.WithLogger(opts.Logger))
		eopts := engine.Options{
			Family:    def.Name,
			Cache:     st,
			Remote:    rem,
			Container: state.NewContainer(),
			Compare:   reconcile.Comparator{Identity: reconcile.ByID, Watched: def.Watched},
			IDs:       opts.IDs,
			Logger:    opts.Logger,
			Metrics:   opts.Metrics,
		}
		if def.Aggregated {
			eopts.Aggregate = engine.NewTracker(st, record.FieldAmount)
		}
		if def.Name == Ledger {
			eopts.FetchWindow = opts.FetchWindow
		}
		s.engines[def.Name] = engine.New(eopts)
		s.order = append(s.order, def.Name)
	}

	s.Alerts = NewAlerts(AlertOptions{
		Ledger:        s.engines[Ledger],
		Budgets:       s.engines[Budgets],
		Notifications: s.engines[Notifications],
		Guard:         s.guard,
		Logger:        opts.Logger,
	})
	return s, nil
}

// Engine returns the engine for one family, or nil for an unknown name.
func (s *Set) Engine(name string) *engine.Engine { return s.engines[name] }

func (s *Set) Ledger() *engine.Engine        { return s.engines[Ledger] }
func (s *Set) Budgets() *engine.Engine       { return s.engines[Budgets] }
func (s *Set) Goals() *engine.Engine         { return s.engines[Goals] }
func (s *Set) Notifications() *engine.Engine { return s.engines[Notifications] }

// LoadAll activates every family cache-first. Families load independently;
// one failing does not stop the others.
func (s *Set) LoadAll(ctx context.Context) error {
	var errs []error
	for _, name := range s.order {
		if err := s.engines[name].LoadCacheFirst(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ResetSession starts a new session epoch across all families and clears the
// alert dedup state. Call on user change or explicit refresh.
func (s *Set) ResetSession() {
	for _, eng := range s.engines {
		eng.ResetSession()
	}
	s.guard.Reset()
}

// Close drains background work and closes any closeable remotes.
func (s *Set) Close() {
	for _, eng := range s.engines {
		eng.Close()
	}
	for _, c := range s.closers {
		_ = c.Close()
	}
}
