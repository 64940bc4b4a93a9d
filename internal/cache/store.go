package cache

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"tally/internal/keystore"
	"tally/internal/record"
)

// Store is the partitioned cache store for one entity family.
//
// The store is the sole writer of its family's key namespace. TTL is a
// per-family configuration: short for high-change-rate data, long for
// low-change-rate data that is expensive to refetch.
type Store struct {
	kv        keystore.KV
	family    string
	partition record.PartitionFunc
	ttl       time.Duration
	now       func() time.Time
	log       *slog.Logger
}

// Option configures optional Store behavior.
type Option func(*Store)

// WithClock overrides the wall clock. Used by TTL tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New creates a cache store for family, grouping records with partition and
// expiring envelopes after ttl.
func New(kv keystore.KV, family string, partition record.PartitionFunc, ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		kv:        kv,
		family:    family,
		partition: partition,
		ttl:       ttl,
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Family returns the entity family name the store serves.
func (s *Store) Family() string {
	return s.family
}

func (s *Store) metaKey() string      { return "cache:" + s.family + ":meta" }
func (s *Store) partKey(pk string) string { return "cache:" + s.family + ":part:" + pk }
func (s *Store) aggregateKey() string { return "cache:" + s.family + ":aggregate" }

// Put replaces the cached collection with items.
//
// Items are grouped by partition key and one envelope is written per distinct
// partition, so storage writes are proportional to partitions touched, not to
// item count. Envelopes for partitions no longer present in items are removed
// so the metadata rewrite leaves nothing dangling.
//
// Storage failures are logged and dropped; a partition whose envelope write
// failed is excluded from the metadata set.
func (s *Store) Put(ctx context.Context, items []record.Record) {
	groups := make(map[string][]record.Record)
	for _, r := range items {
		pk := s.partition(r)
		groups[pk] = append(groups[pk], r)
	}

	now := s.now()
	written := make([]string, 0, len(groups))
	for pk, group := range groups {
		env := Envelope{PartitionKey: pk, Items: group, CapturedAt: now}
		data, err := encodeEnvelope(env)
		if err != nil {
			s.log.Error("cache put: encode failed", "family", s.family, "partition", pk, "error", err)
			continue
		}
		if err := s.kv.Set(ctx, s.partKey(pk), data); err != nil {
			s.log.Warn("cache put: write dropped", "family", s.family, "partition", pk, "error", err)
			continue
		}
		written = append(written, pk)
	}
	sort.Strings(written)

	// Drop envelopes that the new collection no longer covers.
	if old, ok := s.readMetadata(ctx); ok {
		for _, pk := range old.Keys {
			if _, still := groups[pk]; !still {
				s.deletePartition(ctx, pk)
			}
		}
	}

	s.writeMetadata(ctx, written, now)
}

// GetAll returns the cached collection and whether any partition survived.
//
// Envelopes past their TTL, unreadable, or corrupt are pruned and excluded;
// the metadata set is rewritten to the surviving keys in the same call. The
// second return value is false only when zero partitions survive - an empty
// item list with a live partition is a valid, fresh state and returns
// (empty, true).
func (s *Store) GetAll(ctx context.Context) ([]record.Record, bool) {
	meta, ok := s.readMetadata(ctx)
	if !ok {
		return nil, false
	}

	now := s.now()
	surviving := make([]string, 0, len(meta.Keys))
	items := make([]record.Record, 0)
	for _, pk := range meta.Keys {
		data, err := s.kv.Get(ctx, s.partKey(pk))
		if err != nil {
			if !errors.Is(err, keystore.ErrNotFound) {
				s.log.Warn("cache read: treating partition as miss", "family", s.family, "partition", pk, "error", err)
				s.deletePartition(ctx, pk)
			}
			continue
		}
		env, err := decodeEnvelope(data)
		if err != nil {
			s.log.Warn("cache read: corrupt envelope pruned", "family", s.family, "partition", pk, "error", err)
			s.deletePartition(ctx, pk)
			continue
		}
		if now.Sub(env.CapturedAt) > s.ttl {
			s.log.Debug("cache read: partition expired", "family", s.family, "partition", pk, "captured_at", env.CapturedAt)
			s.deletePartition(ctx, pk)
			continue
		}
		surviving = append(surviving, pk)
		items = append(items, env.Items...)
	}

	if len(surviving) != len(meta.Keys) {
		if len(surviving) == 0 {
			if err := s.kv.Delete(ctx, s.metaKey()); err != nil {
				s.log.Warn("cache read: metadata delete dropped", "family", s.family, "error", err)
			}
		} else {
			s.writeMetadata(ctx, surviving, now)
		}
	}

	if len(surviving) == 0 {
		return nil, false
	}
	return items, true
}

// UpsertOne inserts or replaces a single record inside its owning partition,
// rewriting just that envelope. The partition key is recomputed from the
// record's fields. A missing envelope is created, and the metadata set gains
// the key in the same operation.
func (s *Store) UpsertOne(ctx context.Context, rec record.Record) {
	pk := s.partition(rec)
	now := s.now()

	env, ok := s.readEnvelope(ctx, pk)
	if !ok {
		env = Envelope{PartitionKey: pk}
	}

	replaced := false
	for i := range env.Items {
		if env.Items[i].ID == rec.ID {
			env.Items[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		env.Items = append(env.Items, rec)
	}
	env.CapturedAt = now

	if !s.writeEnvelope(ctx, env) {
		return
	}

	meta, _ := s.readMetadata(ctx)
	for _, k := range meta.Keys {
		if k == pk {
			return
		}
	}
	s.writeMetadata(ctx, append(meta.Keys, pk), now)
}

// DeleteOne removes a single record from its owning partition, rewriting just
// that envelope. The envelope stays live even when emptied: an empty cached
// partition after a real deletion is fresh state, not a miss.
func (s *Store) DeleteOne(ctx context.Context, rec record.Record) {
	pk := s.partition(rec)

	env, ok := s.readEnvelope(ctx, pk)
	if !ok {
		return
	}

	kept := env.Items[:0]
	for _, it := range env.Items {
		if it.ID != rec.ID {
			kept = append(kept, it)
		}
	}
	if len(kept) == len(env.Items) {
		return
	}
	env.Items = kept
	env.CapturedAt = s.now()
	s.writeEnvelope(ctx, env)
}

// Invalidate deletes every known envelope, the metadata record, and the
// cached aggregate.
func (s *Store) Invalidate(ctx context.Context) {
	if meta, ok := s.readMetadata(ctx); ok {
		for _, pk := range meta.Keys {
			s.deletePartition(ctx, pk)
		}
	}
	if err := s.kv.Delete(ctx, s.metaKey()); err != nil {
		s.log.Warn("cache invalidate: metadata delete dropped", "family", s.family, "error", err)
	}
	if err := s.kv.Delete(ctx, s.aggregateKey()); err != nil {
		s.log.Warn("cache invalidate: aggregate delete dropped", "family", s.family, "error", err)
	}
}

// PutAggregate stores the family's pre-reduced aggregate blob. The cache
// store owns the family key namespace, so aggregate persistence goes through
// it rather than through the key-value store directly.
func (s *Store) PutAggregate(ctx context.Context, data []byte) {
	if err := s.kv.Set(ctx, s.aggregateKey(), data); err != nil {
		s.log.Warn("cache aggregate: write dropped", "family", s.family, "error", err)
	}
}

// GetAggregate returns the stored aggregate blob, or absent on any failure.
func (s *Store) GetAggregate(ctx context.Context) ([]byte, bool) {
	data, err := s.kv.Get(ctx, s.aggregateKey())
	if err != nil {
		if !errors.Is(err, keystore.ErrNotFound) {
			s.log.Warn("cache aggregate: treating as miss", "family", s.family, "error", err)
		}
		return nil, false
	}
	return data, true
}

func (s *Store) readEnvelope(ctx context.Context, pk string) (Envelope, bool) {
	data, err := s.kv.Get(ctx, s.partKey(pk))
	if err != nil {
		if !errors.Is(err, keystore.ErrNotFound) {
			s.log.Warn("cache read: envelope treated as miss", "family", s.family, "partition", pk, "error", err)
		}
		return Envelope{}, false
	}
	env, err := decodeEnvelope(data)
	if err != nil {
		s.log.Warn("cache read: corrupt envelope treated as miss", "family", s.family, "partition", pk, "error", err)
		return Envelope{}, false
	}
	return env, true
}

func (s *Store) writeEnvelope(ctx context.Context, env Envelope) bool {
	data, err := encodeEnvelope(env)
	if err != nil {
		s.log.Error("cache write: encode failed", "family", s.family, "partition", env.PartitionKey, "error", err)
		return false
	}
	if err := s.kv.Set(ctx, s.partKey(env.PartitionKey), data); err != nil {
		s.log.Warn("cache write: dropped", "family", s.family, "partition", env.PartitionKey, "error", err)
		return false
	}
	return true
}

func (s *Store) readMetadata(ctx context.Context) (metadata, bool) {
	data, err := s.kv.Get(ctx, s.metaKey())
	if err != nil {
		if !errors.Is(err, keystore.ErrNotFound) {
			s.log.Warn("cache read: metadata treated as miss", "family", s.family, "error", err)
		}
		return metadata{}, false
	}
	meta, err := decodeMetadata(data)
	if err != nil {
		s.log.Warn("cache read: corrupt metadata treated as miss", "family", s.family, "error", err)
		return metadata{}, false
	}
	return meta, true
}

func (s *Store) writeMetadata(ctx context.Context, keys []string, now time.Time) {
	sort.Strings(keys)
	data, err := encodeMetadata(metadata{Family: s.family, Keys: keys, UpdatedAt: now})
	if err != nil {
		s.log.Error("cache write: metadata encode failed", "family", s.family, "error", err)
		return
	}
	if err := s.kv.Set(ctx, s.metaKey(), data); err != nil {
		s.log.Warn("cache write: metadata dropped", "family", s.family, "error", err)
	}
}

func (s *Store) deletePartition(ctx context.Context, pk string) {
	if err := s.kv.Delete(ctx, s.partKey(pk)); err != nil {
		s.log.Warn("cache prune: envelope delete dropped", "family", s.family, "partition", pk, "error", err)
	}
}
