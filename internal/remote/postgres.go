package remote

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"tally/internal/record"
)

const pgDriver = "pgx"

// One row per record, partitioned logically by entity family. Fields travel
// as JSONB; version is the remote's authoritative monotonic counter.
const pgSchema = `
CREATE TABLE IF NOT EXISTS records (
	family  TEXT NOT NULL,
	id      TEXT NOT NULL,
	fields  JSONB NOT NULL,
	ts      TIMESTAMPTZ NOT NULL,
	version BIGINT NOT NULL DEFAULT 1,
	PRIMARY KEY (family, id)
);
CREATE INDEX IF NOT EXISTS idx_records_family_ts ON records (family, ts);
`

// Postgres is the Postgres-backed authoritative store for one entity family.
type Postgres struct {
	db     *sql.DB
	family string
}

var _ Store = (*Postgres)(nil)

// OpenPostgres connects to dsn, applies the schema, and returns a store
// scoped to family. Several families can share one *sql.DB via WithDB.
func OpenPostgres(dsn, family string) (*Postgres, error) {
	db, err := sql.Open(pgDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, pgSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Postgres{db: db, family: family}, nil
}

// WithDB returns a store scoped to family on an already-open connection.
// The schema is assumed applied; Close on the returned store is a no-op
// for shared connections only when the caller retains ownership.
func WithDB(db *sql.DB, family string) *Postgres {
	return &Postgres{db: db, family: family}
}

// Close closes the underlying connection.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// FetchAll returns the family's records passing the filter, ordered by
// timestamp then id.
func (p *Postgres) FetchAll(ctx context.Context, f Filter) ([]record.Record, error) {
	query := `SELECT id, fields, ts, version FROM records WHERE family = $1`
	args := []any{p.family}
	if !f.From.IsZero() {
		query += ` AND ts >= $2`
		args = append(args, f.From)
	}
	query += ` ORDER BY ts, id`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", p.family, err)
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		var (
			r      record.Record
			fields []byte
			ts     time.Time
		)
		if err := rows.Scan(&r.ID, &fields, &ts, &r.Version); err != nil {
			return nil, fmt.Errorf("fetch %s: scan: %w", p.family, err)
		}
		r.Timestamp = ts.UTC()
		dec := json.NewDecoder(bytes.NewReader(fields))
		dec.UseNumber()
		if err := dec.Decode(&r.Fields); err != nil {
			return nil, fmt.Errorf("fetch %s: decode fields for %s: %w", p.family, r.ID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", p.family, err)
	}
	return out, nil
}

// Create assigns a UUIDv7 id and inserts the record.
func (p *Postgres) Create(ctx context.Context, r record.Record) (string, error) {
	fields, err := json.Marshal(r.Fields)
	if err != nil {
		return "", fmt.Errorf("create %s: encode fields: %w", p.family, err)
	}
	id := uuid.Must(uuid.NewV7()).String()
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO records (family, id, fields, ts, version)
		VALUES ($1, $2, $3, $4, 1)
	`, p.family, id, fields, r.Timestamp.UTC())
	if err != nil {
		return "", fmt.Errorf("create %s: %w", p.family, err)
	}
	return id, nil
}

// Update replaces the record with id and advances its version.
func (p *Postgres) Update(ctx context.Context, id string, r record.Record) error {
	fields, err := json.Marshal(r.Fields)
	if err != nil {
		return fmt.Errorf("update %s/%s: encode fields: %w", p.family, id, err)
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE records
		SET fields = $3, ts = $4, version = version + 1
		WHERE family = $1 AND id = $2
	`, p.family, id, fields, r.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", p.family, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", p.family, id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the record with id.
func (p *Postgres) Delete(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM records WHERE family = $1 AND id = $2
	`, p.family, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", p.family, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", p.family, id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
