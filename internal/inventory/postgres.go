// Package inventory provides the persistent asset store backing the import
// pipeline. Two implementations exist: PostgresStore for production and
// MemoryStore for tests and single-binary evaluation.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fleetops/assetpipe/internal/core"
)

// DBPool is the subset of pgxpool.Pool the store needs. Narrowed to an
// interface so tests can substitute a fake.
type DBPool interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PostgresStore implements core.InventoryStore on top of PostgreSQL.
// Field maps are stored as jsonb so source formats can add attributes
// without schema migrations.
type PostgresStore struct {
	pool DBPool
}

// NewPostgresStore creates a store over an existing connection pool.
func NewPostgresStore(pool DBPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the assets and import_sessions tables if absent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS assets (
    id            UUID PRIMARY KEY,
    asset_tag     TEXT,
    serial_number TEXT UNIQUE,
    fields        JSONB NOT NULL DEFAULT '{}',
    extended      JSONB NOT NULL DEFAULT '{}',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_assets_serial ON assets (serial_number);

CREATE TABLE IF NOT EXISTS import_sessions (
    session_id  TEXT PRIMARY KEY,
    source_id   TEXT,
    state       TEXT NOT NULL,
    total       INT NOT NULL,
    successful  INT NOT NULL,
    failed      INT NOT NULL,
    skipped     INT NOT NULL,
    detail      JSONB NOT NULL DEFAULT '{}',
    finished_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Create inserts a new asset and returns its generated ID.
func (s *PostgresStore) Create(ctx context.Context, rec core.AssetRecord) (string, error) {
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}

	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	extended, err := json.Marshal(rec.Extended)
	if err != nil {
		return "", fmt.Errorf("marshal extended: %w", err)
	}

	const query = `
		INSERT INTO assets (id, asset_tag, serial_number, fields, extended)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)`
	if _, err := s.pool.Exec(ctx, query, id, rec.AssetTag, rec.SerialNumber, fields, extended); err != nil {
		return "", fmt.Errorf("insert asset: %w", err)
	}
	return id, nil
}

// Update replaces an existing asset's fields in place.
func (s *PostgresStore) Update(ctx context.Context, id string, rec core.AssetRecord) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	extended, err := json.Marshal(rec.Extended)
	if err != nil {
		return fmt.Errorf("marshal extended: %w", err)
	}

	const query = `
		UPDATE assets
		SET asset_tag = $2, serial_number = NULLIF($3, ''), fields = $4,
		    extended = $5, updated_at = now()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, rec.AssetTag, rec.SerialNumber, fields, extended)
	if err != nil {
		return fmt.Errorf("update asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("asset %s not found", id)
	}
	return nil
}

// FindBySerial returns the asset holding a serial number, or nil when none
// does. Lookups are exact-match.
func (s *PostgresStore) FindBySerial(ctx context.Context, serial string) (*core.AssetRecord, error) {
	const query = `
		SELECT id, COALESCE(asset_tag, ''), COALESCE(serial_number, ''), fields, extended
		FROM assets WHERE serial_number = $1`

	var rec core.AssetRecord
	var fields, extended []byte
	err := s.pool.QueryRow(ctx, query, serial).Scan(
		&rec.ID, &rec.AssetTag, &rec.SerialNumber, &fields, &extended)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by serial: %w", err)
	}

	if err := json.Unmarshal(fields, &rec.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	if err := json.Unmarshal(extended, &rec.Extended); err != nil {
		return nil, fmt.Errorf("unmarshal extended: %w", err)
	}
	return &rec, nil
}

// sessionDetail is the audit payload stored per finished import.
type sessionDetail struct {
	Created      []string           `json:"created,omitempty"`
	Errors       []core.RowError    `json:"errors,omitempty"`
	SkippedItems []core.SkippedItem `json:"skippedItems,omitempty"`
	Stats        core.ImportStats   `json:"statistics"`
	FinishedAt   time.Time          `json:"finishedAt"`
}

// RecordSession writes one audit row for a finished import. Failures are
// surfaced to the caller but must never fail the import itself.
func (s *PostgresStore) RecordSession(ctx context.Context, sourceID string, sess core.ImportSession) error {
	detail, err := json.Marshal(sessionDetail{
		Created:      sess.Created,
		Errors:       sess.Errors,
		SkippedItems: sess.SkippedItems,
		Stats:        sess.Stats,
		FinishedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal session detail: %w", err)
	}

	const query = `
		INSERT INTO import_sessions (session_id, source_id, state, total, successful, failed, skipped, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id) DO UPDATE
		SET state = EXCLUDED.state, total = EXCLUDED.total,
		    successful = EXCLUDED.successful, failed = EXCLUDED.failed,
		    skipped = EXCLUDED.skipped, detail = EXCLUDED.detail,
		    finished_at = now()`
	_, err = s.pool.Exec(ctx, query,
		sess.SessionID, sourceID, string(sess.State),
		sess.Total, sess.Successful, sess.Failed, sess.Skipped, detail)
	if err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}
