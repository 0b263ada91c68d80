// Package store provides a durable, append-only backing for the in-memory
// audit.Journal, matching the layout SPEC_FULL.md §3 calls out: a sqlx/lib-pq
// implementation attached to the Journal through Store.Sink and
// Journal.AttachStore (it does not implement audit.Sink), never required at
// runtime (the in-memory chain stays authoritative per spec §9), exercised
// here purely so the wiring exists and is tested. Adapted from the
// teacher's internal/infrastructure/db (Config/Manager shape) and
// internal/persistence/postgres (sqlx insert pattern).
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/sawpanic/goldrouter/internal/audit"
)

// Config mirrors the teacher's db.Config: disabled by default, requires an
// explicit DSN to enable.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
	Enabled         bool
}

func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    5 * time.Second,
		Enabled:         false,
	}
}

// Store appends audit.Record rows to a length-prefixed-equivalent
// append-only table: canonical bytes are never reconstructed here, only
// the already-hashed Record fields are persisted (spec §6 "audit records
// as a length-prefixed append-only file whose canonical record bytes are
// exactly those hashed").
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects using cfg.DSN. Enabled=false is not an error: callers get a
// nil *Store and should not call Sink.
func Open(cfg Config) (*Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("audit store: DSN is required when enabled")
	}
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("audit store: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &Store{db: db, timeout: cfg.QueryTimeout}, nil
}

// OpenWithDB wraps an already-open *sqlx.DB, used by tests to inject a
// sqlmock connection without going through Open's DSN validation.
func OpenWithDB(db *sqlx.DB, timeout time.Duration) *Store {
	return &Store{db: db, timeout: timeout}
}

const insertRecordSQL = `
	INSERT INTO audit_records (seq, kind, ts, venue_id, subject, details, prev_hash, record_hash)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// Append persists one record. It is wired as a audit.Journal external sink
// via Store.Sink, so the Journal's own Seq/PrevHash computation remains the
// single source of truth (spec §4.4); this function never recomputes a
// hash, only stores what it is given.
func (s *Store) Append(ctx context.Context, rec audit.Record) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	detailsJSON, err := json.Marshal(rec.Details)
	if err != nil {
		return fmt.Errorf("audit store: marshal details: %w", err)
	}

	_, err = s.db.ExecContext(ctx, insertRecordSQL,
		rec.Seq, rec.Kind, rec.Timestamp, rec.VenueID, rec.Subject,
		detailsJSON, rec.PrevHash, rec.RecordHash)
	if err != nil {
		return fmt.Errorf("audit store: insert: %w", err)
	}
	return nil
}

// Sink adapts Append to the func(audit.Record) error shape
// audit.Journal.AttachStore expects.
func (s *Store) Sink(ctx context.Context) func(audit.Record) error {
	return func(rec audit.Record) error {
		return s.Append(ctx, rec)
	}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
