// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists researchers, publications, collaboration edges,
// opportunities and embedding jobs in SQLite. The matching core reads
// entities and edges through it and owns the opportunity and job tables.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mattn/go-sqlite3"

	"github.com/pdiddy/collabmatch/pkg/types"
)

// RetryInitialInterval is the first delay between retries of a busy store
// call. Tests override this to avoid real sleeps.
var RetryInitialInterval = 50 * time.Millisecond

// RetryMaxInterval caps the delay between retries.
var RetryMaxInterval = 2 * time.Second

// Store manages the collabmatch SQLite database.
type Store struct {
	db      *sql.DB
	retries int
}

// Open opens or creates the database at cfg.Path and creates the schema if
// it does not exist.
func Open(cfg types.StoreConfig) (*Store, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite allows one writer; a single connection serialises access and
	// keeps in-memory databases shared.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, retries: cfg.Retries}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle so the vector store can share it.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS researchers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			department TEXT NOT NULL DEFAULT '',
			interests TEXT NOT NULL DEFAULT '[]',
			sdg_tags TEXT NOT NULL DEFAULT '[]',
			scholar_id TEXT NOT NULL DEFAULT '',
			h_index INTEGER NOT NULL DEFAULT 0,
			citations INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS publications (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			abstract TEXT NOT NULL DEFAULT '',
			date INTEGER NOT NULL DEFAULT 0,
			department TEXT NOT NULL DEFAULT '',
			sdg_tags TEXT NOT NULL DEFAULT '[]',
			sdg_auto INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS authorships (
			publication_id TEXT NOT NULL,
			researcher_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (publication_id, researcher_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_authorships_researcher ON authorships(researcher_id)`,
		`CREATE TABLE IF NOT EXISTS collaboration_edges (
			researcher_a TEXT NOT NULL,
			researcher_b TEXT NOT NULL,
			strength INTEGER NOT NULL,
			last_collaborated INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (researcher_a, researcher_b),
			CHECK (researcher_a < researcher_b)
		)`,
		`CREATE TABLE IF NOT EXISTS opportunities (
			id TEXT PRIMARY KEY,
			researcher_a TEXT NOT NULL,
			researcher_b TEXT NOT NULL,
			topic TEXT NOT NULL,
			match_score REAL NOT NULL,
			reason TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			dismissed_at INTEGER NOT NULL DEFAULT 0,
			UNIQUE (researcher_a, researcher_b),
			CHECK (researcher_a < researcher_b),
			CHECK (match_score >= 0 AND match_score <= 100)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_opportunities_status ON opportunities(status, match_score)`,
		`CREATE TABLE IF NOT EXISTS embedding_jobs (
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			state TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			not_before INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (entity_type, entity_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_embedding_jobs_state ON embedding_jobs(state)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// do runs op, retrying busy or locked database errors with exponential
// backoff up to the configured number of retries. Other errors return
// immediately.
func do[T any](ctx context.Context, s *Store, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(s.retries)+1))
}

// exec is do for operations without a result.
func exec(ctx context.Context, s *Store, op func() error) error {
	_, err := do(ctx, s, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// IsTransient reports whether err is a busy or locked database error worth
// retrying.
func IsTransient(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// nanos converts t to the stored integer form; the zero time is 0.
func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// fromNanos is the inverse of nanos.
func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
