// Package store persists batches, photos, registrations, OAuth tokens and the
// processing audit log in SQLite.
//
// Every operation, reads included, goes through the lock-contention
// RetryPolicy: the processing worker and status polling share one database
// file, and a poll that fails outright under transient contention would look
// like an outage to the UI.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/kozaktomas/photo-batcher/internal/config"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyAssigned is returned when a photo already has a registration.
// A photo is attributed exactly once; reassignment is a manual admin action
// that goes through AssignPhoto on an unassigned photo.
var ErrAlreadyAssigned = errors.New("photo already assigned to a registration")

// Store provides access to the SQLite database.
type Store struct {
	db    *sql.DB
	retry RetryPolicy
	log   zerolog.Logger
}

// Open opens (creating if needed) the SQLite database and applies pending
// migrations.
func Open(cfg *config.DatabaseConfig, log zerolog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite handles a single writer; more connections just means more
	// lock contention for the retry policy to absorb.
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db, retry: DefaultRetryPolicy(), log: log}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// DB returns the underlying sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Retry returns the store's retry policy so other components (e.g. the upload
// orchestrator) can reuse the same contention handling for their own work.
func (s *Store) Retry() RetryPolicy {
	return s.retry
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("closing database: %w", err)
		}
	}
	return nil
}

// exec runs a mutating statement through the retry policy.
func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := s.retry.Do(ctx, func() error {
		var err error
		res, err = s.db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("executing statement: %w", err)
	}
	return res, nil
}

// queryRowScan runs a single-row query through the retry policy and scans the
// result. sql.ErrNoRows is mapped to ErrNotFound.
func (s *Store) queryRowScan(ctx context.Context, query string, args []any, dest ...any) error {
	err := s.retry.Do(ctx, func() error {
		return s.db.QueryRowContext(ctx, query, args...).Scan(dest...)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
