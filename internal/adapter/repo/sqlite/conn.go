// Package sqlite implements the domain repositories on a single-file
// SQLite database using the pure-Go modernc driver. Jobs, users and
// contests each get a repo; mutable collections (cases, id lists) travel
// as JSON columns.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// Store owns the database handle shared by the repositories.
type Store struct {
	DB *sql.DB
}

// Open opens the database file, creating it when absent, and applies the
// session pragmas. The open is retried with backoff so a lock held by a
// just-killed predecessor does not abort startup.
func Open(ctx context.Context, path string) (*Store, error) {
	// Pragmas ride the DSN so every pooled connection gets them.
	dsn := "file:" + url.PathEscape(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

	var db *sql.DB
	op := func() error {
		d, err := sql.Open("sqlite", dsn)
		if err != nil {
			return err
		}
		if err := d.PingContext(ctx); err != nil {
			_ = d.Close()
			return err
		}
		db = d
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 15 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("op=sqlite.open: %w", err)
	}

	// A single connection sidesteps writer lock contention; the workload
	// is a handful of judge workers plus light polling.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(time.Hour)
	return &Store{DB: db}, nil
}

// Close releases the handle.
func (s *Store) Close() error { return s.DB.Close() }

// Ping reports store health for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// RemoveDatabase deletes the database file and its WAL siblings. Backs the
// --flush-data flag; runs before Open.
func RemoveDatabase(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("op=sqlite.flush: %w", err)
		}
	}
	return nil
}
