// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

// Package database is the typed data-access layer over the service's
// SQLite tables.
//
// Every operation uses bound parameters. Referential integrity is enabled
// per connection via the foreign_keys pragma in the DSN, which the driver
// applies to each new session. Single-use semantics (auth codes, OAuth
// states, reset tokens) are enforced with single-statement
// DELETE/UPDATE ... RETURNING so that two concurrent consumers cannot
// both observe a row.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/pressly/goose/v3"
	goosedb "github.com/pressly/goose/v3/database"
	sqlite3 "modernc.org/sqlite" // also registers the "sqlite" database/sql driver
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store errors. Handlers map these onto the user-visible error codes.
var (
	// ErrNotFound indicates the requested row does not exist (or, for
	// consume operations, was already consumed).
	ErrNotFound = errors.New("database: not found")

	// ErrEmailExists indicates a unique-email conflict on user creation.
	ErrEmailExists = errors.New("database: email already registered")

	// ErrDuplicate indicates a uniqueness-constraint conflict.
	ErrDuplicate = errors.New("database: duplicate row")

	// ErrAlreadyRevoked indicates a conditional refresh-token update
	// found the row revoked (or missing).
	ErrAlreadyRevoked = errors.New("database: refresh token already revoked")
)

// timeFormat is the stored form of audit timestamps.
const timeFormat = time.RFC3339Nano

// DB wraps the SQLite connection pool.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path, enables
// per-connection referential integrity, and applies pending migrations.
// Use ":memory:" for an ephemeral database in tests.
func Open(ctx context.Context, path string) (*DB, error) {
	dsn := "file:" + path + "?" + url.Values{
		"_pragma": []string{"foreign_keys(1)", "busy_timeout(5000)", "journal_mode(WAL)"},
	}.Encode()
	if path == ":memory:" {
		// In-memory databases exist per connection; a shared cache keeps
		// one logical database behind the pool.
		dsn = "file:memdb?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// SQLite permits one writer; serializing through a single connection
	// avoids SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

// runMigrations applies all pending migrations with goose.
func runMigrations(ctx context.Context, db *sql.DB) error {
	migrationFS, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration sub filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goosedb.DialectSQLite3, db, migrationFS)
	if err != nil {
		return fmt.Errorf("creating goose provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// Ping probes connectivity for the health endpoint.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// isUniqueViolation checks for a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite3.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE ||
			code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// rollback rolls back tx, ignoring errors (tx may already be committed).
func rollback(tx *sql.Tx) { _ = tx.Rollback() }

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface{ Scan(dest ...any) error }

// nullTime converts a nullable stored timestamp to *time.Time.
func nullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(timeFormat, s.String)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	return &t, nil
}

// parseTime parses a non-null stored timestamp.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp: %w", err)
	}
	return t, nil
}

// formatTime renders a timestamp for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}
