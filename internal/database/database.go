// Package database is the SQLite-backed store for resources, reservations and reviews.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps the connection pool.
type DB struct {
	*sqlx.DB
	path   string
	logger *zerolog.Logger
}

// NewDB opens (creating if needed) the database at path and migrates the schema.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL for concurrent readers; immediate transactions take the write lock up front
	// so conditional writes queue on busy_timeout instead of failing on lock upgrade.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: db, path: path, logger: logger}
	if err := instance.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

// Path returns the database file location.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS resources (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			address TEXT NOT NULL DEFAULT '',
			lat REAL NOT NULL,
			lng REAL NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			available BOOLEAN NOT NULL DEFAULT 1,
			active_from DATETIME,
			active_until DATETIME,
			price_per_hour INTEGER NOT NULL DEFAULT 0,
			version INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS resource_schedules (
			resource_id TEXT NOT NULL,
			weekday INTEGER NOT NULL,
			open_time TEXT NOT NULL,
			close_time TEXT NOT NULL,
			PRIMARY KEY (resource_id, weekday),
			FOREIGN KEY (resource_id) REFERENCES resources(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS reservations (
			id TEXT PRIMARY KEY,
			resource_id TEXT NOT NULL,
			requester_id TEXT NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			payment_status TEXT NOT NULL DEFAULT 'pending',
			total_price INTEGER NOT NULL DEFAULT 0,
			vehicle_reg TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (resource_id) REFERENCES resources(id)
		)`,
		// Ordered reservation list of each resource; the only input of conflict checks.
		`CREATE TABLE IF NOT EXISTS resource_reservations (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			resource_id TEXT NOT NULL,
			reservation_id TEXT NOT NULL UNIQUE,
			FOREIGN KEY (resource_id) REFERENCES resources(id),
			FOREIGN KEY (reservation_id) REFERENCES reservations(id)
		)`,
		`CREATE TABLE IF NOT EXISTS reviews (
			id TEXT PRIMARY KEY,
			reservation_id TEXT NOT NULL UNIQUE,
			resource_id TEXT NOT NULL,
			requester_id TEXT NOT NULL,
			rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
			comment TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			FOREIGN KEY (reservation_id) REFERENCES reservations(id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_resources_location ON resources(lat, lng)`,
		`CREATE INDEX IF NOT EXISTS idx_resources_status ON resources(status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_resource ON reservations(resource_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_requester ON reservations(requester_id)`,
		`CREATE INDEX IF NOT EXISTS idx_resource_reservations_resource ON resource_reservations(resource_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_resource ON reviews(resource_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// inTx runs fn inside a transaction, committing only if fn succeeds.
func (db *DB) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// Close closes the pool.
func (db *DB) Close() error {
	return db.DB.Close()
}
