// Package db stores bookings and payment transactions in SQLite.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store holds the repository queries. The zero value is not usable; obtain
// one from DB or from the callback of DB.InTx.
type Store struct {
	q querier
}

// DB wraps sql.DB and exposes the repository queries outside transactions.
type DB struct {
	*sql.DB
	Store
	path   string
	logger *zerolog.Logger
}

// NewDB opens the database at path and runs migrations.
//
// Write transactions are started with BEGIN IMMEDIATE, so two InTx callers
// never interleave their read-check-write sequences.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: sqlDB, Store: Store{q: sqlDB}, path: path, logger: logger}, nil
}

// InTx runs fn inside a write transaction. fn's Store must not be used after
// fn returns.
func (db *DB) InTx(ctx context.Context, fn func(s Store) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(Store{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			reference TEXT UNIQUE NOT NULL,
			customer_name TEXT NOT NULL,
			email TEXT NOT NULL,
			phone TEXT NOT NULL,
			booking_date TEXT NOT NULL,
			time_slot TEXT NOT NULL,
			display_time TEXT NOT NULL DEFAULT '',
			period TEXT NOT NULL DEFAULT '',
			rate REAL NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending', 'confirmed', 'cancelled')),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		// Booking rows may be deleted by an admin; transactions are kept as
		// the payment record, so there is no foreign key here.
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			booking_id TEXT NOT NULL,
			provider_reference TEXT UNIQUE NOT NULL,
			external_transaction_id TEXT,
			amount REAL NOT NULL,
			status TEXT NOT NULL DEFAULT 'initiated'
				CHECK (status IN ('initiated', 'success', 'failed')),
			failure_reason TEXT,
			checkout_url TEXT,
			payment_method TEXT NOT NULL DEFAULT 'gcash',
			payment_date DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		// At most one confirmed booking per date and slot.
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_bookings_confirmed_slot
			ON bookings(booking_date, time_slot) WHERE status = 'confirmed'`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_date_status ON bookings(booking_date, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_created ON bookings(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_booking ON transactions(booking_id)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
