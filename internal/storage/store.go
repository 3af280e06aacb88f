// Package storage persists the ledger in an embedded SQLite database. Each
// entity has its own repository; flags are stored as 0/1 integers and
// instants as Unix milliseconds, converted at the repository edge.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotInitialized is returned by every operation on a store that was
	// never opened or has been closed.
	ErrNotInitialized = errors.New("storage: database not initialized")
	ErrNotFound       = errors.New("storage: not found")
)

type Store struct {
	db  atomic.Pointer[sql.DB]
	now func() time.Time
}

type Option func(*Store)

// WithClock overrides the source of createdAt/updatedAt timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open creates (if needed) and migrates the database at dbPath, then seeds
// default categories, payment methods and settings on first run.
func Open(ctx context.Context, dbPath string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serialises writes against the file.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := New(db, opts...)
	if err := s.seed(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed defaults: %w", err)
	}

	slog.InfoContext(ctx, "SQLite store ready", "path", dbPath)
	return s, nil
}

// New wraps an already open handle without migrating or seeding it.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{now: time.Now}
	s.db.Store(db)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	if db := s.db.Swap(nil); db != nil {
		return db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (s *Store) conn() (*sql.DB, error) {
	if s == nil {
		return nil, ErrNotInitialized
	}
	db := s.db.Load()
	if db == nil {
		return nil, ErrNotInitialized
	}
	return db, nil
}

func (s *Store) Categories() *CategoryRepository { return &CategoryRepository{st: s} }
func (s *Store) PaymentMethods() *PaymentMethodRepository { return &PaymentMethodRepository{st: s} }
func (s *Store) Transactions() *TransactionRepository { return &TransactionRepository{st: s} }
func (s *Store) Recurring() *RecurringRepository { return &RecurringRepository{st: s} }
func (s *Store) Settings() *SettingsRepository { return &SettingsRepository{st: s} }
