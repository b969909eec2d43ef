// Package local keeps every collection as a single CBOR blob in an embedded
// SQLite key-value table, the way a browser keeps state in local storage.
package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/spec-kit/service-desk/internal/clock"
	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

const (
	keyTickets = "tickets"
	keyUsers   = "users"
	keyResets  = "password_resets"
)

// Store owns the database handle and serializes every read and write of
// the blobs behind one mutex.
type Store struct {
	db    *sql.DB
	clock clock.Clock
	mu    sync.Mutex
}

// New prepares the key-value table on db.
func New(ctx context.Context, db *sql.DB, clk clock.Clock) (*Store, error) {
	if clk == nil {
		clk = clock.Real()
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value BLOB NOT NULL
		)`); err != nil {
		return nil, storeFailure("create kv table", err)
	}
	return &Store{db: db, clock: clk}, nil
}

// Tickets returns the ticket repository view of the store.
func (s *Store) Tickets() *TicketRepository { return &TicketRepository{store: s} }

// Users returns the user repository view of the store.
func (s *Store) Users() *UserRepository { return &UserRepository{store: s} }

// Resets returns the password reset repository view of the store.
func (s *Store) Resets() *PasswordResetRepository { return &PasswordResetRepository{store: s} }

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storeFailure("ping", err)
	}
	return nil
}

// read decodes the blob stored under key into dst. A missing key leaves dst
// untouched.
func (s *Store) read(ctx context.Context, key string, dst any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return loadBlob(ctx, s.db, key, dst)
}

// modify loads key into dst, runs fn and writes dst back in one transaction.
// An error from fn discards the change.
func (s *Store) modify(ctx context.Context, key string, dst any, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeFailure("begin", err)
	}
	defer tx.Rollback()

	if err := loadBlob(ctx, tx, key, dst); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}

	data, err := marshal(dst)
	if err != nil {
		return storeFailure("encode "+key, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, data); err != nil {
		return storeFailure("write "+key, err)
	}
	if err := tx.Commit(); err != nil {
		return storeFailure("commit", err)
	}
	return nil
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadBlob(ctx context.Context, q rowQueryer, key string, dst any) error {
	var data []byte
	err := q.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return storeFailure("read "+key, err)
	}
	if err := unmarshal(data, dst); err != nil {
		return storeFailure("decode "+key, err)
	}
	return nil
}

func storeFailure(op string, err error) error {
	return apperrors.NewStoreFailure(fmt.Errorf("local: %s: %w", op, err))
}
