package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrVersionConflict signals that an optimistic counter write lost the
// race against a concurrent section mutation.
var ErrVersionConflict = errors.New("section version conflict")

// Store wraps the database handle and provides transaction scoping.
// Capacity-mutating flows (drop → promote → counter write) run inside a
// single WithinTx call so they are visible all-or-nothing.
type Store struct {
	db *sqlx.DB
}

// NewStore constructs a Store.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for non-transactional reads.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// WithinTx runs fn inside a database transaction, rolling back on error
// or panic and committing otherwise.
func (s *Store) WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
