package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"orderpay/internal/domain"
)

const (
	pqLockNotAvailable     = "55P03"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"

	// Raised for a malformed uuid literal before any row is looked at.
	pqInvalidTextRepresentation = "22P02"
)

// Transactor runs functions inside Postgres transactions. Locked transactions bound every row lock
// wait by lockTimeout.
type Transactor struct {
	db          *sql.DB
	lockTimeout time.Duration
	logger      *zap.Logger
}

func NewTransactor(db *sql.DB, lockTimeout time.Duration, logger *zap.Logger) *Transactor {
	return &Transactor{db: db, lockTimeout: lockTimeout, logger: logger}
}

// Querier is used for reads outside a transaction.
func (t *Transactor) Querier() domain.Querier {
	return t.db
}

func (t *Transactor) RunInTx(ctx context.Context, fn func(q domain.Querier) error) error {
	return t.run(ctx, false, fn)
}

// RunInLockedTx is RunInTx with SET LOCAL lock_timeout applied before fn runs. Lock waits that
// exceed it, and serialization failures, surface as domain.ErrConcurrencyConflict.
func (t *Transactor) RunInLockedTx(ctx context.Context, fn func(q domain.Querier) error) error {
	return t.run(ctx, true, fn)
}

func (t *Transactor) run(ctx context.Context, locked bool, fn func(q domain.Querier) error) (err error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			t.logger.Error("Panic inside transaction, rolling back", zap.Any("panic", p))
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				t.logger.Error("Failed to roll back transaction", zap.Error(rbErr))
			}
			err = MapError(err)
			return
		}
		if err = tx.Commit(); err != nil {
			err = MapError(fmt.Errorf("failed to commit transaction: %w", err))
		}
	}()

	if locked {
		// SET does not take bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", t.lockTimeout.Milliseconds())
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to set lock timeout: %w", err)
		}
	}

	return fn(tx)
}

// MapError turns lock and serialization failures into domain.ErrConcurrencyConflict and malformed
// ids into domain.ErrNotFound, keeping the original error in the chain.
func MapError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case pqLockNotAvailable, pqSerializationFailure, pqDeadlockDetected:
		return fmt.Errorf("%w: %w", domain.ErrConcurrencyConflict, err)
	case pqInvalidTextRepresentation:
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
		}
	}
	return err
}

// IsNoRows reports a lookup that matched nothing, including one keyed by an id that is not a
// valid uuid.
func IsNoRows(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqInvalidTextRepresentation
}

// IsUniqueViolation reports a 23505 error, optionally for a specific constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pqUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
