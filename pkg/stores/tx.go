package stores

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/stanchionhq/stanchion/pkg/faults"
)

// Tx is the transactional query surface handed to a WithTx body. The body
// must not retain it past the scope.
type Tx interface {
	Querier
}

// txHandle is an open transaction the scope can settle.
type txHandle interface {
	Tx
	Commit() error
	Rollback() error
}

// conn is a store handle the scope owns exclusively for its lifetime.
// The seam exists so tests can assert release-exactly-once with a fake.
type conn interface {
	Begin(ctx context.Context) (txHandle, error)
	Close() error
}

type sqlConn struct {
	db *sql.DB
}

func (c sqlConn) Begin(ctx context.Context) (txHandle, error) {
	return c.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

func (c sqlConn) Close() error {
	return c.db.Close()
}

// TxOption customizes a transaction scope.
type TxOption func(*txScope)

type txScope struct {
	logger      zerolog.Logger
	busyTimeout time.Duration
}

// WithTxLogger sets the logging collaborator for the scope. Rollback and
// release failures are logged through it.
func WithTxLogger(logger zerolog.Logger) TxOption {
	return func(s *txScope) { s.logger = logger }
}

// WithTxBusyTimeout overrides the handle's busy timeout.
func WithTxBusyTimeout(d time.Duration) TxOption {
	return func(s *txScope) { s.busyTimeout = d }
}

// WithTx acquires a handle to the store at path, runs body inside a
// transaction, commits on success and rolls back on failure, and releases
// the handle exactly once on every exit path. A rollback failure is logged,
// not swallowed, and the body's error remains the one surfaced. Storage
// failures surface as database-kind errors with the cause attached; body
// errors that already carry a taxonomy kind propagate unchanged.
//
// Scopes assume exclusive ownership of the handle: concurrent scopes on the
// same path are serialized only by the store's own busy timeout. Nested
// calls on one path are not supported.
func WithTx[T any](ctx context.Context, path string, body func(tx Tx) (T, error), opts ...TxOption) (T, error) {
	var zero T

	scope := txScope{logger: zerolog.Nop(), busyTimeout: DefaultBusyTimeout}
	for _, opt := range opts {
		opt(&scope)
	}

	db, err := openHandle(ctx, path, scope.busyTimeout)
	if err != nil {
		return zero, err
	}

	return runInTx[T](ctx, sqlConn{db: db}, scope.logger, body)
}

// InTx runs body inside a transaction on the store's own pool. The pool
// stays open; only the transaction is scoped.
func (s *SQLiteStore) InTx(ctx context.Context, logger zerolog.Logger, body func(tx Tx) error) error {
	if s.db == nil {
		return faults.NewDatabaseError("store not initialized", nil)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return faults.NewDatabaseError("failed to begin transaction", err)
	}

	if err := body(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error().Err(rbErr).Msg("Rollback failed")
		}
		return normalizeStoreErr("transaction body failed", err)
	}

	if err := tx.Commit(); err != nil {
		return faults.NewDatabaseError("failed to commit transaction", err)
	}

	return nil
}

// runInTx executes body within a transaction on c, settling and releasing
// the handle on every path.
func runInTx[T any](ctx context.Context, c conn, logger zerolog.Logger, body func(tx Tx) (T, error)) (result T, err error) {
	var zero T

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		if closeErr := c.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("Failed to release store handle")
			if err == nil {
				err = faults.NewDatabaseError("failed to release store handle", closeErr)
			}
		}
	}
	defer release()

	tx, beginErr := c.Begin(ctx)
	if beginErr != nil {
		return zero, faults.NewDatabaseError("failed to begin transaction", beginErr)
	}

	result, bodyErr := body(tx)
	if bodyErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			// The body's error stays authoritative.
			logger.Error().Err(rbErr).Msg("Rollback failed")
		}
		return zero, normalizeStoreErr("transaction body failed", bodyErr)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return zero, faults.NewDatabaseError("failed to commit transaction", commitErr)
	}

	return result, nil
}

// normalizeStoreErr keeps taxonomy errors intact and wraps anything else
// as a database failure so raw driver errors never cross the boundary.
func normalizeStoreErr(message string, err error) error {
	var taxonomyErr *faults.Error
	if errors.As(err, &taxonomyErr) {
		return err
	}
	return faults.NewDatabaseError(message, err)
}
