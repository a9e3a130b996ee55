// README: Unit of work; runs a function inside one database transaction with rollback on every failure path.
package uow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"urbanride/internal/apperr"
)

// Runner executes fn atomically. fn's effects commit together or not at all,
// and row locks taken inside fn are held until the unit ends.
type Runner interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

type PGRunner struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func NewPGRunner(pool *pgxpool.Pool, lockTimeout time.Duration) *PGRunner {
	return &PGRunner{pool: pool, lockTimeout: lockTimeout}
}

func (r *PGRunner) Do(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Classify(fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if r.lockTimeout > 0 {
		// SET LOCAL does not accept bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return Classify(fmt.Errorf("set lock_timeout: %w", err))
		}
	}

	if err := fn(ctx, tx); err != nil {
		return Classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

var transientCodes = map[string]bool{
	"55P03": true, // lock_not_available
	"40P01": true, // deadlock_detected
	"40001": true, // serialization_failure
	"57014": true, // query_canceled
}

// Classify maps storage failures onto the error taxonomy. Typed errors pass
// through untouched.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && transientCodes[pgErr.Code] {
		return apperr.Transient(err)
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return apperr.Transient(err)
	}
	return apperr.Fatal(err)
}
