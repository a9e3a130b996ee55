// README: Ledger store backed by PostgreSQL; balance rows are locked with FOR UPDATE inside the caller's unit of work.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"urbanride/internal/types"
)

// Repository is the persistence contract of the ledger. Methods taking a tx
// must run inside a uow.Runner unit of work.
type Repository interface {
	LockAccount(ctx context.Context, tx pgx.Tx, userID types.ID) (*Account, error)
	GetAccount(ctx context.Context, userID types.ID) (*Account, error)
	AdjustBalances(ctx context.Context, tx pgx.Tx, userID types.ID, prepaidDelta, payableDelta decimal.Decimal) error
	Append(ctx context.Context, tx pgx.Tx, t *Transaction) error
	History(ctx context.Context, userID types.ID, limit int) ([]Transaction, error)
	FindByExternalRefForUpdate(ctx context.Context, tx pgx.Tx, ref string) (*Transaction, error)
	MarkCompleted(ctx context.Context, tx pgx.Tx, id types.ID) error
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const accountColumns = `id, role, prepaid_credits, payable_balance`

func (s *Store) LockAccount(ctx context.Context, tx pgx.Tx, userID types.ID) (*Account, error) {
	row := tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE id = $1 FOR UPDATE`, string(userID))
	return scanAccount(row)
}

func (s *Store) GetAccount(ctx context.Context, userID types.ID) (*Account, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE id = $1`, string(userID))
	return scanAccount(row)
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.UserID, &a.Role, &a.PrepaidCredits, &a.PayableBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}

func (s *Store) AdjustBalances(ctx context.Context, tx pgx.Tx, userID types.ID, prepaidDelta, payableDelta decimal.Decimal) error {
	tag, err := tx.Exec(ctx, `
		UPDATE users
		SET prepaid_credits = prepaid_credits + $2,
		    payable_balance = payable_balance + $3
		WHERE id = $1`,
		string(userID), prepaidDelta, payableDelta,
	)
	if err != nil {
		return fmt.Errorf("adjust balances: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrAccountNotFound
	}
	return nil
}

func (s *Store) Append(ctx context.Context, tx pgx.Tx, t *Transaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (
			id, user_id, ride_id, amount, type, description, status, external_ref, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(t.ID),
		string(t.UserID),
		idPtr(t.RideID),
		t.Amount,
		string(t.Type),
		t.Description,
		string(t.Status),
		t.ExternalRef,
		t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append %s transaction: %w", t.Type, err)
	}
	return nil
}

const txColumns = `id, user_id, ride_id, amount, type, description, status, external_ref, created_at`

func (s *Store) History(ctx context.Context, userID types.ID, limit int) ([]Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+txColumns+`
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, string(userID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) FindByExternalRefForUpdate(ctx context.Context, tx pgx.Tx, ref string) (*Transaction, error) {
	row := tx.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE external_ref = $1 FOR UPDATE`, ref)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRechargeNotFound
	}
	return t, err
}

func (s *Store) MarkCompleted(ctx context.Context, tx pgx.Tx, id types.ID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE transactions SET status = 'COMPLETED'
		WHERE id = $1 AND status = 'PENDING'`, string(id),
	)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrRechargeNotPending
	}
	return nil
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var t Transaction
	var rideID, externalRef *string
	err := row.Scan(
		&t.ID, &t.UserID, &rideID, &t.Amount, &t.Type,
		&t.Description, &t.Status, &externalRef, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	if rideID != nil {
		id := types.ID(*rideID)
		t.RideID = &id
	}
	t.ExternalRef = externalRef
	return &t, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
