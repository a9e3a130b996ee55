// README: User store backed by PostgreSQL.
package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"urbanride/internal/types"
)

type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, p *Profile) error
	Get(ctx context.Context, id types.ID) (*Profile, error)
	Update(ctx context.Context, id types.ID, c Changes) (*Profile, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const profileColumns = `id, name, email, role, car_model, license_plate, prepaid_credits, payable_balance, created_at`

func (s *Store) Create(ctx context.Context, tx pgx.Tx, p *Profile) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO users (id, name, email, role, car_model, license_plate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(p.ID), p.Name, p.Email, string(p.Role), p.CarModel, p.LicensePlate, p.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if pgErr.ConstraintName == "users_pkey" {
			return ErrAlreadyRegistered
		}
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Profile, error) {
	return scanProfile(s.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM users WHERE id = $1`, string(id)))
}

func (s *Store) Update(ctx context.Context, id types.ID, c Changes) (*Profile, error) {
	return scanProfile(s.db.QueryRow(ctx, `
		UPDATE users
		SET name = COALESCE($2, name),
		    car_model = COALESCE($3, car_model),
		    license_plate = COALESCE($4, license_plate)
		WHERE id = $1
		RETURNING `+profileColumns,
		string(id), c.Name, c.CarModel, c.LicensePlate,
	))
}

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(
		&p.ID, &p.Name, &p.Email, &p.Role, &p.CarModel, &p.LicensePlate,
		&p.PrepaidCredits, &p.PayableBalance, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &p, nil
}
