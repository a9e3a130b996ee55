// README: Ride store backed by PostgreSQL; mutations run inside the caller's unit of work on a row locked FOR UPDATE.
package ride

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"urbanride/internal/types"
)

// Repository is the persistence contract for rides. Methods taking a tx must
// run inside a uow.Runner unit of work; the others read without locks.
type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, r *Ride) error
	Get(ctx context.Context, id types.ID) (*Ride, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id types.ID) (*Ride, error)
	Accept(ctx context.Context, tx pgx.Tx, id, driverID types.ID, at time.Time) (*Ride, error)
	SetStatus(ctx context.Context, tx pgx.Tx, id types.ID, to Status, at time.Time) (*Ride, error)
	Cancel(ctx context.Context, tx pgx.Tx, id types.ID, reason string, at time.Time) (*Ride, error)
	ListAvailable(ctx context.Context, limit int) ([]Ride, error)
	ActiveForUser(ctx context.Context, userID types.ID) (*Ride, error)
	HasOpenForPassenger(ctx context.Context, tx pgx.Tx, passengerID types.ID) (bool, error)
	AppendEvent(ctx context.Context, tx pgx.Tx, e *Event) error
	AddMessage(ctx context.Context, m *Message) error
	Messages(ctx context.Context, rideID types.ID) ([]Message, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const selectRide = `
	SELECT r.id, r.passenger_id, p.name, r.driver_id, r.driver_name, r.car_model, r.license_plate,
	       r.status, r.origin_address, r.destination_address, r.price, r.distance_km, r.payment_method,
	       r.cancel_reason, r.created_at, r.accepted_at, r.arrived_at, r.started_at, r.completed_at, r.cancelled_at
	FROM rides r
	JOIN users p ON p.id = r.passenger_id`

// Mutations return the same shape; the passenger name is filled by the caller
// from the locked row.
const returningRide = `
	RETURNING r.id, r.passenger_id, ''::text, r.driver_id, r.driver_name, r.car_model, r.license_plate,
	          r.status, r.origin_address, r.destination_address, r.price, r.distance_km, r.payment_method,
	          r.cancel_reason, r.created_at, r.accepted_at, r.arrived_at, r.started_at, r.completed_at, r.cancelled_at`

func (s *Store) Create(ctx context.Context, tx pgx.Tx, r *Ride) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO rides (
			id, passenger_id, status, origin_address, destination_address,
			price, distance_km, payment_method, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(r.ID),
		string(r.PassengerID),
		string(r.Status),
		r.Origin,
		r.Destination,
		r.Price,
		r.DistanceKm,
		string(r.PaymentMethod),
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ride: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Ride, error) {
	return scanRide(s.db.QueryRow(ctx, selectRide+` WHERE r.id = $1`, string(id)))
}

func (s *Store) GetForUpdate(ctx context.Context, tx pgx.Tx, id types.ID) (*Ride, error) {
	return scanRide(tx.QueryRow(ctx, selectRide+` WHERE r.id = $1 FOR UPDATE OF r`, string(id)))
}

// Accept binds the driver and copies the driver's display fields from users.
func (s *Store) Accept(ctx context.Context, tx pgx.Tx, id, driverID types.ID, at time.Time) (*Ride, error) {
	r, err := scanRide(tx.QueryRow(ctx, `
		UPDATE rides r
		SET status = 'ACCEPTED',
		    driver_id = u.id,
		    driver_name = u.name,
		    car_model = u.car_model,
		    license_plate = u.license_plate,
		    accepted_at = $3
		FROM users u
		WHERE r.id = $1 AND u.id = $2 AND r.status = 'REQUESTED'`+returningRide,
		string(id), string(driverID), at,
	))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrRideUnavailable
	}
	return r, err
}

func (s *Store) SetStatus(ctx context.Context, tx pgx.Tx, id types.ID, to Status, at time.Time) (*Ride, error) {
	return scanRide(tx.QueryRow(ctx, `
		UPDATE rides r
		SET status = $2::text,
		    arrived_at = CASE WHEN $2::text = 'DRIVER_ARRIVED' THEN $3 ELSE r.arrived_at END,
		    started_at = CASE WHEN $2::text = 'RUNNING' THEN $3 ELSE r.started_at END,
		    completed_at = CASE WHEN $2::text = 'COMPLETED' THEN $3 ELSE r.completed_at END
		WHERE r.id = $1`+returningRide,
		string(id), string(to), at,
	))
}

func (s *Store) Cancel(ctx context.Context, tx pgx.Tx, id types.ID, reason string, at time.Time) (*Ride, error) {
	return scanRide(tx.QueryRow(ctx, `
		UPDATE rides r
		SET status = 'CANCELLED', cancel_reason = $2, cancelled_at = $3
		WHERE r.id = $1`+returningRide,
		string(id), reason, at,
	))
}

func (s *Store) ListAvailable(ctx context.Context, limit int) ([]Ride, error) {
	rows, err := s.db.Query(ctx, selectRide+`
		WHERE r.status = 'REQUESTED'
		ORDER BY r.created_at DESC
		LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list available: %w", err)
	}
	defer rows.Close()

	var out []Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) ActiveForUser(ctx context.Context, userID types.ID) (*Ride, error) {
	r, err := scanRide(s.db.QueryRow(ctx, selectRide+`
		WHERE (r.passenger_id = $1 OR r.driver_id = $1)
		  AND r.status IN ('ACCEPTED', 'DRIVER_ARRIVED', 'RUNNING')
		ORDER BY r.created_at DESC
		LIMIT 1`, string(userID),
	))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return r, err
}

func (s *Store) HasOpenForPassenger(ctx context.Context, tx pgx.Tx, passengerID types.ID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM rides
			WHERE passenger_id = $1
			  AND status IN ('REQUESTED', 'ACCEPTED', 'DRIVER_ARRIVED', 'RUNNING')
		)`, string(passengerID),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open rides: %w", err)
	}
	return exists, nil
}

func (s *Store) AppendEvent(ctx context.Context, tx pgx.Tx, e *Event) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO ride_events (ride_id, from_status, to_status, actor_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		string(e.RideID),
		string(e.FromStatus),
		string(e.ToStatus),
		idPtr(e.ActorID),
		e.Note,
		e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("append ride event: %w", err)
	}
	return nil
}

func (s *Store) AddMessage(ctx context.Context, m *Message) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO chat_messages (id, ride_id, sender_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		string(m.ID), string(m.RideID), string(m.SenderID), m.Content, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func (s *Store) Messages(ctx context.Context, rideID types.ID) ([]Message, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, ride_id, sender_id, content, created_at
		FROM chat_messages
		WHERE ride_id = $1
		ORDER BY created_at ASC`, string(rideID),
	)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RideID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	var driverID *string
	err := row.Scan(
		&r.ID, &r.PassengerID, &r.PassengerName, &driverID, &r.DriverName, &r.CarModel, &r.LicensePlate,
		&r.Status, &r.Origin, &r.Destination, &r.Price, &r.DistanceKm, &r.PaymentMethod,
		&r.CancelReason, &r.CreatedAt, &r.AcceptedAt, &r.ArrivedAt, &r.StartedAt, &r.CompletedAt, &r.CancelledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan ride: %w", err)
	}
	if driverID != nil {
		d := types.ID(*driverID)
		r.DriverID = &d
	}
	return &r, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
