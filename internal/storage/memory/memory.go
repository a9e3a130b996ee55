// README: In-process storage backend; implements the module repositories and the unit-of-work runner over maps.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"urbanride/internal/apperr"
	"urbanride/internal/modules/ledger"
	"urbanride/internal/modules/ride"
	"urbanride/internal/types"
	"urbanride/internal/uow"
)

var _ uow.Runner = (*DB)(nil)

// ErrConstraint mirrors a database constraint violation.
var ErrConstraint = errors.New("memory: constraint violation")

type userRow struct {
	ID             types.ID
	Name           string
	Email          string
	Role           types.Role
	CarModel       *string
	LicensePlate   *string
	PrepaidCredits decimal.Decimal
	PayableBalance decimal.Decimal
	CreatedAt      time.Time
}

type state struct {
	users     map[types.ID]userRow
	rides     map[types.ID]ride.Ride
	rideOrder []types.ID
	events    []ride.Event
	messages  []ride.Message
	txns      []ledger.Transaction
	nextEvent int64
}

func (s *state) clone() *state {
	c := &state{
		users:     make(map[types.ID]userRow, len(s.users)),
		rides:     make(map[types.ID]ride.Ride, len(s.rides)),
		rideOrder: append([]types.ID(nil), s.rideOrder...),
		events:    append([]ride.Event(nil), s.events...),
		messages:  append([]ride.Message(nil), s.messages...),
		txns:      append([]ledger.Transaction(nil), s.txns...),
		nextEvent: s.nextEvent,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.rides {
		c.rides[k] = v
	}
	return c
}

// DB serialises units of work with a single lock, which is coarser than row
// locks but gives the same outcomes: one winner per ride, all-or-nothing
// effects. Standalone writes take the same lock; reads outside a unit of work
// may observe uncommitted writes.
type DB struct {
	sem         chan struct{}
	lockTimeout time.Duration

	mu sync.RWMutex
	st *state
}

func New(lockTimeout time.Duration) *DB {
	return &DB{
		sem:         make(chan struct{}, 1),
		lockTimeout: lockTimeout,
		st: &state{
			users: make(map[types.ID]userRow),
			rides: make(map[types.ID]ride.Ride),
		},
	}
}

// Do runs fn as one unit of work. fn receives a nil pgx.Tx; the memory
// repositories ignore it. Any error restores the state seen at entry.
func (db *DB) Do(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if err := db.acquire(ctx); err != nil {
		return err
	}
	defer func() { <-db.sem }()

	db.mu.RLock()
	snap := db.st.clone()
	db.mu.RUnlock()

	if err := fn(ctx, nil); err != nil {
		db.mu.Lock()
		db.st = snap
		db.mu.Unlock()
		return uow.Classify(err)
	}
	return nil
}

// autocommit runs a single write that is not part of a caller's unit of
// work. It waits for the unit in flight, so a rollback cannot discard it.
func (db *DB) autocommit(ctx context.Context, fn func() error) error {
	if err := db.acquire(ctx); err != nil {
		return err
	}
	defer func() { <-db.sem }()
	return fn()
}

func (db *DB) acquire(ctx context.Context) error {
	var timeout <-chan time.Time
	if db.lockTimeout > 0 {
		t := time.NewTimer(db.lockTimeout)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case db.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return apperr.Transient(ctx.Err())
	case <-timeout:
		return apperr.Transient(fmt.Errorf("lock wait exceeded %s", db.lockTimeout))
	}
}

// SeedUser inserts or replaces a user row including balances.
func (db *DB) SeedUser(id types.ID, name string, role types.Role, prepaid decimal.Decimal) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.st.users[id] = userRow{
		ID:             id,
		Name:           name,
		Email:          string(id) + "@example.test",
		Role:           role,
		PrepaidCredits: prepaid,
		PayableBalance: decimal.Zero,
		CreatedAt:      time.Now(),
	}
}

// RideEvents returns the audit trail of one ride in append order.
func (db *DB) RideEvents(rideID types.ID) []ride.Event {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []ride.Event
	for _, e := range db.st.events {
		if e.RideID == rideID {
			out = append(out, e)
		}
	}
	return out
}

func (db *DB) Rides() *RideStore    { return &RideStore{db: db} }
func (db *DB) Ledger() *LedgerStore { return &LedgerStore{db: db} }
func (db *DB) Users() *UserStore    { return &UserStore{db: db} }
