package memory

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"urbanride/internal/modules/ride"
	"urbanride/internal/types"
)

type RideStore struct {
	db *DB
}

var _ ride.Repository = (*RideStore)(nil)

func (s *RideStore) Create(_ context.Context, _ pgx.Tx, r *ride.Ride) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.st.rides[r.ID]; ok {
		return ErrConstraint
	}
	if _, ok := s.db.st.users[r.PassengerID]; !ok {
		return ErrConstraint
	}
	row := *r
	row.PassengerName = ""
	s.db.st.rides[r.ID] = row
	s.db.st.rideOrder = append(s.db.st.rideOrder, r.ID)
	return nil
}

func (s *RideStore) Get(_ context.Context, id types.ID) (*ride.Ride, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return s.load(id)
}

func (s *RideStore) GetForUpdate(_ context.Context, _ pgx.Tx, id types.ID) (*ride.Ride, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return s.load(id)
}

// load copies a ride out of the state; callers hold mu.
func (s *RideStore) load(id types.ID) (*ride.Ride, error) {
	r, ok := s.db.st.rides[id]
	if !ok {
		return nil, ride.ErrNotFound
	}
	if u, ok := s.db.st.users[r.PassengerID]; ok {
		r.PassengerName = u.Name
	}
	return &r, nil
}

func (s *RideStore) Accept(_ context.Context, _ pgx.Tx, id, driverID types.ID, at time.Time) (*ride.Ride, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	r, ok := s.db.st.rides[id]
	if !ok || r.Status != ride.StatusRequested {
		return nil, ride.ErrRideUnavailable
	}
	u, ok := s.db.st.users[driverID]
	if !ok {
		return nil, ride.ErrRideUnavailable
	}
	d := driverID
	name := u.Name
	r.DriverID = &d
	r.DriverName = &name
	r.CarModel = copyStr(u.CarModel)
	r.LicensePlate = copyStr(u.LicensePlate)
	r.Status = ride.StatusAccepted
	r.AcceptedAt = &at
	s.db.st.rides[id] = r
	return &r, nil
}

func (s *RideStore) SetStatus(_ context.Context, _ pgx.Tx, id types.ID, to ride.Status, at time.Time) (*ride.Ride, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	r, ok := s.db.st.rides[id]
	if !ok {
		return nil, ride.ErrNotFound
	}
	r.Status = to
	switch to {
	case ride.StatusDriverArrived:
		r.ArrivedAt = &at
	case ride.StatusRunning:
		r.StartedAt = &at
	case ride.StatusCompleted:
		r.CompletedAt = &at
	}
	s.db.st.rides[id] = r
	return &r, nil
}

func (s *RideStore) Cancel(_ context.Context, _ pgx.Tx, id types.ID, reason string, at time.Time) (*ride.Ride, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	r, ok := s.db.st.rides[id]
	if !ok {
		return nil, ride.ErrNotFound
	}
	r.Status = ride.StatusCancelled
	r.CancelReason = &reason
	r.CancelledAt = &at
	s.db.st.rides[id] = r
	return &r, nil
}

func (s *RideStore) ListAvailable(_ context.Context, limit int) ([]ride.Ride, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := s.newestFirst(func(r ride.Ride) bool { return r.Status == ride.StatusRequested })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *RideStore) ActiveForUser(_ context.Context, userID types.ID) (*ride.Ride, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := s.newestFirst(func(r ride.Ride) bool {
		return r.IsParty(userID) && isOneOf(r.Status, ride.ActiveStatuses)
	})
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

func (s *RideStore) HasOpenForPassenger(_ context.Context, _ pgx.Tx, passengerID types.ID) (bool, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	for _, r := range s.db.st.rides {
		if r.PassengerID == passengerID && !r.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (s *RideStore) AppendEvent(_ context.Context, _ pgx.Tx, e *ride.Event) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.st.rides[e.RideID]; !ok {
		return ErrConstraint
	}
	s.db.st.nextEvent++
	e.ID = s.db.st.nextEvent
	s.db.st.events = append(s.db.st.events, *e)
	return nil
}

func (s *RideStore) AddMessage(ctx context.Context, m *ride.Message) error {
	return s.db.autocommit(ctx, func() error {
		s.db.mu.Lock()
		defer s.db.mu.Unlock()
		if _, ok := s.db.st.rides[m.RideID]; !ok {
			return ErrConstraint
		}
		s.db.st.messages = append(s.db.st.messages, *m)
		return nil
	})
}

func (s *RideStore) Messages(_ context.Context, rideID types.ID) ([]ride.Message, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []ride.Message
	for _, m := range s.db.st.messages {
		if m.RideID == rideID {
			out = append(out, m)
		}
	}
	return out, nil
}

// newestFirst filters rides and orders them by creation time descending,
// later inserts first on ties. Callers hold mu.
func (s *RideStore) newestFirst(keep func(ride.Ride) bool) []ride.Ride {
	var out []ride.Ride
	for i := len(s.db.st.rideOrder) - 1; i >= 0; i-- {
		r := s.db.st.rides[s.db.st.rideOrder[i]]
		if !keep(r) {
			continue
		}
		if u, ok := s.db.st.users[r.PassengerID]; ok {
			r.PassengerName = u.Name
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func isOneOf(s ride.Status, set []ride.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func copyStr(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
