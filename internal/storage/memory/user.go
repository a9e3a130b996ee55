package memory

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"urbanride/internal/modules/user"
	"urbanride/internal/types"
)

type UserStore struct {
	db *DB
}

var _ user.Repository = (*UserStore)(nil)

func (s *UserStore) Create(_ context.Context, _ pgx.Tx, p *user.Profile) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.st.users[p.ID]; ok {
		return user.ErrAlreadyRegistered
	}
	for _, u := range s.db.st.users {
		if strings.EqualFold(u.Email, p.Email) {
			return user.ErrEmailTaken
		}
	}
	s.db.st.users[p.ID] = userRow{
		ID:             p.ID,
		Name:           p.Name,
		Email:          p.Email,
		Role:           p.Role,
		CarModel:       copyStr(p.CarModel),
		LicensePlate:   copyStr(p.LicensePlate),
		PrepaidCredits: decimal.Zero,
		PayableBalance: decimal.Zero,
		CreatedAt:      p.CreatedAt,
	}
	return nil
}

func (s *UserStore) Get(_ context.Context, id types.ID) (*user.Profile, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	u, ok := s.db.st.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return toProfile(u), nil
}

func (s *UserStore) Update(ctx context.Context, id types.ID, c user.Changes) (*user.Profile, error) {
	var out *user.Profile
	err := s.db.autocommit(ctx, func() error {
		s.db.mu.Lock()
		defer s.db.mu.Unlock()
		u, ok := s.db.st.users[id]
		if !ok {
			return user.ErrNotFound
		}
		if c.Name != nil {
			u.Name = *c.Name
		}
		if c.CarModel != nil {
			u.CarModel = copyStr(c.CarModel)
		}
		if c.LicensePlate != nil {
			u.LicensePlate = copyStr(c.LicensePlate)
		}
		s.db.st.users[id] = u
		out = toProfile(u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func toProfile(u userRow) *user.Profile {
	return &user.Profile{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		Role:           u.Role,
		CarModel:       copyStr(u.CarModel),
		LicensePlate:   copyStr(u.LicensePlate),
		PrepaidCredits: u.PrepaidCredits,
		PayableBalance: u.PayableBalance,
		CreatedAt:      u.CreatedAt,
	}
}
