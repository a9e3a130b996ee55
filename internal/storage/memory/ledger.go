package memory

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"urbanride/internal/modules/ledger"
	"urbanride/internal/types"
)

type LedgerStore struct {
	db *DB
}

var _ ledger.Repository = (*LedgerStore)(nil)

func (s *LedgerStore) LockAccount(ctx context.Context, _ pgx.Tx, userID types.ID) (*ledger.Account, error) {
	return s.GetAccount(ctx, userID)
}

func (s *LedgerStore) GetAccount(_ context.Context, userID types.ID) (*ledger.Account, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	u, ok := s.db.st.users[userID]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return &ledger.Account{
		UserID:         u.ID,
		Role:           u.Role,
		PrepaidCredits: u.PrepaidCredits,
		PayableBalance: u.PayableBalance,
	}, nil
}

// AdjustBalances enforces the same CHECK as the users table: payable_balance
// never goes below zero. prepaid_credits is unconstrained.
func (s *LedgerStore) AdjustBalances(_ context.Context, _ pgx.Tx, userID types.ID, prepaidDelta, payableDelta decimal.Decimal) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.st.users[userID]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	payable := u.PayableBalance.Add(payableDelta)
	if payable.IsNegative() {
		return ErrConstraint
	}
	u.PrepaidCredits = u.PrepaidCredits.Add(prepaidDelta)
	u.PayableBalance = payable
	s.db.st.users[userID] = u
	return nil
}

// Append enforces the transactions table constraints: positive amount,
// unique external_ref, one FEE and one EARNING per ride.
func (s *LedgerStore) Append(_ context.Context, _ pgx.Tx, t *ledger.Transaction) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if !t.Amount.IsPositive() {
		return ErrConstraint
	}
	if _, ok := s.db.st.users[t.UserID]; !ok {
		return ErrConstraint
	}
	for _, existing := range s.db.st.txns {
		if t.ExternalRef != nil && existing.ExternalRef != nil && *t.ExternalRef == *existing.ExternalRef {
			return ErrConstraint
		}
		if t.RideID != nil && existing.RideID != nil && *t.RideID == *existing.RideID && t.Type == existing.Type {
			return ErrConstraint
		}
	}
	s.db.st.txns = append(s.db.st.txns, *t)
	return nil
}

func (s *LedgerStore) History(_ context.Context, userID types.ID, limit int) ([]ledger.Transaction, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []ledger.Transaction
	for i := len(s.db.st.txns) - 1; i >= 0; i-- {
		if s.db.st.txns[i].UserID == userID {
			out = append(out, s.db.st.txns[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *LedgerStore) FindByExternalRefForUpdate(_ context.Context, _ pgx.Tx, ref string) (*ledger.Transaction, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	for _, t := range s.db.st.txns {
		if t.ExternalRef != nil && *t.ExternalRef == ref {
			found := t
			return &found, nil
		}
	}
	return nil, ledger.ErrRechargeNotFound
}

func (s *LedgerStore) MarkCompleted(_ context.Context, _ pgx.Tx, id types.ID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for i := range s.db.st.txns {
		t := &s.db.st.txns[i]
		if t.ID != id {
			continue
		}
		if t.Status != ledger.StatusPending {
			return ledger.ErrRechargeNotPending
		}
		t.Status = ledger.StatusCompleted
		return nil
	}
	return ledger.ErrRechargeNotPending
}
