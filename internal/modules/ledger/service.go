// README: Ledger service: ride settlement, wallet balance/history, and recharge reconciliation.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"urbanride/internal/apperr"
	"urbanride/internal/modules/pricing"
	"urbanride/internal/observability"
	"urbanride/internal/types"
	"urbanride/internal/uow"
)

var (
	ErrAccountNotFound     = apperr.NotFound("account_not_found", "user account not found")
	ErrInsufficientCredits = apperr.InsufficientFunds("insufficient_credits", "insufficient prepaid credits")
	ErrInvalidAmount       = apperr.Validation("invalid_amount", "amount must be positive")
	ErrRechargeTooSmall    = apperr.Validation("recharge_below_minimum", "recharge amount below minimum")
	ErrRechargeNotFound    = apperr.NotFound("recharge_not_found", "recharge not found")
	ErrRechargeNotPending  = apperr.Conflict("recharge_not_pending", "recharge is not pending")
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

var DefaultMinRecharge = decimal.RequireFromString("10.00")

type Config struct {
	MinRecharge decimal.Decimal
	// EnforceSolvencyAtSettlement rejects settlement when the driver's
	// credits no longer cover the fee. Off by default: acceptance is the
	// only solvency check.
	EnforceSolvencyAtSettlement bool
}

type Service struct {
	runner uow.Runner
	repo   Repository
	fees   *pricing.Service
	cfg    Config
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewService(runner uow.Runner, repo Repository, fees *pricing.Service, cfg Config, log logrus.FieldLogger) *Service {
	if cfg.MinRecharge.IsZero() {
		cfg.MinRecharge = DefaultMinRecharge
	}
	return &Service{
		runner: runner,
		repo:   repo,
		fees:   fees,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

type SettleCommand struct {
	RideID   types.ID
	DriverID types.ID
	Price    decimal.Decimal
}

type RechargeCommand struct {
	UserID types.ID
	Amount decimal.Decimal
}

// LockAccount locks the user's balance row for the rest of tx.
func (s *Service) LockAccount(ctx context.Context, tx pgx.Tx, userID types.ID) (*Account, error) {
	return s.repo.LockAccount(ctx, tx, userID)
}

// Settle debits the fee from the driver's prepaid credits, credits the net
// earning to the payable balance and appends FEE then EARNING entries. It
// runs inside the caller's unit of work, after the ride row is locked.
func (s *Service) Settle(ctx context.Context, tx pgx.Tx, cmd SettleCommand) (*Settlement, error) {
	if !cmd.Price.IsPositive() {
		return nil, ErrInvalidAmount
	}
	acct, err := s.repo.LockAccount(ctx, tx, cmd.DriverID)
	if err != nil {
		return nil, err
	}
	split := s.fees.Split(cmd.Price)
	if s.cfg.EnforceSolvencyAtSettlement && acct.PrepaidCredits.LessThan(split.Fee) {
		return nil, ErrInsufficientCredits.WithMessage(
			"fee %s exceeds prepaid credits %s", split.Fee.StringFixed(2), acct.PrepaidCredits.StringFixed(2))
	}

	if err := s.repo.AdjustBalances(ctx, tx, cmd.DriverID, split.Fee.Neg(), split.Net); err != nil {
		return nil, err
	}

	now := s.now()
	rideID := cmd.RideID
	entries := make([]Transaction, 0, 2)
	if split.Fee.IsPositive() {
		entries = append(entries, Transaction{
			ID:          types.NewID(),
			UserID:      cmd.DriverID,
			RideID:      &rideID,
			Amount:      split.Fee,
			Type:        TypeFee,
			Description: descFee,
			Status:      StatusCompleted,
			CreatedAt:   now,
		})
	}
	entries = append(entries, Transaction{
		ID:          types.NewID(),
		UserID:      cmd.DriverID,
		RideID:      &rideID,
		Amount:      split.Gross,
		Type:        TypeEarning,
		Description: descEarning,
		Status:      StatusCompleted,
		CreatedAt:   now,
	})
	for i := range entries {
		if err := s.repo.Append(ctx, tx, &entries[i]); err != nil {
			return nil, err
		}
	}

	return &Settlement{
		RideID:   cmd.RideID,
		DriverID: cmd.DriverID,
		Fee:      split.Fee,
		Earning:  split.Gross,
		Net:      split.Net,
		Entries:  entries,
	}, nil
}

func (s *Service) Balance(ctx context.Context, userID types.ID) (*Account, error) {
	acct, err := s.repo.GetAccount(ctx, userID)
	if err != nil {
		return nil, uow.Classify(err)
	}
	return acct, nil
}

// History returns the user's entries newest first.
func (s *Service) History(ctx context.Context, userID types.ID, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	out, err := s.repo.History(ctx, userID, limit)
	if err != nil {
		return nil, uow.Classify(err)
	}
	return out, nil
}

// RequestRecharge records a PENDING credit awaiting payment confirmation.
func (s *Service) RequestRecharge(ctx context.Context, cmd RechargeCommand) (*Transaction, error) {
	amount := types.RoundMoney(cmd.Amount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if amount.LessThan(s.cfg.MinRecharge) {
		return nil, ErrRechargeTooSmall.WithMessage("minimum recharge is %s", s.cfg.MinRecharge.StringFixed(2))
	}

	ref := "rch_" + uuid.NewString()
	t := &Transaction{
		ID:          types.NewID(),
		UserID:      cmd.UserID,
		Amount:      amount,
		Type:        TypeCredit,
		Description: descCredit,
		Status:      StatusPending,
		ExternalRef: &ref,
		CreatedAt:   s.now(),
	}
	err := s.runner.Do(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := s.repo.LockAccount(ctx, tx, cmd.UserID); err != nil {
			return err
		}
		return s.repo.Append(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"user_id":      cmd.UserID,
		"amount":       amount.StringFixed(2),
		"external_ref": ref,
	}).Info("recharge requested")
	return t, nil
}

// ConfirmRecharge settles a pending recharge by its external reference. A
// reference already confirmed is returned unchanged with applied=false.
func (s *Service) ConfirmRecharge(ctx context.Context, ref string) (t *Transaction, applied bool, err error) {
	if ref == "" {
		return nil, false, ErrRechargeNotFound
	}
	err = s.runner.Do(ctx, func(ctx context.Context, tx pgx.Tx) error {
		found, err := s.repo.FindByExternalRefForUpdate(ctx, tx, ref)
		if err != nil {
			return err
		}
		if found.Type != TypeCredit {
			return ErrRechargeNotFound
		}
		t = found
		if found.Status == StatusCompleted {
			return nil
		}
		if _, err := s.repo.LockAccount(ctx, tx, found.UserID); err != nil {
			return err
		}
		if err := s.repo.AdjustBalances(ctx, tx, found.UserID, found.Amount, decimal.Zero); err != nil {
			return err
		}
		if err := s.repo.MarkCompleted(ctx, tx, found.ID); err != nil {
			return err
		}
		t.Status = StatusCompleted
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if applied {
		observability.RechargeConfirmed(t.Amount)
		s.log.WithFields(logrus.Fields{
			"user_id":      t.UserID,
			"amount":       t.Amount.StringFixed(2),
			"external_ref": ref,
		}).Info("recharge confirmed")
	}
	return t, applied, nil
}
