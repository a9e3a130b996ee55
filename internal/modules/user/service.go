// README: User service registers profiles for authenticated identities and grants the driver welcome bonus.
package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"urbanride/internal/apperr"
	"urbanride/internal/modules/ledger"
	"urbanride/internal/types"
	"urbanride/internal/uow"
)

var (
	ErrNotFound          = apperr.NotFound("user_not_found", "user not found")
	ErrAlreadyRegistered = apperr.Conflict("already_registered", "profile already registered")
	ErrEmailTaken        = apperr.Conflict("email_taken", "email already registered")
	ErrInvalid           = apperr.Validation("invalid_profile", "invalid profile")
	ErrNothingToUpdate   = apperr.Validation("nothing_to_update", "no fields to update")
)

var DefaultDriverBonus = decimal.RequireFromString("50.00")

const descWelcomeBonus = "Welcome bonus"

type RegisterCommand struct {
	Caller       types.Identity
	Name         string  `validate:"required,min=3,max=120"`
	Email        string  `validate:"required,email"`
	CarModel     *string `validate:"omitempty,max=80"`
	LicensePlate *string `validate:"omitempty,max=16"`
}

type UpdateCommand struct {
	Caller       types.Identity
	Name         *string `validate:"omitempty,min=3,max=120"`
	CarModel     *string `validate:"omitempty,max=80"`
	LicensePlate *string `validate:"omitempty,max=16"`
}

type Service struct {
	runner      uow.Runner
	repo        Repository
	ledger      ledger.Repository
	validate    *validator.Validate
	driverBonus decimal.Decimal
	log         logrus.FieldLogger
	now         func() time.Time
}

func NewService(runner uow.Runner, repo Repository, ledgerRepo ledger.Repository, driverBonus decimal.Decimal, log logrus.FieldLogger) *Service {
	return &Service{
		runner:      runner,
		repo:        repo,
		ledger:      ledgerRepo,
		validate:    validator.New(),
		driverBonus: driverBonus,
		log:         log,
		now:         time.Now,
	}
}

// Register creates the caller's profile. Drivers start with the welcome
// bonus as prepaid credits, recorded as a completed CREDIT entry.
func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*Profile, error) {
	if !cmd.Caller.Role.Valid() {
		return nil, ErrInvalid.WithMessage("unknown role %q", cmd.Caller.Role)
	}
	cmd.Name = strings.TrimSpace(cmd.Name)
	cmd.Email = strings.ToLower(strings.TrimSpace(cmd.Email))
	if err := s.validate.Struct(cmd); err != nil {
		return nil, ErrInvalid.WithMessage("%v", err)
	}

	now := s.now()
	p := &Profile{
		ID:           cmd.Caller.ID,
		Name:         cmd.Name,
		Email:        cmd.Email,
		Role:         cmd.Caller.Role,
		CarModel:     cmd.CarModel,
		LicensePlate: cmd.LicensePlate,
		CreatedAt:    now,
	}
	bonus := types.RoundMoney(s.driverBonus)
	err := s.runner.Do(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.repo.Create(ctx, tx, p); err != nil {
			return err
		}
		if p.Role != types.RoleDriver || !bonus.IsPositive() {
			return nil
		}
		if err := s.ledger.AdjustBalances(ctx, tx, p.ID, bonus, decimal.Zero); err != nil {
			return err
		}
		return s.ledger.Append(ctx, tx, &ledger.Transaction{
			ID:          types.NewID(),
			UserID:      p.ID,
			Amount:      bonus,
			Type:        ledger.TypeCredit,
			Description: descWelcomeBonus,
			Status:      ledger.StatusCompleted,
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}
	if p.Role == types.RoleDriver {
		p.PrepaidCredits = bonus
	}
	s.log.WithFields(logrus.Fields{"user_id": p.ID, "role": p.Role}).Info("user registered")
	return p, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Profile, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, uow.Classify(err)
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, cmd UpdateCommand) (*Profile, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, ErrInvalid.WithMessage("%v", err)
	}
	c := Changes{Name: cmd.Name, CarModel: cmd.CarModel, LicensePlate: cmd.LicensePlate}
	if c.Empty() {
		return nil, ErrNothingToUpdate
	}
	p, err := s.repo.Update(ctx, cmd.Caller.ID, c)
	if err != nil {
		return nil, uow.Classify(err)
	}
	return p, nil
}
