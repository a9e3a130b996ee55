// README: Ride service implements the state machine, the acceptance protocol and settlement on completion.
package ride

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"urbanride/internal/apperr"
	"urbanride/internal/events"
	"urbanride/internal/modules/ledger"
	"urbanride/internal/modules/pricing"
	"urbanride/internal/observability"
	"urbanride/internal/types"
	"urbanride/internal/uow"
)

var (
	ErrNotFound          = apperr.NotFound("ride_not_found", "ride not found")
	ErrRideUnavailable   = apperr.Conflict("ride_unavailable", "ride already accepted or cancelled")
	ErrInvalidState      = apperr.Conflict("invalid_transition", "ride status does not allow this transition")
	ErrActiveRide        = apperr.Conflict("active_ride_exists", "passenger already has an open ride")
	ErrInsufficientFunds = apperr.InsufficientFunds("insufficient_credits", "insufficient prepaid credits to accept this ride")
	ErrDriverOnly        = apperr.Forbidden("driver_only", "only drivers may perform this action")
	ErrPassengerOnly     = apperr.Forbidden("passenger_only", "only passengers may request rides")
	ErrNotAssigned       = apperr.Forbidden("not_assigned_driver", "ride is assigned to another driver")
	ErrNotParty          = apperr.Forbidden("not_ride_party", "caller is not part of this ride")
	ErrBadRequest        = apperr.Validation("invalid_request", "invalid request")
	ErrInvalidTarget     = apperr.Validation("invalid_status", "status must be DRIVER_ARRIVED, RUNNING or COMPLETED")
)

const (
	DefaultCancelReason = "Cancelled by user"
	DefaultListLimit    = 20
	MaxListLimit        = 100
	MinAddressLength    = 5
	MaxMessageLength    = 2000
)

// Ledger is the part of the ledger the ride flow needs inside its unit of work.
type Ledger interface {
	LockAccount(ctx context.Context, tx pgx.Tx, userID types.ID) (*ledger.Account, error)
	Settle(ctx context.Context, tx pgx.Tx, cmd ledger.SettleCommand) (*ledger.Settlement, error)
}

type Deps struct {
	Runner    uow.Runner
	Store     Repository
	Ledger    Ledger
	Fees      *pricing.Service
	Publisher events.Publisher
	Log       logrus.FieldLogger
}

type Service struct {
	runner    uow.Runner
	store     Repository
	ledger    Ledger
	fees      *pricing.Service
	publisher events.Publisher
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewService(deps Deps) *Service {
	pub := deps.Publisher
	if pub == nil {
		pub = events.NopPublisher{}
	}
	log := deps.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		runner:    deps.Runner,
		store:     deps.Store,
		ledger:    deps.Ledger,
		fees:      deps.Fees,
		publisher: pub,
		log:       log,
		now:       time.Now,
	}
}

type RequestCommand struct {
	Caller        types.Identity
	Origin        string
	Destination   string
	Price         decimal.Decimal
	DistanceKm    float64
	PaymentMethod PaymentMethod
}

type AcceptCommand struct {
	RideID types.ID
	Caller types.Identity
}

type UpdateStatusCommand struct {
	RideID types.ID
	Caller types.Identity
	Target Status
}

type CancelCommand struct {
	RideID types.ID
	Caller types.Identity
	Reason string
}

type MessageCommand struct {
	RideID  types.ID
	Caller  types.Identity
	Content string
}

// Detail is a ride with its chat thread.
type Detail struct {
	Ride     *Ride
	Messages []Message
}

func (s *Service) RequestRide(ctx context.Context, cmd RequestCommand) (*Ride, error) {
	if cmd.Caller.Role != types.RolePassenger {
		return nil, ErrPassengerOnly
	}
	if err := validateRequest(cmd); err != nil {
		return nil, err
	}

	now := s.now()
	r := &Ride{
		ID:            types.NewID(),
		PassengerID:   cmd.Caller.ID,
		Status:        StatusRequested,
		Origin:        strings.TrimSpace(cmd.Origin),
		Destination:   strings.TrimSpace(cmd.Destination),
		Price:         types.RoundMoney(cmd.Price),
		DistanceKm:    cmd.DistanceKm,
		PaymentMethod: cmd.PaymentMethod,
		CreatedAt:     now,
	}
	err := s.runner.Do(ctx, func(ctx context.Context, tx pgx.Tx) error {
		// The passenger's user row serialises concurrent requests by the same passenger.
		if _, err := s.ledger.LockAccount(ctx, tx, cmd.Caller.ID); err != nil {
			return err
		}
		open, err := s.store.HasOpenForPassenger(ctx, tx, cmd.Caller.ID)
		if err != nil {
			return err
		}
		if open {
			return ErrActiveRide
		}
		if err := s.store.Create(ctx, tx, r); err != nil {
			return err
		}
		return s.store.AppendEvent(ctx, tx, &Event{
			RideID:     r.ID,
			FromStatus: StatusNone,
			ToStatus:   StatusRequested,
			ActorID:    &cmd.Caller.ID,
			CreatedAt:  now,
		})
	})
	if err != nil {
		s.logFailure("request ride", err, logrus.Fields{"user_id": cmd.Caller.ID})
		return nil, err
	}

	s.publish(ctx, events.TypeRideRequested, r, StatusNone, "")
	return r, nil
}

func validateRequest(cmd RequestCommand) error {
	if len(strings.TrimSpace(cmd.Origin)) < MinAddressLength || len(strings.TrimSpace(cmd.Destination)) < MinAddressLength {
		return ErrBadRequest.WithMessage("origin and destination must have at least %d characters", MinAddressLength)
	}
	if !types.RoundMoney(cmd.Price).IsPositive() {
		return ErrBadRequest.WithMessage("price must be positive")
	}
	if cmd.DistanceKm <= 0 {
		return ErrBadRequest.WithMessage("distance must be positive")
	}
	if !cmd.PaymentMethod.Valid() {
		return ErrBadRequest.WithMessage("unsupported payment method %q", cmd.PaymentMethod)
	}
	return nil
}

// AcceptRide claims a REQUESTED ride for the calling driver. Under concurrent
// attempts exactly one caller wins; the others see ErrRideUnavailable.
func (s *Service) AcceptRide(ctx context.Context, cmd AcceptCommand) (*Ride, error) {
	if cmd.Caller.Role != types.RoleDriver {
		return nil, ErrDriverOnly
	}

	start := s.now()
	var accepted *Ride
	err := s.runner.Do(ctx, func(ctx context.Context, tx pgx.Tx) error {
		r, err := s.store.GetForUpdate(ctx, tx, cmd.RideID)
		if err != nil {
			return err
		}
		if r.Status != StatusRequested {
			return ErrRideUnavailable
		}

		acct, err := s.ledger.LockAccount(ctx, tx, cmd.Caller.ID)
		if err != nil {
			return err
		}
		if acct.Role != types.RoleDriver {
			return ErrDriverOnly
		}
		fee := s.fees.Fee(r.Price)
		if acct.PrepaidCredits.LessThan(fee) {
			return ErrInsufficientFunds.WithMessage(
				"fee %s exceeds prepaid credits %s", fee.StringFixed(2), acct.PrepaidCredits.StringFixed(2))
		}

		now := s.now()
		updated, err := s.store.Accept(ctx, tx, r.ID, cmd.Caller.ID, now)
		if err != nil {
			return err
		}
		updated.PassengerName = r.PassengerName
		if err := s.store.AppendEvent(ctx, tx, &Event{
			RideID:     r.ID,
			FromStatus: StatusRequested,
			ToStatus:   StatusAccepted,
			ActorID:    &cmd.Caller.ID,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		accepted = updated
		return nil
	})
	observeUnit("accept", start, s.now(), err)
	observability.AcceptAttempts.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		s.logFailure("accept ride", err, logrus.Fields{"ride_id": cmd.RideID, "driver_id": cmd.Caller.ID})
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"ride_id": accepted.ID, "driver_id": cmd.Caller.ID}).Info("ride accepted")
	s.publish(ctx, events.TypeRideAccepted, accepted, StatusRequested, "")
	return accepted, nil
}

// UpdateRideStatus advances a ride for its assigned driver. Reaching
// COMPLETED settles the ride in the same unit of work; repeating COMPLETED is
// a no-op that returns the ride unchanged.
func (s *Service) UpdateRideStatus(ctx context.Context, cmd UpdateStatusCommand) (*Ride, error) {
	if cmd.Caller.Role != types.RoleDriver {
		return nil, ErrDriverOnly
	}
	if !IsDriverTarget(cmd.Target) {
		return nil, ErrInvalidTarget
	}

	start := s.now()
	var (
		result     *Ride
		from       Status
		settlement *ledger.Settlement
	)
	err := s.runner.Do(ctx, func(ctx context.Context, tx pgx.Tx) error {
		r, err := s.store.GetForUpdate(ctx, tx, cmd.RideID)
		if err != nil {
			return err
		}
		if r.DriverID == nil || *r.DriverID != cmd.Caller.ID {
			return ErrNotAssigned
		}
		from = r.Status
		if r.Status == StatusCompleted && cmd.Target == StatusCompleted {
			result = r
			return nil
		}
		if !CanTransition(r.Status, cmd.Target) {
			return ErrInvalidState.WithMessage("cannot move ride from %s to %s", r.Status, cmd.Target)
		}

		if cmd.Target == StatusCompleted {
			settlement, err = s.ledger.Settle(ctx, tx, ledger.SettleCommand{
				RideID:   r.ID,
				DriverID: *r.DriverID,
				Price:    r.Price,
			})
			if err != nil {
				return err
			}
		}

		now := s.now()
		updated, err := s.store.SetStatus(ctx, tx, r.ID, cmd.Target, now)
		if err != nil {
			return err
		}
		updated.PassengerName = r.PassengerName
		if err := s.store.AppendEvent(ctx, tx, &Event{
			RideID:     r.ID,
			FromStatus: r.Status,
			ToStatus:   cmd.Target,
			ActorID:    &cmd.Caller.ID,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		result = updated
		return nil
	})
	observeUnit("update_status", start, s.now(), err)
	if err != nil {
		s.logFailure("update ride status", err, logrus.Fields{
			"ride_id":   cmd.RideID,
			"driver_id": cmd.Caller.ID,
			"target":    cmd.Target,
		})
		return nil, err
	}
	if from == StatusCompleted {
		return result, nil
	}

	fee := ""
	if settlement != nil {
		observability.RideSettled(settlement.Fee)
		fee = settlement.Fee.StringFixed(2)
		s.log.WithFields(logrus.Fields{
			"ride_id":   result.ID,
			"driver_id": cmd.Caller.ID,
			"fee":       fee,
			"net":       settlement.Net.StringFixed(2),
		}).Info("ride settled")
	}
	typ := events.TypeRideStatus
	if cmd.Target == StatusCompleted {
		typ = events.TypeRideCompleted
	}
	s.publish(ctx, typ, result, from, fee)
	return result, nil
}

// CancelRide cancels a non-terminal ride on behalf of its passenger or driver.
func (s *Service) CancelRide(ctx context.Context, cmd CancelCommand) (*Ride, error) {
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = DefaultCancelReason
	}

	var (
		result *Ride
		from   Status
	)
	err := s.runner.Do(ctx, func(ctx context.Context, tx pgx.Tx) error {
		r, err := s.store.GetForUpdate(ctx, tx, cmd.RideID)
		if err != nil {
			return err
		}
		if !r.IsParty(cmd.Caller.ID) {
			return ErrNotParty
		}
		if !CanTransition(r.Status, StatusCancelled) {
			return ErrInvalidState.WithMessage("ride is already %s", r.Status)
		}
		from = r.Status

		now := s.now()
		updated, err := s.store.Cancel(ctx, tx, r.ID, reason, now)
		if err != nil {
			return err
		}
		updated.PassengerName = r.PassengerName
		if err := s.store.AppendEvent(ctx, tx, &Event{
			RideID:     r.ID,
			FromStatus: r.Status,
			ToStatus:   StatusCancelled,
			ActorID:    &cmd.Caller.ID,
			Note:       reason,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		s.logFailure("cancel ride", err, logrus.Fields{"ride_id": cmd.RideID, "user_id": cmd.Caller.ID})
		return nil, err
	}

	s.publish(ctx, events.TypeRideCancelled, result, from, "")
	return result, nil
}

// GetActiveRideForUser returns the user's accepted or in-progress ride, or nil.
func (s *Service) GetActiveRideForUser(ctx context.Context, userID types.ID) (*Ride, error) {
	r, err := s.store.ActiveForUser(ctx, userID)
	if err != nil {
		return nil, uow.Classify(err)
	}
	return r, nil
}

// ListAvailableRides returns REQUESTED rides, newest first.
func (s *Service) ListAvailableRides(ctx context.Context, limit int) ([]Ride, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	out, err := s.store.ListAvailable(ctx, limit)
	if err != nil {
		return nil, uow.Classify(err)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Ride, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, uow.Classify(err)
	}
	return r, nil
}

// GetRide returns a ride with its messages. Parties always see it; drivers
// may also view rides still open for acceptance.
func (s *Service) GetRide(ctx context.Context, id types.ID, caller types.Identity) (*Detail, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	openToDriver := caller.Role == types.RoleDriver && r.Status == StatusRequested
	if !r.IsParty(caller.ID) && !openToDriver {
		return nil, ErrNotParty
	}
	msgs, err := s.store.Messages(ctx, id)
	if err != nil {
		return nil, uow.Classify(err)
	}
	return &Detail{Ride: r, Messages: msgs}, nil
}

func (s *Service) SendMessage(ctx context.Context, cmd MessageCommand) (*Message, error) {
	content := strings.TrimSpace(cmd.Content)
	if content == "" {
		return nil, ErrBadRequest.WithMessage("message content is required")
	}
	if len(content) > MaxMessageLength {
		return nil, ErrBadRequest.WithMessage("message exceeds %d characters", MaxMessageLength)
	}
	r, err := s.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if !r.IsParty(cmd.Caller.ID) {
		return nil, ErrNotParty
	}
	m := &Message{
		ID:        types.NewID(),
		RideID:    r.ID,
		SenderID:  cmd.Caller.ID,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.store.AddMessage(ctx, m); err != nil {
		return nil, uow.Classify(err)
	}
	return m, nil
}

func (s *Service) publish(ctx context.Context, typ string, r *Ride, from Status, fee string) {
	e := events.RideEvent{
		Type:        typ,
		RideID:      string(r.ID),
		PassengerID: string(r.PassengerID),
		From:        string(from),
		To:          string(r.Status),
		Fee:         fee,
		At:          s.now(),
	}
	if r.DriverID != nil {
		e.DriverID = string(*r.DriverID)
	}
	if from != StatusNone {
		observability.RideTransitions.WithLabelValues(string(from), string(r.Status)).Inc()
	}
	// The unit has committed; a caller that went away must not drop the event.
	if err := s.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		s.log.WithError(err).WithField("ride_id", r.ID).Warn("publish ride event failed")
	}
}

// logFailure logs business rejections at info, transient failures at warn
// and everything else at error.
func (s *Service) logFailure(op string, err error, fields logrus.Fields) {
	entry := s.log.WithFields(fields).WithField("op", op)
	if e, ok := apperr.As(err); ok {
		entry = entry.WithField("reason", e.Reason)
	}
	switch apperr.KindOf(err) {
	case apperr.KindTransient:
		entry.WithError(err).Warn("ride operation failed, retryable")
	case apperr.KindFatal:
		entry.WithError(err).Error("ride operation failed")
	default:
		entry.Info(err.Error())
	}
}

func outcome(err error) string {
	if err == nil {
		return "accepted"
	}
	var e *apperr.Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return "error"
}

func observeUnit(op string, start, end time.Time, err error) {
	result := "ok"
	if err != nil {
		result = string(apperr.KindOf(err))
	}
	observability.UnitOfWorkDuration.WithLabelValues(op, result).Observe(end.Sub(start).Seconds())
}
