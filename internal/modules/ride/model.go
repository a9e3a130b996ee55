// README: Ride aggregate, status definitions and the transition table.
package ride

import (
	"time"

	"github.com/shopspring/decimal"

	"urbanride/internal/types"
)

type Status string

const (
	StatusNone          Status = ""
	StatusRequested     Status = "REQUESTED"
	StatusAccepted      Status = "ACCEPTED"
	StatusDriverArrived Status = "DRIVER_ARRIVED"
	StatusRunning       Status = "RUNNING"
	StatusCompleted     Status = "COMPLETED"
	StatusCancelled     Status = "CANCELLED"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusRequested, StatusAccepted, StatusDriverArrived, StatusRunning, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCash       PaymentMethod = "CASH"
	PaymentPix        PaymentMethod = "PIX"
	PaymentCreditCard PaymentMethod = "CREDIT_CARD"
	PaymentDebitCard  PaymentMethod = "DEBIT_CARD"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentPix, PaymentCreditCard, PaymentDebitCard:
		return true
	}
	return false
}

type Ride struct {
	ID            types.ID
	PassengerID   types.ID
	PassengerName string
	DriverID      *types.ID
	DriverName    *string
	CarModel      *string
	LicensePlate  *string
	Status        Status
	Origin        string
	Destination   string
	Price         decimal.Decimal
	DistanceKm    float64
	PaymentMethod PaymentMethod
	CancelReason  *string
	CreatedAt     time.Time
	AcceptedAt    *time.Time
	ArrivedAt     *time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	CancelledAt   *time.Time
}

// IsParty reports whether userID is the ride's passenger or assigned driver.
func (r *Ride) IsParty(userID types.ID) bool {
	if r.PassengerID == userID {
		return true
	}
	return r.DriverID != nil && *r.DriverID == userID
}

// Driver is the profile snapshot copied onto a ride at acceptance.
type Driver struct {
	ID           types.ID
	Name         string
	CarModel     *string
	LicensePlate *string
}

type Event struct {
	ID         int64
	RideID     types.ID
	FromStatus Status
	ToStatus   Status
	ActorID    *types.ID
	Note       string
	CreatedAt  time.Time
}

type Message struct {
	ID        types.ID
	RideID    types.ID
	SenderID  types.ID
	Content   string
	CreatedAt time.Time
}

// AllowedTransitions is the ride state flow as code. Once accepted, the
// driver may set any of the in-progress statuses in any order, including the
// current one again; only COMPLETED and CANCELLED are final.
var AllowedTransitions = map[Status][]Status{
	StatusRequested:     {StatusAccepted, StatusCancelled},
	StatusAccepted:      {StatusDriverArrived, StatusRunning, StatusCompleted, StatusCancelled},
	StatusDriverArrived: {StatusDriverArrived, StatusRunning, StatusCompleted, StatusCancelled},
	StatusRunning:       {StatusDriverArrived, StatusRunning, StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// DriverTargets are the statuses a driver may request through UpdateRideStatus.
var DriverTargets = []Status{StatusDriverArrived, StatusRunning, StatusCompleted}

func IsDriverTarget(s Status) bool {
	for _, t := range DriverTargets {
		if t == s {
			return true
		}
	}
	return false
}

// ActiveStatuses are the statuses reported by GetActiveRideForUser.
var ActiveStatuses = []Status{StatusAccepted, StatusDriverArrived, StatusRunning}
