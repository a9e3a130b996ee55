// README: JSON views of domain types returned by the handlers.
package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"urbanride/internal/modules/ledger"
	"urbanride/internal/modules/ride"
	"urbanride/internal/modules/user"
	"urbanride/internal/types"
)

type rideResponse struct {
	ID            types.ID           `json:"id"`
	PassengerID   types.ID           `json:"passenger_id"`
	PassengerName string             `json:"passenger_name,omitempty"`
	DriverID      *types.ID          `json:"driver_id"`
	DriverName    *string            `json:"driver_name"`
	CarModel      *string            `json:"car_model"`
	LicensePlate  *string            `json:"license_plate"`
	Status        ride.Status        `json:"status"`
	Origin        string             `json:"origin"`
	Destination   string             `json:"destination"`
	Price         string             `json:"price"`
	DistanceKm    float64            `json:"distance_km"`
	PaymentMethod ride.PaymentMethod `json:"payment_method"`
	CancelReason  *string            `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	AcceptedAt    *time.Time         `json:"accepted_at,omitempty"`
	ArrivedAt     *time.Time         `json:"arrived_at,omitempty"`
	StartedAt     *time.Time         `json:"started_at,omitempty"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
	CancelledAt   *time.Time         `json:"cancelled_at,omitempty"`
}

func toRide(r *ride.Ride) *rideResponse {
	if r == nil {
		return nil
	}
	return &rideResponse{
		ID:            r.ID,
		PassengerID:   r.PassengerID,
		PassengerName: r.PassengerName,
		DriverID:      r.DriverID,
		DriverName:    r.DriverName,
		CarModel:      r.CarModel,
		LicensePlate:  r.LicensePlate,
		Status:        r.Status,
		Origin:        r.Origin,
		Destination:   r.Destination,
		Price:         money(r.Price),
		DistanceKm:    r.DistanceKm,
		PaymentMethod: r.PaymentMethod,
		CancelReason:  r.CancelReason,
		CreatedAt:     r.CreatedAt,
		AcceptedAt:    r.AcceptedAt,
		ArrivedAt:     r.ArrivedAt,
		StartedAt:     r.StartedAt,
		CompletedAt:   r.CompletedAt,
		CancelledAt:   r.CancelledAt,
	}
}

func toRides(rs []ride.Ride) []*rideResponse {
	out := make([]*rideResponse, 0, len(rs))
	for i := range rs {
		out = append(out, toRide(&rs[i]))
	}
	return out
}

type messageResponse struct {
	ID        types.ID  `json:"id"`
	SenderID  types.ID  `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func toMessage(m *ride.Message) messageResponse {
	return messageResponse{ID: m.ID, SenderID: m.SenderID, Content: m.Content, CreatedAt: m.CreatedAt}
}

type transactionResponse struct {
	ID          types.ID        `json:"id"`
	RideID      *types.ID       `json:"ride_id,omitempty"`
	Amount      string          `json:"amount"`
	Type        ledger.TxType   `json:"type"`
	Description string          `json:"description"`
	Status      ledger.TxStatus `json:"status"`
	ExternalRef *string         `json:"external_ref,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toTransaction(t *ledger.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		RideID:      t.RideID,
		Amount:      money(t.Amount),
		Type:        t.Type,
		Description: t.Description,
		Status:      t.Status,
		ExternalRef: t.ExternalRef,
		CreatedAt:   t.CreatedAt,
	}
}

type balanceResponse struct {
	PrepaidCredits string `json:"prepaid_credits"`
	PayableBalance string `json:"payable_balance"`
	Currency       string `json:"currency"`
}

type userResponse struct {
	ID             types.ID   `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Role           types.Role `json:"role"`
	CarModel       *string    `json:"car_model,omitempty"`
	LicensePlate   *string    `json:"license_plate,omitempty"`
	PrepaidCredits string     `json:"prepaid_credits"`
	PayableBalance string     `json:"payable_balance"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toUser(p *user.Profile) userResponse {
	return userResponse{
		ID:             p.ID,
		Name:           p.Name,
		Email:          p.Email,
		Role:           p.Role,
		CarModel:       p.CarModel,
		LicensePlate:   p.LicensePlate,
		PrepaidCredits: money(p.PrepaidCredits),
		PayableBalance: money(p.PayableBalance),
		CreatedAt:      p.CreatedAt,
	}
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }
