// README: Ride lifecycle events published after a unit of work commits.
package events

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	TypeRideRequested = "ride.requested"
	TypeRideAccepted  = "ride.accepted"
	TypeRideStatus    = "ride.status_changed"
	TypeRideCompleted = "ride.completed"
	TypeRideCancelled = "ride.cancelled"
)

type RideEvent struct {
	Type        string    `json:"type"`
	RideID      string    `json:"ride_id"`
	PassengerID string    `json:"passenger_id"`
	DriverID    string    `json:"driver_id,omitempty"`
	From        string    `json:"from,omitempty"`
	To          string    `json:"to"`
	Fee         string    `json:"fee,omitempty"`
	At          time.Time `json:"at"`
}

// Publisher delivers events best effort; failures never undo a commit.
type Publisher interface {
	Publish(ctx context.Context, e RideEvent) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, RideEvent) error { return nil }
func (NopPublisher) Close() error                             { return nil }

// LogPublisher writes events to the logger; used when no broker is configured.
type LogPublisher struct {
	Log logrus.FieldLogger
}

func (p LogPublisher) Publish(_ context.Context, e RideEvent) error {
	p.Log.WithFields(logrus.Fields{
		"event":   e.Type,
		"ride_id": e.RideID,
		"from":    e.From,
		"to":      e.To,
	}).Debug("ride event")
	return nil
}

func (LogPublisher) Close() error { return nil }
