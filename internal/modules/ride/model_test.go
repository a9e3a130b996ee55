package ride

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"urbanride/internal/types"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusRequested, StatusAccepted, true},
		{StatusRequested, StatusCancelled, true},
		{StatusRequested, StatusRunning, false},
		{StatusRequested, StatusCompleted, false},
		{StatusAccepted, StatusDriverArrived, true},
		{StatusAccepted, StatusRunning, true},
		{StatusAccepted, StatusCompleted, true},
		{StatusAccepted, StatusRequested, false},
		{StatusAccepted, StatusAccepted, false},
		{StatusDriverArrived, StatusRunning, true},
		{StatusDriverArrived, StatusDriverArrived, true},
		{StatusDriverArrived, StatusAccepted, false},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusDriverArrived, true},
		{StatusRunning, StatusRunning, true},
		{StatusRunning, StatusAccepted, false},
		{StatusRunning, StatusCancelled, true},
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusCompleted, false},
		{StatusCancelled, StatusRequested, false},
		{StatusNone, StatusRequested, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for from := range AllowedTransitions {
		assert.False(t, from.Terminal(), "%s listed as a source", from)
	}
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestDriverTargets(t *testing.T) {
	assert.True(t, IsDriverTarget(StatusDriverArrived))
	assert.True(t, IsDriverTarget(StatusRunning))
	assert.True(t, IsDriverTarget(StatusCompleted))
	assert.False(t, IsDriverTarget(StatusAccepted))
	assert.False(t, IsDriverTarget(StatusCancelled))
	assert.False(t, IsDriverTarget("driver_arrived"))
}

func TestIsParty(t *testing.T) {
	driverID := types.ID("d1")
	r := &Ride{PassengerID: "p1"}
	assert.True(t, r.IsParty("p1"))
	assert.False(t, r.IsParty("d1"))
	r.DriverID = &driverID
	assert.True(t, r.IsParty("d1"))
	assert.False(t, r.IsParty("x"))
}

func TestPaymentMethodValid(t *testing.T) {
	for _, m := range []PaymentMethod{PaymentCash, PaymentPix, PaymentCreditCard, PaymentDebitCard} {
		assert.True(t, m.Valid(), m)
	}
	assert.False(t, PaymentMethod("cash").Valid())
	assert.False(t, PaymentMethod("").Valid())
}
