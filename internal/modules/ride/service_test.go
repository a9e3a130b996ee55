// README: Ride service tests: acceptance, state machine, settlement and cancellation.
package ride_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urbanride/internal/apperr"
	"urbanride/internal/events"
	"urbanride/internal/modules/ledger"
	"urbanride/internal/modules/ride"
	"urbanride/internal/types"
)

func TestAcceptRide_InsufficientFunds(t *testing.T) {
	eachBackend(t, options{}, func(t *testing.T, h *harness) {
		ctx := context.Background()
		h.seed(t, "p1", types.RolePassenger, "0")
		h.seed(t, "d1", types.RoleDriver, "5.00")
		r := h.request(t, "p1", "100.00")

		_, err := h.rides.AcceptRide(ctx, ride.AcceptCommand{RideID: r.ID, Caller: driver("d1")})
		require.ErrorIs(t, err, ride.ErrInsufficientFunds)
		assert.Equal(t, apperr.KindInsufficientFunds, apperr.KindOf(err))

		got, err := h.rides.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, ride.StatusRequested, got.Status)
		assert.Nil(t, got.DriverID)
		assert.Equal(t, "5.00", h.account(t, "d1").PrepaidCredits.StringFixed(2))
	})
}

func TestAcceptRide_ExactFeeIsEnough(t *testing.T) {
	eachBackend(t, options{}, func(t *testing.T, h *harness) {
		h.seed(t, "p1", types.RolePassenger, "0")
		h.seed(t, "d1", types.RoleDriver, "10.00")
		r := h.request(t, "p1", "100.00")

		got, err := h.rides.AcceptRide(context.Background(), ride.AcceptCommand{RideID: r.ID, Caller: driver("d1")})
		require.NoError(t, err)
		assert.Equal(t, ride.StatusAccepted, got.Status)
		require.NotNil(t, got.DriverID)
		assert.Equal(t, types.ID("d1"), *got.DriverID)
		require.NotNil(t, got.DriverName)
		assert.Equal(t, "user d1", *got.DriverName)
		assert.NotNil(t, got.AcceptedAt)
		assert.Equal(t, "user p1", got.PassengerName)
		// Acceptance only checks solvency.
		assert.Equal(t, "10.00", h.account(t, "d1").PrepaidCredits.StringFixed(2))
	})
}

func TestAcceptRide_Rejections(t *testing.T) {
	eachBackend(t, options{}, func(t *testing.T, h *harness) {
		ctx := context.Background()
		h.seed(t, "p1", types.RolePassenger, "0")
		h.seed(t, "d1", types.RoleDriver, "50")
		h.seed(t, "d2", types.RoleDriver, "50")
		h.seed(t, "p2", types.RolePassenger, "50")
		r := h.request(t, "p1", "30.00")

		_, err := h.rides.AcceptRide(ctx, ride.AcceptCommand{RideID: r.ID, Caller: passenger("p2")})
		assert.ErrorIs(t, err, ride.ErrDriverOnly)

		// A token claiming DRIVER for a passenger account is still refused.
		_, err = h.rides.AcceptRide(ctx, ride.AcceptCommand{RideID: r.ID, Caller: driver("p2")})
		assert.ErrorIs(t, err, ride.ErrDriverOnly)

		_, err = h.rides.AcceptRide(ctx, ride.AcceptCommand{RideID: "missing", Caller: driver("d1")})
		assert.ErrorIs(t, err, ride.ErrNotFound)

		_, err = h.rides.AcceptRide(ctx, ride.AcceptCommand{RideID: r.ID, Caller: driver("ghost")})
		assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

		_, err = h.rides.AcceptRide(ctx, ride.AcceptCommand{RideID: r.ID, Caller: driver("d1")})
		require.NoError(t, err)
		_, err = h.rides.AcceptRide(ctx, ride.AcceptCommand{RideID: r.ID, Caller: driver("d2")})
		assert.ErrorIs(t, err, ride.ErrRideUnavailable)
		// A stale double submit by the winner gets the same conflict.
		_, err = h.rides.AcceptRide(ctx, ride.AcceptCommand{RideID: r.ID, Caller: driver("d1")})
		assert.ErrorIs(t, err, ride.ErrRideUnavailable)
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	})
}

func TestSettlementScenario(t *testing.T) {
	eachBackend(t, options{}, func(t *testing.T, h *harness) {
		ctx := context.Background()
		h.seed(t, "p1", types.RolePassenger, "0")
		h.seed(t, "d1", types.RoleDriver, "50.00")
		r := h.request(t, "p1", "100.00")

		_, err := h.rides.AcceptRide(ctx, ride.AcceptCommand{RideID: r.ID, Caller: driver("d1")})
		require.NoError(t, err)
		for _, st := range []ride.Status{ride.StatusDriverArrived, ride.StatusRunning, ride.StatusCompleted} {
			got, err := h.rides.UpdateRideStatus(ctx, ride.UpdateStatusCommand{RideID: r.ID, Caller: driver("d1"), Target: st})
			require.NoError(t, err, "to %s", st)
			assert.Equal(t, st, got.Status)
		}

		got, err := h.rides.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.ArrivedAt)
		assert.NotNil(t, got.StartedAt)
		assert.NotNil(t, got.CompletedAt)

		acct := h.account(t, "d1")
		assert.Equal(t, "40.00", acct.PrepaidCredits.StringFixed(2))
		assert.Equal(t, "90.00", acct.PayableBalance.StringFixed(2))

		hist, err := h.ledger.History(ctx, "d1", 0)
		require.NoError(t, err)
		require.Len(t, hist, 2)
		byType := map[ledger.TxType]string{}
		for _, tx := range hist {
			require.NotNil(t, tx.RideID)
			assert.Equal(t, r.ID, *tx.RideID)
			byType[tx.Type] = tx.Amount.StringFixed(2)
		}
		assert.Equal(t, map[ledger.TxType]string{ledger.TypeFee: "10.00", ledger.TypeEarning: "100.00"}, byType)

		assert.Equal(t, []string{
			events.TypeRideRequested,
			events.TypeRideAccepted,
			events.TypeRideStatus,
			events.TypeRideStatus,
			events.TypeRideCompleted,
		}, h.published.kinds())
	})
}

func TestCompleteIsIdempotent(t *testing.T) {
	eachBackend(t, options{}, func(t *testing.T, h *harness) {
		ctx := context.Background()
		h.seed(t, "p1", types.RolePassenger, "0")
		h.seed(t, "d1", types.RoleDriver, "50.00")
		r := h.request(t, "p1", "100.00")
		_, err := h.rides.AcceptRide(ctx, ride.AcceptCommand{RideID: r.ID, Caller: driver("d1")})
		require.NoError(t, err)

		complete := ride.UpdateStatusCommand{RideID: r.ID, Caller: driver("d1"), Target: ride.StatusCompleted}
		first, err := h.rides.UpdateRideStatus(ctx, complete)
		require.NoError(t, err)
		second, err := h.rides.UpdateRideStatus(ctx, complete)
		require.NoError(t, err)
		assert.Equal(t, ride.StatusCompleted, second.Status)
		assert.True(t, first.CompletedAt.Equal(*second.CompletedAt))

		acct := h.account(t, "d1")
		assert.Equal(t, "40.00", acct.PrepaidCredits.StringFixed(2))
		assert.Equal(t, "90.00", acct.PayableBalance.StringFixed(2))
		hist, err := h.ledger.History(ctx, "d1", 0)
		require.NoError(t, err)
		assert.Len(t, hist, 2)
	})
}

var errInjected = errors.New("injected ledger failure")

type failingAppend struct {
	ledger.Repository
	failOn ledger.TxType
}

func (f failingAppend) Append(ctx context.Context, tx pgx.Tx, t *ledger.Transaction) error {
	if t.Type == f.failOn {
		return errInjected
	}
	return f.Repository.Append(ctx, tx, t)
}

func TestSettlementIsAtomic(t *testing.T) {
	for _, failOn := range []ledger.TxType{ledger.TypeFee, ledger.TypeEarning} {
		t.Run(string(failOn), func(t *testing.T) {
			opts := options{wrapLedger: func(r ledger.Repository) ledger.Repository {
				return failingAppend{Repository: r, failOn: failOn}
			}}
			eachBackend(t, opts, func(t *testing.T, h *harness) {
				ctx := context.Background()
				h.seed(t, "p1", types.RolePassenger, "0")
				h.seed(t, "d1", types.RoleDriver, "50.00")
				r := h.request(t, "p1", "100.00")
				_, err := h.rides.AcceptRide(ctx, ride.AcceptCommand{RideID: r.ID, Caller: driver("d1")})
				require.NoError(t, err)
				_, err = h.rides.UpdateRideStatus(ctx, ride.UpdateStatusCommand{RideID: r.ID, Caller: driver("d1"), Target: ride.StatusRunning})
				require.NoError(t, err)

				_, err = h.rides.UpdateRideStatus(ctx, ride.UpdateStatusCommand{RideID: r.ID, Caller: driver("d1"), Target: ride.StatusCompleted})
				require.ErrorIs(t, err, errInjected)
				assert.Equal(t, apperr.KindFatal, apperr.KindOf(err))

				got, err := h.rides.Get(ctx, r.ID)
				require.NoError(t, err)
				assert.Equal(t, ride.StatusRunning, got.Status)
				assert.Nil(t, got.CompletedAt)

				acct := h.account(t, "d1")
				assert.Equal(t, "50.00", acct.PrepaidCredits.StringFixed(2))
				assert.True(t, acct.PayableBalance.IsZero())
				hist, err := h.ledger.History(ctx, "d1", 0)
				require.NoError(t, err)
				assert.Empty(t, hist)
			})
		})
	}
}

func TestSettlement_SolvencyNotRecheckedByDefault(t *testing.T) {
	eachBackend(t, options{}, func(t *testing.T, h *harness) {
		ctx := context.Background()
		h.seed(t, "p1", types.RolePassenger, "0")
		h.seed(t, "p2", types.RolePassenger, "0")
		h.seed(t, "d1", types.RoleDriver, "10.00")
		r1 := h.request(t, "p1", "100.00")
		r2 := h.request(t, "p2", "100.00")

		// Both accepts pass the check against the same 10.00.
		for _, id := range []types.ID{r1.ID, r2.ID} {
			_, err := h.rides.AcceptRide(ctx, ride.AcceptCommand{RideID: id, Caller: driver("d1")})
			require.NoError(t, err)
		}
		for _, id := range []types.ID{r1.ID, r2.ID} {
			_, err := h.rides.UpdateRideStatus(ctx, ride.UpdateStatusCommand{RideID: id, Caller: driver("d1"), Target: ride.StatusCompleted})
			require.NoError(t, err)
		}
		assert.Equal(t, "-10.00", h.account(t, "d1").PrepaidCredits.StringFixed(2))
	})
}

func TestSettlement_SolvencyEnforced(t *testing.T) {
	eachBackend(t, options{enforce: true}, func(t *testing.T, h *harness) {
		ctx := context.Background()
		h.seed(t, "p1", types.RolePassenger, "0")
		h.seed(t, "p2", types.RolePassenger, "0")
		h.seed(t, "d1", types.RoleDriver, "10.00")
		r1 := h.request(t, "p1", "100.00")
		r2 := h.request(t, "p2", "100.00")
		for _, id := range []types.ID{r1.ID, r2.ID} {
			_, err := h.rides.AcceptRide(ctx, ride.AcceptCommand{RideID: id, Caller: driver("d1")})
			require.NoError(t, err)
		}
		_, err := h.rides.UpdateRideStatus(ctx, ride.UpdateStatusCommand{RideID: r1.ID, Caller: driver("d1"), Target: ride.StatusCompleted})
		require.NoError(t, err)
		_, err = h.rides.UpdateRideStatus(ctx, ride.UpdateStatusCommand{RideID: r2.ID, Caller: driver("d1"), Target: ride.StatusCompleted})
		require.ErrorIs(t, err, ledger.ErrInsufficientCredits)

		got, err := h.rides.Get(ctx, r2.ID)
		require.NoError(t, err)
		assert.Equal(t, ride.StatusAccepted, got.Status)
		assert.Equal(t, "0.00", h.account(t, "d1").PrepaidCredits.StringFixed(2))
	})
}

func TestUpdateRideStatus_Guards(t *testing.T) {
	eachBackend(t, options{}, func(t *testing.T, h *harness) {
		ctx := context.Background()
		h.seed(t, "p1", types.RolePassenger, "0")
		h.seed(t, "d1", types.RoleDriver, "50")
		h.seed(t, "d2", types.RoleDriver, "50")
		r := h.request(t, "p1", "20.00")

		_, err := h.rides.UpdateRideStatus(ctx, ride.UpdateStatusCommand{RideID: r.ID, Caller: driver("d1"), Target: ride.StatusRunning})
		assert.ErrorIs(t, err, ride.ErrNotAssigned, "unassigned ride")

		_, err = h.rides.AcceptRide(ctx, ride.AcceptCommand{RideID: r.ID, Caller: driver("d1")})
		require.NoError(t, err)

		_, err = h.rides.UpdateRideStatus(ctx, ride.UpdateStatusCommand{RideID: r.ID, Caller: driver("d2"), Target: ride.StatusRunning})
		assert.ErrorIs(t, err, ride.ErrNotAssigned)

		_, err = h.rides.UpdateRideStatus(ctx, ride.UpdateStatusCommand{RideID: r.ID, Caller: passenger("p1"), Target: ride.StatusRunning})
		assert.ErrorIs(t, err, ride.ErrDriverOnly)

		for _, bad := range []ride.Status{ride.StatusAccepted, ride.StatusCancelled, ride.StatusRequested, "FLYING"} {
			_, err = h.rides.UpdateRideStatus(ctx, ride.UpdateStatusCommand{RideID: r.ID, Caller: driver("d1"), Target: bad})
			assert.ErrorIs(t, err, ride.ErrInvalidTarget, "target %s", bad)
		}

		update := func(target ride.Status) (*ride.Ride, error) {
			return h.rides.UpdateRideStatus(ctx, ride.UpdateStatusCommand{RideID: r.ID, Caller: driver("d1"), Target: target})
		}

		got, err := update(ride.StatusDriverArrived)
		require.NoError(t, err)
		assert.NotNil(t, got.ArrivedAt)
		got, err = update(ride.StatusDriverArrived)
		require.NoError(t, err, "repeating the current status is accepted")
		assert.Equal(t, ride.StatusDriverArrived, got.Status)

		got, err = update(ride.StatusRunning)
		require.NoError(t, err)
		assert.NotNil(t, got.StartedAt)
		got, err = update(ride.StatusDriverArrived)
		require.NoError(t, err, "in-progress statuses may be set in any order")
		assert.Equal(t, ride.StatusDriverArrived, got.Status)
		assert.NotNil(t, got.ArrivedAt)
		assert.NotNil(t, got.StartedAt)

		_, err = update(ride.StatusCompleted)
		require.NoError(t, err)
		_, err = update(ride.StatusDriverArrived)
		assert.ErrorIs(t, err, ride.ErrInvalidState, "completed rides are final")
		_, err = update(ride.StatusRunning)
		assert.ErrorIs(t, err, ride.ErrInvalidState)

		_, err = h.rides.UpdateRideStatus(ctx, ride.UpdateStatusCommand{RideID: "missing", Caller: driver("d1"), Target: ride.StatusRunning})
		assert.ErrorIs(t, err, ride.ErrNotFound)
	})
}

func TestCancelRide(t *testing.T) {
	eachBackend(t, options{}, func(t *testing.T, h *harness) {
		ctx := context.Background()
		h.seed(t, "d1", types.RoleDriver, "100")
		h.seed(t, "stranger", types.RolePassenger, "0")

		// Drive a fresh ride to each status, then cancel it.
		reach := func(t *testing.T, passengerID types.ID, target ride.Status) *ride.Ride {
			h.seed(t, passengerID, types.RolePassenger, "0")
			r := h.request(t, passengerID, "25.00")
			if target == ride.StatusRequested {
				return r
			}
			_, err := h.rides.AcceptRide(ctx, ride.AcceptCommand{RideID: r.ID, Caller: driver("d1")})
			require.NoError(t, err)
			if target != ride.StatusAccepted {
				_, err = h.rides.UpdateRideStatus(ctx, ride.UpdateStatusCommand{RideID: r.ID, Caller: driver("d1"), Target: target})
				require.NoError(t, err)
			}
			return r
		}

		cases := []struct {
			from   ride.Status
			caller func(r *ride.Ride) types.Identity
			ok     bool
		}{
			{ride.StatusRequested, func(r *ride.Ride) types.Identity { return passenger(r.PassengerID) }, true},
			{ride.StatusAccepted, func(*ride.Ride) types.Identity { return driver("d1") }, true},
			{ride.StatusDriverArrived, func(r *ride.Ride) types.Identity { return passenger(r.PassengerID) }, true},
			{ride.StatusRunning, func(*ride.Ride) types.Identity { return driver("d1") }, true},
			{ride.StatusCompleted, func(r *ride.Ride) types.Identity { return passenger(r.PassengerID) }, false},
		}
		for i, tc := range cases {
			r := reach(t, types.ID("pc"+string(rune('a'+i))), tc.from)
			got, err := h.rides.CancelRide(ctx, ride.CancelCommand{RideID: r.ID, Caller: tc.caller(r)})
			if !tc.ok {
				assert.ErrorIs(t, err, ride.ErrInvalidState, "from %s", tc.from)
				continue
			}
			require.NoError(t, err, "from %s", tc.from)
			assert.Equal(t, ride.StatusCancelled, got.Status)
			require.NotNil(t, got.CancelReason)
			assert.Equal(t, ride.DefaultCancelReason, *got.CancelReason)
			assert.NotNil(t, got.CancelledAt)

			_, err = h.rides.CancelRide(ctx, ride.CancelCommand{RideID: r.ID, Caller: tc.caller(r), Reason: "again"})
			assert.ErrorIs(t, err, ride.ErrInvalidState, "cancel twice from %s", tc.from)
		}

		r := reach(t, "pz", ride.StatusRequested)
		_, err := h.rides.CancelRide(ctx, ride.CancelCommand{RideID: r.ID, Caller: passenger("stranger")})
		assert.ErrorIs(t, err, ride.ErrNotParty)
		got, err := h.rides.CancelRide(ctx, ride.CancelCommand{RideID: r.ID, Caller: passenger("pz"), Reason: "  changed plans "})
		require.NoError(t, err)
		assert.Equal(t, "changed plans", *got.CancelReason)

		_, err = h.rides.CancelRide(ctx, ride.CancelCommand{RideID: "missing", Caller: passenger("pz")})
		assert.ErrorIs(t, err, ride.ErrNotFound)
	})
}

func TestCancelAfterAcceptDoesNotTouchLedger(t *testing.T) {
	eachBackend(t, options{}, func(t *testing.T, h *harness) {
		ctx := context.Background()
		h.seed(t, "p1", types.RolePassenger, "0")
		h.seed(t, "d1", types.RoleDriver, "50")
		r := h.request(t, "p1", "100.00")
		_, err := h.rides.AcceptRide(ctx, ride.AcceptCommand{RideID: r.ID, Caller: driver("d1")})
		require.NoError(t, err)
		_, err = h.rides.CancelRide(ctx, ride.CancelCommand{RideID: r.ID, Caller: passenger("p1")})
		require.NoError(t, err)

		assert.Equal(t, "50.00", h.account(t, "d1").PrepaidCredits.StringFixed(2))
		hist, err := h.ledger.History(ctx, "d1", 0)
		require.NoError(t, err)
		assert.Empty(t, hist)
	})
}

func TestRequestRide(t *testing.T) {
	eachBackend(t, options{}, func(t *testing.T, h *harness) {
		ctx := context.Background()
		h.seed(t, "p1", types.RolePassenger, "0")
		h.seed(t, "d1", types.RoleDriver, "0")

		valid := ride.RequestCommand{
			Caller:        passenger("p1"),
			Origin:        "Av. Paulista, 1000",
			Destination:   "Rua Augusta, 500",
			Price:         money("18.456"),
			DistanceKm:    3,
			PaymentMethod: ride.PaymentCash,
		}

		bad := []func(c *ride.RequestCommand){
			func(c *ride.RequestCommand) { c.Origin = "abc" },
			func(c *ride.RequestCommand) { c.Destination = "   " },
			func(c *ride.RequestCommand) { c.Price = money("0") },
			func(c *ride.RequestCommand) { c.Price = money("-5") },
			func(c *ride.RequestCommand) { c.DistanceKm = 0 },
			func(c *ride.RequestCommand) { c.PaymentMethod = "BITCOIN" },
		}
		for i, mutate := range bad {
			cmd := valid
			mutate(&cmd)
			_, err := h.rides.RequestRide(ctx, cmd)
			assert.ErrorIs(t, err, ride.ErrBadRequest, "case %d", i)
		}

		asDriver := valid
		asDriver.Caller = driver("d1")
		_, err := h.rides.RequestRide(ctx, asDriver)
		assert.ErrorIs(t, err, ride.ErrPassengerOnly)

		r, err := h.rides.RequestRide(ctx, valid)
		require.NoError(t, err)
		assert.Equal(t, ride.StatusRequested, r.Status)
		assert.Equal(t, "18.46", r.Price.StringFixed(2))

		_, err = h.rides.RequestRide(ctx, valid)
		assert.ErrorIs(t, err, ride.ErrActiveRide)

		_, err = h.rides.CancelRide(ctx, ride.CancelCommand{RideID: r.ID, Caller: passenger("p1")})
		require.NoError(t, err)
		_, err = h.rides.RequestRide(ctx, valid)
		assert.NoError(t, err, "a cancelled ride frees the passenger")

		ghost := valid
		ghost.Caller = passenger("ghost")
		_, err = h.rides.RequestRide(ctx, ghost)
		assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	})
}

func TestGetActiveRideForUser(t *testing.T) {
	eachBackend(t, options{}, func(t *testing.T, h *harness) {
		ctx := context.Background()
		h.seed(t, "p1", types.RolePassenger, "0")
		h.seed(t, "d1", types.RoleDriver, "50")
		r := h.request(t, "p1", "40.00")

		got, err := h.rides.GetActiveRideForUser(ctx, "p1")
		require.NoError(t, err)
		assert.Nil(t, got, "REQUESTED is not active")

		_, err = h.rides.AcceptRide(ctx, ride.AcceptCommand{RideID: r.ID, Caller: driver("d1")})
		require.NoError(t, err)
		for _, id := range []types.ID{"p1", "d1"} {
			got, err = h.rides.GetActiveRideForUser(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, got, id)
			assert.Equal(t, r.ID, got.ID)
		}

		_, err = h.rides.UpdateRideStatus(ctx, ride.UpdateStatusCommand{RideID: r.ID, Caller: driver("d1"), Target: ride.StatusCompleted})
		require.NoError(t, err)
		got, err = h.rides.GetActiveRideForUser(ctx, "d1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestListAvailableRides(t *testing.T) {
	eachBackend(t, options{}, func(t *testing.T, h *harness) {
		ctx := context.Background()
		h.seed(t, "d1", types.RoleDriver, "50")
		var ids []types.ID
		for i := 0; i < 4; i++ {
			pid := types.ID("pl" + string(rune('a'+i)))
			h.seed(t, pid, types.RolePassenger, "0")
			ids = append(ids, h.request(t, pid, "12.00").ID)
			time.Sleep(2 * time.Millisecond)
		}
		_, err := h.rides.AcceptRide(ctx, ride.AcceptCommand{RideID: ids[3], Caller: driver("d1")})
		require.NoError(t, err)

		got, err := h.rides.ListAvailableRides(ctx, 0)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []types.ID{ids[2], ids[1], ids[0]}, []types.ID{got[0].ID, got[1].ID, got[2].ID})
		assert.Equal(t, "user plc", got[0].PassengerName)

		got, err = h.rides.ListAvailableRides(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}

func TestMessages(t *testing.T) {
	eachBackend(t, options{}, func(t *testing.T, h *harness) {
		ctx := context.Background()
		h.seed(t, "p1", types.RolePassenger, "0")
		h.seed(t, "d1", types.RoleDriver, "50")
		h.seed(t, "d2", types.RoleDriver, "50")
		r := h.request(t, "p1", "40.00")

		detail, err := h.rides.GetRide(ctx, r.ID, driver("d2"))
		require.NoError(t, err, "open rides are visible to drivers")
		assert.Empty(t, detail.Messages)

		_, err = h.rides.AcceptRide(ctx, ride.AcceptCommand{RideID: r.ID, Caller: driver("d1")})
		require.NoError(t, err)

		_, err = h.rides.GetRide(ctx, r.ID, driver("d2"))
		assert.ErrorIs(t, err, ride.ErrNotParty)

		_, err = h.rides.SendMessage(ctx, ride.MessageCommand{RideID: r.ID, Caller: passenger("p1"), Content: "  "})
		assert.ErrorIs(t, err, ride.ErrBadRequest)
		_, err = h.rides.SendMessage(ctx, ride.MessageCommand{RideID: r.ID, Caller: driver("d2"), Content: "hi"})
		assert.ErrorIs(t, err, ride.ErrNotParty)

		_, err = h.rides.SendMessage(ctx, ride.MessageCommand{RideID: r.ID, Caller: passenger("p1"), Content: "I'm at the gate"})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
		_, err = h.rides.SendMessage(ctx, ride.MessageCommand{RideID: r.ID, Caller: driver("d1"), Content: "2 minutes"})
		require.NoError(t, err)

		detail, err = h.rides.GetRide(ctx, r.ID, passenger("p1"))
		require.NoError(t, err)
		require.Len(t, detail.Messages, 2)
		assert.Equal(t, "I'm at the gate", detail.Messages[0].Content)
		assert.Equal(t, types.ID("d1"), detail.Messages[1].SenderID)
	})
}

func TestEventsPublishedDetachedFromCaller(t *testing.T) {
	eachBackend(t, options{}, func(t *testing.T, h *harness) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		h.seed(t, "p1", types.RolePassenger, "0")
		h.seed(t, "d1", types.RoleDriver, "50")

		r, err := h.rides.RequestRide(ctx, ride.RequestCommand{
			Caller:        passenger("p1"),
			Origin:        "Av. Paulista, 1000",
			Destination:   "Rua Augusta, 500",
			Price:         money("30.00"),
			DistanceKm:    3,
			PaymentMethod: ride.PaymentPix,
		})
		require.NoError(t, err)
		_, err = h.rides.AcceptRide(ctx, ride.AcceptCommand{RideID: r.ID, Caller: driver("d1")})
		require.NoError(t, err)

		assert.Len(t, h.published.kinds(), 2)
		h.published.mu.Lock()
		defer h.published.mu.Unlock()
		assert.Zero(t, h.published.attached)
	})
}
