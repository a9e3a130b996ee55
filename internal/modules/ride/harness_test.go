// README: Test harness wiring the ride and ledger services onto the memory backend or Postgres.
package ride_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"urbanride/internal/events"
	"urbanride/internal/infra"
	"urbanride/internal/logging"
	"urbanride/internal/modules/ledger"
	"urbanride/internal/modules/pricing"
	"urbanride/internal/modules/ride"
	"urbanride/internal/storage/memory"
	"urbanride/internal/types"
	"urbanride/internal/uow"
)

type harness struct {
	rides     *ride.Service
	ledger    *ledger.Service
	published *recordingPublisher
	seed      func(t *testing.T, id types.ID, role types.Role, prepaid string)
}

type options struct {
	wrapLedger func(ledger.Repository) ledger.Repository
	enforce    bool
}

type recordingPublisher struct {
	mu       sync.Mutex
	events   []events.RideEvent
	attached int // publishes whose context could still be cancelled
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.RideEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	if ctx.Done() != nil {
		p.attached++
	}
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func build(t *testing.T, runner uow.Runner, rides ride.Repository, ledgerRepo ledger.Repository, opts options) *harness {
	t.Helper()
	if opts.wrapLedger != nil {
		ledgerRepo = opts.wrapLedger(ledgerRepo)
	}
	fees, err := pricing.NewService(pricing.DefaultRate)
	require.NoError(t, err)
	log := logging.Discard()
	ledgerSvc := ledger.NewService(runner, ledgerRepo, fees, ledger.Config{EnforceSolvencyAtSettlement: opts.enforce}, log)
	pub := &recordingPublisher{}
	return &harness{
		rides: ride.NewService(ride.Deps{
			Runner:    runner,
			Store:     rides,
			Ledger:    ledgerSvc,
			Fees:      fees,
			Publisher: pub,
			Log:       log,
		}),
		ledger:    ledgerSvc,
		published: pub,
	}
}

func newMemoryHarness(t *testing.T, opts options) *harness {
	t.Helper()
	db := memory.New(2 * time.Second)
	h := build(t, db, db.Rides(), db.Ledger(), opts)
	h.seed = func(t *testing.T, id types.ID, role types.Role, prepaid string) {
		db.SeedUser(id, "user "+string(id), role, decimal.RequireFromString(prepaid))
	}
	return h
}

// newPGHarness skips unless URBANRIDE_TEST_DSN points at a disposable database.
func newPGHarness(t *testing.T, opts options) *harness {
	t.Helper()
	dsn := os.Getenv("URBANRIDE_TEST_DSN")
	if dsn == "" {
		t.Skip("URBANRIDE_TEST_DSN not set; skipping Postgres-backed ride tests")
	}
	ctx := context.Background()
	pool, err := infra.NewDB(ctx, dsn, 32)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, infra.Migrate(ctx, pool))
	_, err = pool.Exec(ctx, "TRUNCATE TABLE chat_messages, ride_events, transactions, rides, users")
	require.NoError(t, err)

	h := build(t, uow.NewPGRunner(pool, 3*time.Second), ride.NewStore(pool), ledger.NewStore(pool), opts)
	h.seed = func(t *testing.T, id types.ID, role types.Role, prepaid string) {
		_, err := pool.Exec(ctx, `
			INSERT INTO users (id, name, email, role, car_model, license_plate, prepaid_credits)
			VALUES ($1, $2, $3, $4, 'Onix', 'ABC1D23', $5)`,
			string(id), "user "+string(id), string(id)+"@example.test", string(role), decimal.RequireFromString(prepaid),
		)
		require.NoError(t, err)
	}
	return h
}

// eachBackend runs fn against memory and, when configured, Postgres.
func eachBackend(t *testing.T, opts options, fn func(t *testing.T, h *harness)) {
	t.Run("memory", func(t *testing.T) { fn(t, newMemoryHarness(t, opts)) })
	t.Run("postgres", func(t *testing.T) { fn(t, newPGHarness(t, opts)) })
}

func passenger(id types.ID) types.Identity { return types.Identity{ID: id, Role: types.RolePassenger} }
func driver(id types.ID) types.Identity    { return types.Identity{ID: id, Role: types.RoleDriver} }

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (h *harness) request(t *testing.T, passengerID types.ID, price string) *ride.Ride {
	t.Helper()
	r, err := h.rides.RequestRide(context.Background(), ride.RequestCommand{
		Caller:        passenger(passengerID),
		Origin:        "Av. Paulista, 1000",
		Destination:   "Rua Augusta, 500",
		Price:         money(price),
		DistanceKm:    4.2,
		PaymentMethod: ride.PaymentPix,
	})
	require.NoError(t, err)
	return r
}

func (h *harness) account(t *testing.T, id types.ID) *ledger.Account {
	t.Helper()
	a, err := h.ledger.Balance(context.Background(), id)
	require.NoError(t, err)
	return a
}
