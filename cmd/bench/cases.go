// README: Bench scenarios: acceptance race, solvency check, settlement totals, idempotent completion, cancel legality.
package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"urbanride/internal/apperr"
	"urbanride/internal/config"
	"urbanride/internal/infra"
	"urbanride/internal/modules/ledger"
	"urbanride/internal/modules/pricing"
	"urbanride/internal/modules/ride"
	"urbanride/internal/modules/user"
	"urbanride/internal/storage/memory"
	"urbanride/internal/types"
	"urbanride/internal/uow"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusSkip = "SKIP"
)

var (
	standardCredits = decimal.RequireFromString("50.00")
	lowCredits      = decimal.RequireFromString("5.00")
	ridePrice       = decimal.RequireFromString("100.00")
)

type Runner struct {
	cfg    Config
	log    logrus.FieldLogger
	pool   *pgxpool.Pool
	rides  *ride.Service
	ledger *ledger.Service
	// drivers registered through lowUsers start with lowCredits.
	users    *user.Service
	lowUsers *user.Service
}

type Result struct {
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(ctx context.Context, cfg Config, log logrus.FieldLogger) (*Runner, error) {
	var (
		runner    uow.Runner
		rideRepo  ride.Repository
		ledgerRep ledger.Repository
		userRepo  user.Repository
		pool      *pgxpool.Pool
	)
	switch cfg.Storage {
	case config.StorageMemory:
		db := memory.New(cfg.LockTimeout)
		runner, rideRepo, ledgerRep, userRepo = db, db.Rides(), db.Ledger(), db.Users()
	case config.StoragePostgres:
		var err error
		pool, err = infra.NewDB(ctx, cfg.DSN, int32(cfg.Concurrency+5))
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := infra.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		runner = uow.NewPGRunner(pool, cfg.LockTimeout)
		rideRepo, ledgerRep, userRepo = ride.NewStore(pool), ledger.NewStore(pool), user.NewStore(pool)
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}

	fees, err := pricing.NewService(pricing.DefaultRate)
	if err != nil {
		return nil, err
	}
	ledgerSvc := ledger.NewService(runner, ledgerRep, fees, ledger.Config{}, log)
	return &Runner{
		cfg:    cfg,
		log:    log,
		pool:   pool,
		ledger: ledgerSvc,
		rides: ride.NewService(ride.Deps{
			Runner: runner,
			Store:  rideRepo,
			Ledger: ledgerSvc,
			Fees:   fees,
			Log:    log,
		}),
		users:    user.NewService(runner, userRepo, ledgerRep, standardCredits, log),
		lowUsers: user.NewService(runner, userRepo, ledgerRep, lowCredits, log),
	}, nil
}

func (r *Runner) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: storage reachable", Run: caseStorage},
		{Name: "Accept: concurrent drivers, one winner", Run: caseAcceptRace},
		{Name: "Accept: fee above prepaid credits is rejected", Run: caseInsufficientFunds},
		{Name: "Settle: fee debited, earning credited", Run: caseSettlement},
		{Name: "Settle: repeated completion settles once", Run: caseIdempotentCompletion},
		{Name: "Cancel: legal from open states only", Run: caseCancelLegality},
	}
}

func caseStorage(ctx context.Context, r *Runner) Result {
	if r.pool == nil {
		return Result{Status: StatusPass, Note: "memory backend"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	start := time.Now()
	if err := r.pool.Ping(ctx); err != nil {
		return fail(err)
	}
	return Result{Status: StatusPass, Latency: time.Since(start)}
}

func caseAcceptRace(ctx context.Context, r *Runner) Result {
	passenger, err := r.register(ctx, r.users, types.RolePassenger)
	if err != nil {
		return fail(err)
	}
	rd, err := r.request(ctx, passenger, ridePrice)
	if err != nil {
		return fail(err)
	}
	drivers := make([]types.Identity, r.cfg.Concurrency)
	for i := range drivers {
		if drivers[i], err = r.register(ctx, r.users, types.RoleDriver); err != nil {
			return fail(err)
		}
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []types.ID
		conflicts int
		others    []error
	)
	start := time.Now()
	for _, d := range drivers {
		wg.Add(1)
		go func(d types.Identity) {
			defer wg.Done()
			_, err := r.rides.AcceptRide(ctx, ride.AcceptCommand{RideID: rd.ID, Caller: d})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, d.ID)
			case apperr.KindOf(err) == apperr.KindConflict:
				conflicts++
			default:
				others = append(others, err)
			}
		}(d)
	}
	wg.Wait()
	elapsed := time.Since(start)

	if len(others) > 0 {
		return fail(others[0])
	}
	if len(winners) != 1 {
		return failf("expected one winner, got %d", len(winners))
	}
	got, err := r.rides.Get(ctx, rd.ID)
	if err != nil {
		return fail(err)
	}
	if got.DriverID == nil || *got.DriverID != winners[0] {
		return failf("ride driver does not match winner %s", winners[0])
	}
	return Result{Status: StatusPass, Latency: elapsed, Note: fmt.Sprintf("%d drivers, %d conflicts", len(drivers), conflicts)}
}

func caseInsufficientFunds(ctx context.Context, r *Runner) Result {
	passenger, err := r.register(ctx, r.users, types.RolePassenger)
	if err != nil {
		return fail(err)
	}
	driver, err := r.register(ctx, r.lowUsers, types.RoleDriver)
	if err != nil {
		return fail(err)
	}
	rd, err := r.request(ctx, passenger, ridePrice)
	if err != nil {
		return fail(err)
	}
	_, err = r.rides.AcceptRide(ctx, ride.AcceptCommand{RideID: rd.ID, Caller: driver})
	if apperr.KindOf(err) != apperr.KindInsufficientFunds {
		return failf("expected insufficient_funds, got %v", err)
	}
	got, err := r.rides.Get(ctx, rd.ID)
	if err != nil {
		return fail(err)
	}
	if got.Status != ride.StatusRequested {
		return failf("ride moved to %s", got.Status)
	}
	return Result{Status: StatusPass}
}

func caseSettlement(ctx context.Context, r *Runner) Result {
	driver, rideID, err := r.completedRide(ctx, 1)
	if err != nil {
		return fail(err)
	}
	return r.checkSettled(ctx, driver, rideID)
}

func caseIdempotentCompletion(ctx context.Context, r *Runner) Result {
	driver, rideID, err := r.completedRide(ctx, 5)
	if err != nil {
		return fail(err)
	}
	return r.checkSettled(ctx, driver, rideID)
}

func caseCancelLegality(ctx context.Context, r *Runner) Result {
	paths := map[ride.Status][]ride.Status{
		ride.StatusRequested:     nil,
		ride.StatusAccepted:      {},
		ride.StatusDriverArrived: {ride.StatusDriverArrived},
		ride.StatusRunning:       {ride.StatusDriverArrived, ride.StatusRunning},
	}
	for from, steps := range paths {
		passenger, rideID, err := r.rideAt(ctx, steps, from != ride.StatusRequested)
		if err != nil {
			return fail(err)
		}
		if _, err := r.rides.CancelRide(ctx, ride.CancelCommand{RideID: rideID, Caller: passenger}); err != nil {
			return failf("cancel from %s: %v", from, err)
		}
	}

	passenger, rideID, err := r.rideAt(ctx, []ride.Status{ride.StatusCompleted}, true)
	if err != nil {
		return fail(err)
	}
	_, err = r.rides.CancelRide(ctx, ride.CancelCommand{RideID: rideID, Caller: passenger})
	if apperr.KindOf(err) != apperr.KindConflict {
		return failf("cancel from COMPLETED: expected conflict, got %v", err)
	}
	_, err = r.rides.CancelRide(ctx, ride.CancelCommand{RideID: rideID, Caller: passenger})
	if apperr.KindOf(err) != apperr.KindConflict {
		return failf("second cancel: expected conflict, got %v", err)
	}
	return Result{Status: StatusPass}
}

// completedRide accepts a ride and sends COMPLETED from `callers` goroutines at once.
func (r *Runner) completedRide(ctx context.Context, callers int) (types.Identity, types.ID, error) {
	passenger, err := r.register(ctx, r.users, types.RolePassenger)
	if err != nil {
		return types.Identity{}, "", err
	}
	driver, err := r.register(ctx, r.users, types.RoleDriver)
	if err != nil {
		return types.Identity{}, "", err
	}
	rd, err := r.request(ctx, passenger, ridePrice)
	if err != nil {
		return types.Identity{}, "", err
	}
	if _, err := r.rides.AcceptRide(ctx, ride.AcceptCommand{RideID: rd.ID, Caller: driver}); err != nil {
		return types.Identity{}, "", err
	}

	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.rides.UpdateRideStatus(ctx, ride.UpdateStatusCommand{RideID: rd.ID, Caller: driver, Target: ride.StatusCompleted})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return types.Identity{}, "", err
		}
	}
	return driver, rd.ID, nil
}

// rideAt returns a ride accepted by a fresh driver (when accept is set) and
// walked through steps.
func (r *Runner) rideAt(ctx context.Context, steps []ride.Status, accept bool) (types.Identity, types.ID, error) {
	passenger, err := r.register(ctx, r.users, types.RolePassenger)
	if err != nil {
		return types.Identity{}, "", err
	}
	rd, err := r.request(ctx, passenger, decimal.RequireFromString("25.00"))
	if err != nil {
		return types.Identity{}, "", err
	}
	if !accept {
		return passenger, rd.ID, nil
	}
	driver, err := r.register(ctx, r.users, types.RoleDriver)
	if err != nil {
		return types.Identity{}, "", err
	}
	if _, err := r.rides.AcceptRide(ctx, ride.AcceptCommand{RideID: rd.ID, Caller: driver}); err != nil {
		return types.Identity{}, "", err
	}
	for _, st := range steps {
		if _, err := r.rides.UpdateRideStatus(ctx, ride.UpdateStatusCommand{RideID: rd.ID, Caller: driver, Target: st}); err != nil {
			return types.Identity{}, "", err
		}
	}
	return passenger, rd.ID, nil
}

func (r *Runner) checkSettled(ctx context.Context, driver types.Identity, rideID types.ID) Result {
	acct, err := r.ledger.Balance(ctx, driver.ID)
	if err != nil {
		return fail(err)
	}
	if !acct.PrepaidCredits.Equal(decimal.RequireFromString("40.00")) || !acct.PayableBalance.Equal(decimal.RequireFromString("90.00")) {
		return failf("balances prepaid=%s payable=%s, want 40.00/90.00", acct.PrepaidCredits.StringFixed(2), acct.PayableBalance.StringFixed(2))
	}
	history, err := r.ledger.History(ctx, driver.ID, ledger.MaxHistoryLimit)
	if err != nil {
		return fail(err)
	}
	counts := map[ledger.TxType]int{}
	for _, t := range history {
		if t.RideID != nil && *t.RideID == rideID {
			counts[t.Type]++
		}
	}
	if counts[ledger.TypeFee] != 1 || counts[ledger.TypeEarning] != 1 || len(counts) != 2 {
		return failf("ledger rows for ride: %v", counts)
	}
	return Result{Status: StatusPass, Note: "prepaid 40.00, payable 90.00"}
}

func (r *Runner) register(ctx context.Context, svc *user.Service, role types.Role) (types.Identity, error) {
	id := types.NewID()
	caller := types.Identity{ID: id, Role: role}
	_, err := svc.Register(ctx, user.RegisterCommand{
		Caller: caller,
		Name:   fmt.Sprintf("bench %s", role),
		Email:  fmt.Sprintf("%s@bench.urbanride.test", id),
	})
	return caller, err
}

func (r *Runner) request(ctx context.Context, passenger types.Identity, price decimal.Decimal) (*ride.Ride, error) {
	return r.rides.RequestRide(ctx, ride.RequestCommand{
		Caller:        passenger,
		Origin:        "Av. Paulista, 1578",
		Destination:   "Rua Oscar Freire, 379",
		Price:         price,
		DistanceKm:    3.4,
		PaymentMethod: ride.PaymentPix,
	})
}

func fail(err error) Result {
	return Result{Status: StatusFail, Note: err.Error()}
}

func failf(format string, args ...any) Result {
	return Result{Status: StatusFail, Note: fmt.Sprintf(format, args...)}
}
