// README: Entry point; loads config, wires storage, services and the HTTP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"urbanride/internal/config"
	"urbanride/internal/events"
	httptransport "urbanride/internal/http"
	"urbanride/internal/http/middleware"
	"urbanride/internal/infra"
	"urbanride/internal/logging"
	"urbanride/internal/maps"
	"urbanride/internal/modules/ledger"
	"urbanride/internal/modules/pricing"
	"urbanride/internal/modules/ride"
	"urbanride/internal/modules/user"
	"urbanride/internal/storage/memory"
	"urbanride/internal/uow"
)

type storage struct {
	runner uow.Runner
	rides  ride.Repository
	ledger ledger.Repository
	users  user.Repository
	pool   *pgxpool.Pool
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, &cfg, log)
	if err != nil {
		log.WithError(err).Fatal("open storage")
	}
	if store.pool != nil {
		defer store.pool.Close()
	}

	verifier, err := newVerifier(ctx, &cfg)
	if err != nil {
		log.WithError(err).Fatal("init auth")
	}

	var publisher events.Publisher = events.LogPublisher{Log: log}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		log.WithField("topic", cfg.Kafka.Topic).Info("publishing ride events to kafka")
	}
	defer publisher.Close()

	fees, err := pricing.NewService(cfg.Ledger.FeeRate)
	if err != nil {
		log.WithError(err).Fatal("init pricing")
	}
	ledgerSvc := ledger.NewService(store.runner, store.ledger, fees, ledger.Config{
		MinRecharge:                 cfg.Ledger.MinRecharge,
		EnforceSolvencyAtSettlement: cfg.Ledger.EnforceSolvencyAtSettlement,
	}, log)
	rideSvc := ride.NewService(ride.Deps{
		Runner:    store.runner,
		Store:     store.rides,
		Ledger:    ledgerSvc,
		Fees:      fees,
		Publisher: publisher,
		Log:       log,
	})
	userSvc := user.NewService(store.runner, store.users, store.ledger, cfg.Ledger.DriverBonus, log)

	deps := httptransport.RouterDeps{
		Rides:         rideSvc,
		Ledger:        ledgerSvc,
		Users:         userSvc,
		Verifier:      verifier,
		Log:           log,
		WebhookSecret: cfg.Webhook.Secret,
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			log.WithError(err).Fatal("connect redis")
		}
		defer redisClient.Close()
		deps.Limiter = middleware.NewRedisLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}

	if cfg.Maps.APIKey != "" {
		geo, err := maps.NewGeocoder(cfg.Maps.APIKey)
		if err != nil {
			log.WithError(err).Fatal("init maps client")
		}
		deps.Geocoder = geo
	}

	deps.Health = func(ctx context.Context) error {
		if store.pool != nil {
			if err := store.pool.Ping(ctx); err != nil {
				return err
			}
		}
		if redisClient != nil {
			return redisClient.Ping(ctx).Err()
		}
		return nil
	}

	srv := httptransport.NewServer(cfg.HTTP.Addr, httptransport.NewRouter(deps), cfg.HTTP.ShutdownTimeout, log)
	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Fatal("http server")
	}
	log.Info("stopped")
}

func openStorage(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*storage, error) {
	if cfg.Storage.Driver == config.StorageMemory {
		log.Warn("using in-memory storage; data is lost on exit")
		db := memory.New(cfg.DB.LockTimeout)
		return &storage{runner: db, rides: db.Rides(), ledger: db.Ledger(), users: db.Users()}, nil
	}

	pool, err := infra.NewDB(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
	if err != nil {
		return nil, err
	}
	if cfg.DB.Migrate {
		if err := infra.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("schema migrations applied")
	}
	return &storage{
		runner: uow.NewPGRunner(pool, cfg.DB.LockTimeout),
		rides:  ride.NewStore(pool),
		ledger: ledger.NewStore(pool),
		users:  user.NewStore(pool),
		pool:   pool,
	}, nil
}

func newVerifier(ctx context.Context, cfg *config.Config) (infra.TokenVerifier, error) {
	if cfg.Auth.Provider == config.AuthFirebase {
		v, err := infra.NewFirebaseVerifier(ctx, cfg.Auth.FirebaseProjectID, cfg.Auth.FirebaseCredentialsFile)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	v, err := infra.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		return nil, err
	}
	return v, nil
}
