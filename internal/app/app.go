// Package app assembles the exchange services from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/authority"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/config"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/custody"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/database"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/events"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/ledger"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/pool"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/registry"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/transaction"
)

// App holds every long-lived dependency of the exchange.
type App struct {
	Config    *config.Config
	DB        *gorm.DB
	Redis     *redis.Client
	Ledger    ledger.Ledger
	Custodian *custody.Custodian
	Assets    registry.Store
	History   transaction.TransactionRepository

	Authorities authority.Service
	Pools       pool.Service
}

// New opens the database (and redis when configured) and builds the services.
// Events reach local directly, or through redis when it is available so that
// every instance sees them once via Relay. local may be nil.
func New(ctx context.Context, cfg *config.Config, local events.Sink) (*App, error) {
	log := logrus.WithField("component", "app")

	programID, err := cfg.ProgramID()
	if err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			database.Close(db)
			return nil, err
		}
	}

	a := &App{Config: cfg, DB: db}
	a.Redis = connectRedis(ctx, cfg.Redis, log)

	a.Ledger = ledger.NewLedger(db)
	a.Custodian = custody.NewCustodian(custody.NewDeriver(programID), a.Ledger)
	a.Assets = registry.NewStore(db)
	a.History = transaction.NewTransactionRepository(db)

	var reg registry.Registry = a.Assets
	sink := local
	if a.Redis != nil {
		reg = registry.NewCachedRegistry(a.Assets, a.Redis, cfg.Redis.CacheTTL)
		sink = events.NewRedisPublisher(a.Redis, cfg.Redis.EventsChannel)
	}

	authorities := authority.NewAuthorityRepository(db)
	a.Authorities = authority.NewService(db, authorities, a.History)
	a.Pools = pool.NewService(db, pool.NewPoolRepository(db), authorities, a.History,
		a.Ledger, a.Custodian, reg, sink)

	log.WithFields(logrus.Fields{
		"driver":     cfg.Database.Driver,
		"program_id": programID.Hex(),
		"redis":      a.Redis != nil,
	}).Info("exchange initialized")
	return a, nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logrus.Entry) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("Failed to connect to Redis, continuing without cache and event fan-out")
		rdb.Close()
		return nil
	}
	return rdb
}

// Relay forwards events published by other instances to sink. It blocks until
// ctx is cancelled and is a no-op without redis.
func (a *App) Relay(ctx context.Context, sink events.Sink) error {
	if a.Redis == nil {
		<-ctx.Done()
		return nil
	}
	if err := events.Relay(ctx, a.Redis, a.Config.Redis.EventsChannel, sink); err != nil {
		return fmt.Errorf("relay events: %w", err)
	}
	return nil
}

// Close releases the database and redis connections.
func (a *App) Close() {
	database.Close(a.DB)
	if a.Redis != nil {
		a.Redis.Close()
	}
}
