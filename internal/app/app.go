// Package app wires the escrow components from configuration. Both the API
// server and the cranker build on it.
package app

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"nft-rental-escrow/internal/config"
	"nft-rental-escrow/internal/custody"
	"nft-rental-escrow/internal/deadline"
	"nft-rental-escrow/internal/escrow"
	"nft-rental-escrow/internal/events"
	"nft-rental-escrow/internal/ledger"
	"nft-rental-escrow/internal/logger"
	"nft-rental-escrow/internal/metrics"
	"nft-rental-escrow/internal/provenance"
	"nft-rental-escrow/internal/repository/postgres"
	"nft-rental-escrow/internal/taskqueue"
)

type App struct {
	Config    *config.Config
	DB        *sql.DB
	Redis     *redis.Client
	Store     *postgres.Store
	Custodian *custody.Custodian
	Queue     *taskqueue.RedisQueue
	Program   escrow.Program
	Bridge    deadline.Bridge
	Submitter ledger.Submitter
	Publisher events.Publisher
	Metrics   *metrics.Metrics
}

// New connects to the database and the task queue and builds the program.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics.New()}

	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.DB = db
	if err := db.PingContext(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("Database connection established")

	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("Database schema applied")
	}

	a.Redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		// The rental path does not need the queue; scheduling reports its own failures.
		logger.Warn("Task queue unreachable at startup", "addr", cfg.Redis.Addr, "error", err)
	}

	if cfg.AMQP.URL != "" {
		a.Publisher = events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		logger.Info("Publishing rental events", "exchange", cfg.AMQP.Exchange)
	} else {
		a.Publisher = events.NewLogPublisher()
	}

	a.Store = postgres.NewStore(db)
	a.Custodian = custody.NewCustodian(cfg.ProgramID())
	a.Queue = taskqueue.NewRedisQueue(a.Redis, cfg.Queue.Name, cfg.Queue.Capacity)
	a.Program = escrow.NewProgram(a.Store, a.Custodian, provenance.NewRegistryVerifier(a.Store.Metadata()), escrow.Options{
		Arbitrator:         cfg.ArbitratorAddress(),
		MaxConflictRetries: cfg.Program.MaxConflictRetries,
	})
	a.Bridge = deadline.NewBridge(a.Custodian, a.Queue, a.Store.Rentals(), cfg.ScheduleTimeout(), nil)
	a.Submitter = ledger.NewSubmitter(a.Program, a.Bridge, a.Publisher, a.Metrics, ledger.Options{
		SignatureMaxAge: cfg.SignatureMaxAge(),
		ScheduleOnRent:  cfg.Program.ScheduleOnRent,
	})

	logger.Info("Escrow program ready", "program", a.Custodian.Program().String(), "queue", cfg.Queue.Name)
	return a, nil
}

func (a *App) Close() {
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			logger.Warn("Failed to close event publisher", "error", err)
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
