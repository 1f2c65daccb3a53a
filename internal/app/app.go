// Package app wires the repositories, engine, payment trigger and River
// client shared by the API server and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/redemption/backend/internal/auth"
	"github.com/redemption/backend/internal/catalog"
	"github.com/redemption/backend/internal/commitments"
	"github.com/redemption/backend/internal/config"
	"github.com/redemption/backend/internal/execution"
	"github.com/redemption/backend/internal/metrics"
	"github.com/redemption/backend/internal/payments"
	"github.com/redemption/backend/internal/repository"
	"github.com/redemption/backend/internal/router"
	"github.com/redemption/backend/internal/services"
	"github.com/redemption/backend/internal/validation"
)

// Options selects what New builds on top of the core wiring.
type Options struct {
	// Work registers the River workers and periodic sweeps. Without it the
	// River client is insert-only.
	Work bool
	// HTTP builds the API handler.
	HTTP bool
	// Registerer receives the Prometheus collectors when metrics are enabled.
	Registerer prometheus.Registerer
}

type App struct {
	Engine   *commitments.Engine
	Trigger  *payments.Trigger
	Accounts payments.Accounts
	Auth     auth.Service
	River    *river.Client[pgx.Tx]
	Handler  http.Handler
}

// New builds the application graph on an open pool.
func New(cfg config.Config, pool *pgxpool.Pool, log *slog.Logger, opts Options) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		reg := opts.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		m = metrics.New(reg)
	}

	// The River client needs the workers, the workers need the engine and the
	// engine needs the queue. The insert func is filled in once the client
	// exists.
	var insertMu sync.Mutex
	var insertFn execution.InsertTxFunc
	queue := execution.NewQueue(func(ctx context.Context, tx pgx.Tx, args river.JobArgs, o *river.InsertOpts) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			return errors.New("river insert not wired")
		}
		return fn(ctx, tx, args, o)
	})

	authSvc := auth.NewService(auth.NewRepository(pool), cfg.JWTSecret)
	catalogSvc := catalog.NewService(repository.NewActionRepo(pool))
	donations := repository.NewDonationRepo(pool)

	if cfg.Payments.StripeSecretKey == "" {
		log.Warn("STRIPE_SECRET_KEY not set; financial charges will fail until it is configured")
	}
	gateway := payments.NewStripeGateway(cfg.Payments.StripeSecretKey)
	trigger := payments.NewTrigger(donations, gateway, cfg.Payments.Currency, m, log)
	accounts := payments.NewAccounts(donations, gateway, log)

	engine := commitments.NewEngine(commitments.Deps{
		Store:      repository.NewCommitmentRepo(pool),
		Catalog:    catalogSvc,
		Proofs:     services.NewProofStore(repository.NewProofRepo(pool)),
		Stats:      services.NewStatsAggregator(repository.NewStatsRepo(pool)),
		Wall:       services.NewWallPublisher(repository.NewWallRepo(pool)),
		Payments:   trigger,
		Donations:  donations,
		Dispatcher: queue,
		Metrics:    m,
		Logger:     log,
	}, cfg.Engine())
	trigger.Commitments = engine
	trigger.Payouts = queue
	trigger.ReconcileAfter = cfg.Payments.ReconcileAfter

	riverCfg := &river.Config{Logger: log}
	if opts.Work {
		periodic, err := execution.PeriodicJobs(execution.Schedules{
			Overdue:     cfg.Lifecycle.OverdueSweepSchedule,
			AutoApprove: cfg.Lifecycle.AutoApproveSweepSchedule,
			Reconcile:   cfg.Payments.ReconcileSchedule,
		})
		if err != nil {
			return nil, err
		}
		riverCfg.Queues = map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.RiverMaxWorkers},
		}
		riverCfg.Workers = execution.NewWorkers(engine, trigger, execution.LogNotifier{Logger: log}, log)
		riverCfg.PeriodicJobs = periodic
	}
	riverClient, err := river.NewClient(riverpgxv5.New(pool), riverCfg)
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, tx pgx.Tx, args river.JobArgs, o *river.InsertOpts) error {
		_, err := riverClient.InsertTx(ctx, tx, args, o)
		return err
	}
	insertMu.Unlock()

	a := &App{
		Engine:   engine,
		Trigger:  trigger,
		Accounts: accounts,
		Auth:     authSvc,
		River:    riverClient,
	}

	if opts.HTTP {
		v, err := validation.New()
		if err != nil {
			return nil, err
		}
		h := router.Handlers{
			Auth:        auth.NewHandler(authSvc, log),
			Catalog:     catalog.NewHandler(catalogSvc, log),
			Commitments: commitments.NewHandler(engine, log),
			Accounts:    payments.NewAccountsHandler(accounts, log),
		}
		if cfg.Payments.StripeWebhookSecret != "" {
			h.Webhook = payments.NewWebhookHandler(trigger, cfg.Payments.StripeWebhookSecret, log)
		} else {
			log.Warn("STRIPE_WEBHOOK_SECRET not set; payment webhooks disabled")
		}
		if m != nil {
			gatherer, ok := opts.Registerer.(prometheus.Gatherer)
			if !ok {
				gatherer = prometheus.DefaultGatherer
			}
			h.Metrics = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
		}
		a.Handler = router.New(h, authSvc, v, log)
	}
	return a, nil
}

// Migrate applies the application schema and River's own tables.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) error {
	if err := repository.Migrate(ctx, pool); err != nil {
		return err
	}
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("river migrate up: %w", err)
	}
	if log != nil {
		log.Info("migrations applied", "river_versions", len(res.Versions))
	}
	return nil
}

// Connect opens and pings a pool.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
