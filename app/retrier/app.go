// Package retrier brings accepted but unconfirmed ballots to the ledger on a
// cron schedule.
package retrier

import (
	"context"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/cesa-network/cesavote/pkg/ballot"
	"github.com/cesa-network/cesavote/pkg/bootstrap"
	"github.com/cesa-network/cesavote/pkg/config"
	"github.com/cesa-network/cesavote/pkg/db"
	"github.com/cesa-network/cesavote/pkg/logging"
	"github.com/cesa-network/cesavote/pkg/redis"
	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	batchSize = 200
	runBudget = 50 * time.Second
)

// sweepMinAge leaves fresh ballots to the request that may still be
// submitting and confirming them. Twice the request's ledger window, never
// under a minute.
func sweepMinAge(cfg config.Ledger) time.Duration {
	return max(time.Minute, 2*(cfg.RequestTimeout+cfg.ConfirmTimeout))
}

type App struct {
	Config  config.Config
	Store   db.Store
	Ballots *ballot.Service
	Sweeper *ballot.Sweeper

	// RedisClient is nil when vote events are disabled.
	RedisClient *redis.Client

	// Cron triggers a sweep according to CronSpec.
	Cron     *cron.Cron
	CronSpec string

	// LastRun is the unix time of the last completed sweep.
	LastRun atomic.Int64

	Logger *zap.Logger
	Server *http.Server
}

// Initialize builds the retrier from the environment. Configuration errors
// are fatal.
func Initialize(ctx context.Context) *App {
	cfg, cfgErr := config.Load(os.Getenv)
	logger, err := logging.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}
	if cfgErr != nil {
		logger.Fatal("Invalid configuration", zap.Error(cfgErr))
	}
	logger = logger.With(zap.String("component", "retrier"))

	store, err := bootstrap.OpenStore(ctx, logger, cfg.Database, "retrier")
	if err != nil {
		logger.Fatal("Unable to open database", zap.Error(err))
	}
	l, err := bootstrap.NewLedger(cfg.Ledger)
	if err != nil {
		logger.Fatal("Invalid ledger configuration", zap.Error(err))
	}

	app := &App{Config: cfg, Store: store, CronSpec: cfg.Retrier.Schedule, Logger: logger}

	var notifier ballot.Notifier
	if cfg.Redis.Enabled {
		app.RedisClient, err = redis.NewClient(ctx, logger, redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			StreamMaxLen: cfg.Redis.StreamMaxLen,
		})
		if err != nil {
			logger.Warn("Failed to initialize Redis client - vote events will be disabled", zap.Error(err))
			app.RedisClient = nil
		} else {
			notifier = redis.NewNotifier(app.RedisClient, logger)
		}
	}

	voting, err := bootstrap.NewVoting(cfg, store, l, notifier, logger)
	if err != nil {
		logger.Fatal("Unable to build the ballot pipeline", zap.Error(err))
	}
	if voting.Simulated {
		logger.Warn("Ledger is simulated, pending ballots will receive surrogate ids")
	}
	app.Ballots = voting.Service
	app.Sweeper = ballot.NewSweeper(voting.Service, cfg.Retrier.Workers, logger)

	if err := app.SetupScheduler(ctx, cron.DefaultLogger, app.CronSpec); err != nil {
		logger.Fatal("Invalid RETRY_CRON", zap.String("spec", app.CronSpec), zap.Error(err))
	}
	return app
}

// SetupServer exposes /healthz and /readyz.
func (a *App) SetupServer() {
	// use <ip>:<port> to bind to a specific interface or :<port> to bind to all interfaces
	addr := a.Config.Addr

	r := mux.NewRouter()
	r.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) })).Methods("GET")
	r.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.Ready(r.Context()) {
			w.WriteHeader(200)
		} else {
			w.WriteHeader(503)
		}
	})).Methods("GET")

	a.Server = &http.Server{Addr: addr, Handler: r}
}

// SetupScheduler sets up the cron scheduler.
func (a *App) SetupScheduler(ctx context.Context, logger cron.Logger, cronSpec string) error {
	// Seconds field, optional
	a.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(logger), cron.Recover(logger)))

	_, err := a.Cron.AddFunc(cronSpec, func() {
		// keep each run bounded
		rctx, cancel := context.WithTimeout(ctx, runBudget)
		defer cancel()
		if _, err := a.Sweep(rctx); err != nil {
			a.Logger.Warn("Retry sweep failed", zap.Error(err))
		}
	})
	return err
}

// Sweep retries one batch of pending ballots and warns about ballots that
// have been pending longer than RETRY_MAX_AGE.
func (a *App) Sweep(ctx context.Context) (ballot.SweepReport, error) {
	report, err := a.Sweeper.Run(ctx, sweepMinAge(a.Config.Ledger), batchSize)
	if err != nil {
		return report, err
	}
	a.LastRun.Store(time.Now().Unix())

	stale, err := a.Ballots.PendingVotes(ctx, a.Config.Retrier.MaxAge, batchSize)
	if err != nil {
		return report, err
	}
	if len(stale) > 0 {
		a.Logger.Warn("Ballots pending beyond the retry window need operator attention",
			zap.Int("count", len(stale)),
			zap.Duration("max_age", a.Config.Retrier.MaxAge))
	}
	return report, nil
}

// StartCron starts the cron scheduler.
func (a *App) StartCron() {
	a.Cron.Start()
	a.Logger.Info("Cron started", zap.String("cronSpec", a.CronSpec))
}

// StopCron stops the cron scheduler and waits for a running sweep.
func (a *App) StopCron() {
	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}
}

// Ready reports whether the database answers.
func (a *App) Ready(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return a.Store.Ping(ctx) == nil
}

// Start serves the health endpoints until ctx is cancelled, then shuts down.
func (a *App) Start(ctx context.Context) {
	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()
	<-ctx.Done()
	_ = a.Server.Close()
	a.Logger.Info("Shutting down…")
	a.StopCron()
	a.Sweeper.Close()
	if a.RedisClient != nil {
		_ = a.RedisClient.Close()
	}
	if err := a.Store.Close(); err != nil {
		a.Logger.Error("Failed to close database connection", zap.Error(err))
	}
	a.Logger.Info("さようなら!")
}
