package api

import (
	"context"
	"os"
	"time"

	"github.com/cesa-network/cesavote/app/api/types"
	"github.com/cesa-network/cesavote/pkg/ballot"
	"github.com/cesa-network/cesavote/pkg/bootstrap"
	"github.com/cesa-network/cesavote/pkg/config"
	"github.com/cesa-network/cesavote/pkg/logging"
	"github.com/cesa-network/cesavote/pkg/redis"
	"go.uber.org/zap"
)

// Initialize loads the configuration from the environment and builds the
// application. Configuration errors are fatal.
func Initialize(ctx context.Context) *types.App {
	cfg, cfgErr := config.Load(os.Getenv)

	logger, err := logging.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}
	if cfgErr != nil {
		logger.Fatal("Invalid configuration", zap.Error(cfgErr))
	}

	app, err := Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Unable to initialize api", zap.Error(err))
	}
	return app
}

// Build wires every component from cfg.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*types.App, error) {
	store, err := bootstrap.OpenStore(ctx, logger, cfg.Database, "api")
	if err != nil {
		return nil, err
	}

	l, err := bootstrap.NewLedger(cfg.Ledger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	// Initialize Redis client for real-time WebSocket events (optional)
	var redisClient *redis.Client
	var notifier ballot.Notifier
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(ctx, logger, redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			StreamMaxLen: cfg.Redis.StreamMaxLen,
		})
		if err != nil {
			logger.Warn("Failed to initialize Redis client - vote events will be disabled", zap.Error(err))
			redisClient = nil
		} else {
			notifier = redis.NewNotifier(redisClient, logger)
		}
	} else {
		logger.Info("Redis disabled - vote events will not be published")
	}

	voting, err := bootstrap.NewVoting(cfg, store, l, notifier, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &types.App{
		Config:      cfg,
		Store:       store,
		Ballots:     voting.Service,
		Sweeper:     ballot.NewSweeper(voting.Service, cfg.Retrier.Workers, logger.With(zap.String("component", "sweeper"))),
		Tally:       voting.Reconciler,
		Ledger:      l,
		Deployer:    l.Deployer(cfg.Ledger, logger),
		RedisClient: redisClient,
		Now:         time.Now,
		Logger:      logger,
	}, nil
}
