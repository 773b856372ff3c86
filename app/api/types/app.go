package types

import (
	"context"
	"net/http"
	"time"

	"github.com/cesa-network/cesavote/pkg/ballot"
	"github.com/cesa-network/cesavote/pkg/bootstrap"
	"github.com/cesa-network/cesavote/pkg/config"
	"github.com/cesa-network/cesavote/pkg/db"
	"github.com/cesa-network/cesavote/pkg/deploy"
	"github.com/cesa-network/cesavote/pkg/redis"
	"github.com/cesa-network/cesavote/pkg/tally"
	"go.uber.org/zap"
)

type App struct {
	Config config.Config
	Store  db.Store

	Ballots  *ballot.Service
	Sweeper  *ballot.Sweeper
	Tally    *tally.Reconciler
	Ledger   *bootstrap.Ledger
	Deployer *deploy.Deployer

	// RedisClient is nil when real-time events are disabled.
	RedisClient *redis.Client

	// Now is the clock used to pick the active election.
	Now func() time.Time

	Logger *zap.Logger
	Server *http.Server
}

// Start serves until ctx is cancelled, then shuts down.
func (a *App) Start(ctx context.Context) {
	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = a.Server.Shutdown(shutdownCtx)

	if a.Sweeper != nil {
		a.Sweeper.Close()
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Error("Failed to close Redis connection", zap.Error(err))
		}
	}
	if err := a.Store.Close(); err != nil {
		a.Logger.Error("Failed to close database connection", zap.Error(err))
	}
	a.Logger.Info("さようなら!")
}
