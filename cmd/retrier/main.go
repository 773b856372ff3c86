package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/cesa-network/cesavote/app/retrier"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := retrier.Initialize(ctx)

	// Immediate pass before cron
	if _, err := app.Sweep(ctx); err != nil {
		app.Logger.Warn("Initial retry sweep failed", zap.Error(err))
	}

	app.StartCron()
	app.SetupServer()
	app.Start(ctx)
}
