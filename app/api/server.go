package api

import (
	"net/http"

	"github.com/cesa-network/cesavote/app/api/controller"
	"github.com/cesa-network/cesavote/app/api/types"
	"go.uber.org/zap"
)

// NewServer builds the router and attaches the HTTP server to app.
func NewServer(app *types.App) error {
	ctler := controller.NewController(app)
	router, err := ctler.NewRouter()
	if err != nil {
		return err
	}

	// use <ip>:<port> to bind to a specific interface or :<port> to bind to all interfaces
	addr := app.Config.Addr

	app.Server = &http.Server{Addr: addr, Handler: controller.WithCORS(router)}
	app.Logger.Info("Starting server", zap.String("addr", addr))

	return nil
}
