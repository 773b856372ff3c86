package controller

import (
	"net/http"

	"github.com/cesa-network/cesavote/app/api/types"
	"github.com/gorilla/mux"
)

type Controller struct {
	App        *types.App
	JWTSecret  []byte
	AdminToken string
}

// NewController returns a new controller.
func NewController(app *types.App) *Controller {
	return &Controller{
		App:        app,
		JWTSecret:  []byte(app.Config.SessionSecret),
		AdminToken: app.Config.AdminToken,
	}
}

// WithCORS is a middleware that adds CORS headers to the response.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// Echo the origin so the session cookie is sent by browsers.
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodOptions)

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.HandleFunc("/api/health", c.HandleHealth).Methods(http.MethodGet)

	r.HandleFunc("/api/auth/login", c.HandleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", c.HandleLogout).Methods(http.MethodPost)

	r.HandleFunc("/api/candidates", c.HandleCandidates).Methods(http.MethodGet)
	r.HandleFunc("/api/elections", c.HandleElections).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", c.HandleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/blockchain/records", c.HandleLedgerRecords).Methods(http.MethodGet)
	r.Handle("/api/vote", c.RequireVoter(http.HandlerFunc(c.HandleVote))).Methods(http.MethodPost)

	r.HandleFunc("/api/ws", c.HandleWebSocket).Methods(http.MethodGet)

	r.Handle("/api/admin/ledger/status", c.RequireAdmin(http.HandlerFunc(c.HandleLedgerStatus))).Methods(http.MethodGet)
	r.Handle("/api/admin/votes/retry", c.RequireAdmin(http.HandlerFunc(c.HandleRetryPending))).Methods(http.MethodPost)

	return r, nil
}
