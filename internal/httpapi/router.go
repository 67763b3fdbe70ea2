package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Pinger reports backend reachability for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps holds everything the router mounts.
type RouterDeps struct {
	Panel     Panel
	Auth      Authenticator
	Navigator *Navigator
	Metrics   http.Handler
	Checks    map[string]Pinger
	Version   string
	Logger    *slog.Logger
}

// NewRouter builds the chi router for the panel shell.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(recovery)
	r.Use(requestLogger(deps.Logger))

	r.Get("/health", newHealthHandler(deps.Checks, deps.Version).ServeHTTP)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	h := NewPanelHandler(deps.Panel, deps.Auth, deps.Navigator, deps.Logger)

	r.Post("/session", h.SignIn)
	r.Delete("/session", h.SignOut)
	r.Get("/state", h.State)

	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.ListAccounts)
		r.Post("/reload", h.Reload)
		r.Get("/{id}/edit", h.Edit)
		r.Post("/{id}/delete", h.RequestDelete)
	})

	r.Route("/reauth", func(r chi.Router) {
		r.Post("/", h.SubmitReauth)
		r.Delete("/", h.CancelReauth)
	})

	return r
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}
