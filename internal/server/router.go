package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/matthewbaird/civicpulse/internal/activity"
	"github.com/matthewbaird/civicpulse/internal/desk"
	"github.com/matthewbaird/civicpulse/internal/feed"
	"github.com/matthewbaird/civicpulse/internal/handler"
	"github.com/matthewbaird/civicpulse/internal/metrics"
)

// Deps are the components the router exposes.
type Deps struct {
	Desk    *desk.Desk
	Store   activity.Store
	Feed    *feed.Hub
	Metrics *metrics.Collector
	Logger  *zap.Logger
}

// NewRouter builds the chi router with every route registered.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	var obs handler.RequestObserver
	if deps.Metrics != nil {
		obs = deps.Metrics
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handler.Logging(deps.Logger.Named("http"), obs))
	r.Use(handler.Recovery(deps.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}
	if deps.Feed != nil {
		r.Method(http.MethodGet, "/v1/feed", deps.Feed)
	}

	handler.RegisterRoutes(r, deps.Desk, deps.Store, deps.Logger)
	return r
}
