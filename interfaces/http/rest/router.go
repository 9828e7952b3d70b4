// Package rest wires the HTTP routes and middleware for the graph API.
package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/suibari/graph-be-more-blue/infrastructure/config"
	"github.com/suibari/graph-be-more-blue/interfaces/http/rest/handlers"
	"github.com/suibari/graph-be-more-blue/interfaces/http/rest/middleware"
	"github.com/suibari/graph-be-more-blue/pkg/errors"
)

// ReadinessCheck reports whether the service can reach its upstream
// dependencies.
type ReadinessCheck func(ctx context.Context) error

// Router creates and configures the HTTP router.
type Router struct {
	graphHandler *handlers.GraphHandler
	errHandler   *errors.ErrorHandler
	registry     *prometheus.Registry
	ready        ReadinessCheck
	serverCfg    config.ServerConfig
	logger       *zap.Logger
}

// NewRouter creates a router.
func NewRouter(
	graphHandler *handlers.GraphHandler,
	errHandler *errors.ErrorHandler,
	registry *prometheus.Registry,
	ready ReadinessCheck,
	serverCfg config.ServerConfig,
	logger *zap.Logger,
) *Router {
	return &Router{
		graphHandler: graphHandler,
		errHandler:   errHandler,
		registry:     registry,
		ready:        ready,
		serverCfg:    serverCfg,
		logger:       logger,
	}
}

// Setup configures all routes and middleware.
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(rt.errHandler.Middleware)
	router.Use(middleware.Logger(rt.logger))

	if rt.serverCfg.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: rt.serverCfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}))

	router.Route("/api/v1/graph", func(r chi.Router) {
		r.Get("/{handle}", rt.graphHandler.GetGraph)
		r.Post("/expand", rt.graphHandler.Expand)
		r.Post("/merge", rt.graphHandler.Merge)
	})

	return router
}

func (rt *Router) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessCheck verifies upstream reachability with a short deadline so a
// hung upstream does not hang the probe.
func (rt *Router) readinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := rt.ready(ctx); err != nil {
		rt.logger.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
