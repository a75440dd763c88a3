// Package handler provides the operational HTTP endpoints of the shopping cart service.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

// Health calls f(ctx).
func (f HealthCheckFunc) Health(ctx context.Context) error {
	return f(ctx)
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	// Checks are run by /health, keyed by dependency name.
	Checks map[string]HealthChecker

	// Gatherer backs /metrics. A nil Gatherer disables the endpoint.
	Gatherer prometheus.Gatherer

	// MetricsPath defaults to /metrics.
	MetricsPath string

	// CheckTimeout bounds each health check. Defaults to two seconds.
	CheckTimeout time.Duration

	Logger zerolog.Logger
}

// Router serves health and metrics endpoints.
type Router struct {
	checks       map[string]HealthChecker
	gatherer     prometheus.Gatherer
	metricsPath  string
	checkTimeout time.Duration
	logger       zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(config RouterConfig) *Router {
	rt := &Router{
		checks:       config.Checks,
		gatherer:     config.Gatherer,
		metricsPath:  config.MetricsPath,
		checkTimeout: config.CheckTimeout,
		logger:       config.Logger.With().Str("component", "router").Logger(),
	}
	if rt.metricsPath == "" {
		rt.metricsPath = "/metrics"
	}
	if rt.checkTimeout <= 0 {
		rt.checkTimeout = 2 * time.Second
	}
	return rt
}

// Handler returns the main HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(rt.logRequests)

	r.Get("/health", rt.handleHealth)
	if rt.gatherer != nil {
		r.Method(http.MethodGet, rt.metricsPath, promhttp.HandlerFor(rt.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealth runs every registered check and reports 503 if any fails.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", Checks: make(map[string]string, len(rt.checks))}
	status := http.StatusOK

	names := make([]string, 0, len(rt.checks))
	for name := range rt.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), rt.checkTimeout)
		err := rt.checks[name].Health(ctx)
		cancel()

		if err != nil {
			rt.logger.Warn().Err(err).Str("check", name).Msg("health check failed")
			resp.Checks[name] = "unhealthy"
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func (rt *Router) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		rt.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}
