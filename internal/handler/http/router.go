package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/searchsync/pkg/health"
	"github.com/utafrali/searchsync/pkg/middleware"
)

// RouterConfig holds the admin router settings.
type RouterConfig struct {
	AdminToken        string
	AdminJWTSecret    string
	PprofAllowedCIDRs []string
	// ReindexInterval and ReindexBurst throttle reindex triggers per model.
	// A zero interval disables throttling.
	ReindexInterval time.Duration
	ReindexBurst    int
}

// NewRouter creates a chi router with the admin API, health and metrics
// routes registered.
func NewRouter(
	cfg RouterConfig,
	indexHandler *IndexHandler,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics())

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)

	r.Route("/api/v1/indexes", func(r chi.Router) {
		r.Use(middleware.AdminAuth(middleware.AdminAuthConfig{
			Token:     cfg.AdminToken,
			JWTSecret: cfg.AdminJWTSecret,
		}, logger))

		r.Get("/", indexHandler.List)
		r.Route("/{model}", func(r chi.Router) {
			r.Get("/", indexHandler.Info)
			r.Delete("/", indexHandler.Clear)
			r.With(middleware.RateLimit(cfg.ReindexInterval, cfg.ReindexBurst, modelParam, logger)).
				Post("/reindex", indexHandler.Reindex)
			r.Get("/search", indexHandler.Search)
			r.Get("/documents/{id}", indexHandler.Document)
		})
	})

	return r
}

func modelParam(r *http.Request) string {
	return chi.URLParam(r, "model")
}
