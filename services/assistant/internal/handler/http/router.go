package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Uebook/Luna-sub002/pkg/health"
	"github.com/Uebook/Luna-sub002/pkg/middleware"
	"github.com/Uebook/Luna-sub002/services/assistant/internal/service"
)

// RouterConfig carries the settings the router needs besides its handlers.
type RouterConfig struct {
	TokenValidator middleware.TokenValidator
	// RateLimiter throttles session traffic per client. Nil disables it.
	RateLimiter *middleware.RateLimiter
	PprofCIDRs  []string
	CORSOrigins []string
}

// NewRouter creates a chi router with all assistant service routes registered.
func NewRouter(
	assistantService *service.AssistantService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.CORSOrigins) > 0 {
		corsCfg.AllowedOrigins = cfg.CORSOrigins
	}

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(corsCfg))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("assistant"))
	r.Use(middleware.Tracing("assistant"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	assistantHandler := NewAssistantHandler(assistantService, logger)

	r.Route("/api/v1/assistant", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.TokenValidator))

		r.With(middleware.CacheControl(300)).Get("/categories", assistantHandler.Categories)

		r.Route("/sessions", func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Use(middleware.NoStore)
			if cfg.RateLimiter != nil {
				r.Use(cfg.RateLimiter.Middleware)
			}

			r.Post("/", assistantHandler.StartSession)
			r.Get("/{id}", assistantHandler.GetSession)
			r.Delete("/{id}", assistantHandler.EndSession)
			r.Post("/{id}/replies", assistantHandler.Reply)
			r.Get("/{id}/results", assistantHandler.Results)
		})
	})

	return r
}
