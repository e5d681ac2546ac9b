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
	"github.com/Uebook/Luna-sub002/services/address/internal/service"
)

// RouterConfig carries the settings the router needs besides its handlers.
type RouterConfig struct {
	TokenValidator middleware.TokenValidator
	PprofCIDRs     []string
	CORSOrigins    []string
}

// NewRouter creates a chi router with all address service routes registered.
func NewRouter(
	addressService *service.AddressService,
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
	r.Use(middleware.PrometheusMetrics("address"))
	r.Use(middleware.Tracing("address"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	// Address API endpoints
	addressHandler := NewAddressHandler(addressService, logger)

	r.Route("/api/v1/addresses", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.NoStore)
		r.Use(middleware.Auth(cfg.TokenValidator))

		r.Get("/", addressHandler.GetAddresses)
		r.Post("/", addressHandler.AddAddress)
		r.Patch("/{id}", addressHandler.UpdateAddress)
		r.Delete("/{id}", addressHandler.RemoveAddress)
		r.Put("/{id}/primary", addressHandler.SetPrimary)
	})

	return r
}
