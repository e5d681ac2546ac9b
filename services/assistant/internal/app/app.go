package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Uebook/Luna-sub002/pkg/auth"
	"github.com/Uebook/Luna-sub002/pkg/health"
	"github.com/Uebook/Luna-sub002/pkg/httpclient"
	"github.com/Uebook/Luna-sub002/pkg/middleware"
	"github.com/Uebook/Luna-sub002/pkg/tracing"
	"github.com/Uebook/Luna-sub002/services/assistant/internal/catalog"
	"github.com/Uebook/Luna-sub002/services/assistant/internal/config"
	handler "github.com/Uebook/Luna-sub002/services/assistant/internal/handler/http"
	"github.com/Uebook/Luna-sub002/services/assistant/internal/repository/memory"
	"github.com/Uebook/Luna-sub002/services/assistant/internal/service"
)

const serviceName = "assistant-service"

// App wires together all dependencies and runs the assistant service.
type App struct {
	cfg              *config.Config
	logger           *slog.Logger
	assistantService *service.AssistantService
	catalogs         *catalog.Provider
	rateLimiter      *middleware.RateLimiter
	tracerShutdown   func(context.Context) error
	httpServer       *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing(serviceName))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	healthHandler := health.NewHandler()

	source := catalogSource(cfg, healthHandler, logger)
	catalogs := catalog.NewProvider(ctx, source, logger)
	logger.Info("catalog loaded",
		slog.Int("categories", len(catalogs.Current().Categories())),
		slog.Int("products", len(catalogs.Current().Products())),
	)

	repo := memory.NewSessionRepository(cfg.SessionTTL())
	assistantService := service.NewAssistantService(repo, catalogs, cfg.SessionTTL(), logger)

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, serviceName, time.Hour)

	var limiter *middleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 3*time.Minute, logger)
	}

	router := handler.NewRouter(assistantService, healthHandler, logger, handler.RouterConfig{
		TokenValidator: jwtManager.Validator(),
		RateLimiter:    limiter,
		PprofCIDRs:     cfg.PprofAllowedCIDRs,
		CORSOrigins:    cfg.CORSAllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:              cfg,
		logger:           logger,
		assistantService: assistantService,
		catalogs:         catalogs,
		rateLimiter:      limiter,
		tracerShutdown:   tracerShutdown,
		httpServer:       httpServer,
	}, nil
}

// catalogSource picks where products come from: the product service when
// configured, with the catalog file or the built-in categories behind it.
func catalogSource(cfg *config.Config, healthHandler *health.Handler, logger *slog.Logger) catalog.Source {
	var local catalog.Source = catalog.StaticSource{}
	if cfg.CatalogFile != "" {
		local = catalog.FileSource{Path: cfg.CatalogFile}
	}
	if cfg.ProductServiceURL == "" {
		return local
	}

	client := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig("product-service"),
		logger,
	)
	healthHandler.RegisterOptional("product-service", func(context.Context) error {
		if client.State() == gobreaker.StateOpen {
			return httpclient.ErrCircuitOpen
		}
		return nil
	})
	return catalog.NewRemoteSource(client, cfg.ProductServiceURL, local, logger)
}

// Run starts the HTTP server and the background loops, and blocks until ctx
// is canceled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.assistantService.RunSweeper(gctx, a.cfg.SweepInterval())
	})
	g.Go(func() error {
		return a.catalogs.Run(gctx, a.cfg.CatalogRefresh())
	})
	if a.rateLimiter != nil {
		g.Go(func() error {
			return a.rateLimiter.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			a.logger.Info("shutdown signal received")
		}
		return a.Shutdown()
	})

	return g.Wait()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
