package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Uebook/Luna-sub002/pkg/auth"
	"github.com/Uebook/Luna-sub002/pkg/database"
	"github.com/Uebook/Luna-sub002/pkg/health"
	pkgkafka "github.com/Uebook/Luna-sub002/pkg/kafka"
	"github.com/Uebook/Luna-sub002/pkg/tracing"
	"github.com/Uebook/Luna-sub002/services/address/internal/config"
	"github.com/Uebook/Luna-sub002/services/address/internal/event"
	handler "github.com/Uebook/Luna-sub002/services/address/internal/handler/http"
	"github.com/Uebook/Luna-sub002/services/address/internal/repository"
	"github.com/Uebook/Luna-sub002/services/address/internal/repository/memory"
	pgrepo "github.com/Uebook/Luna-sub002/services/address/internal/repository/postgres"
	redisrepo "github.com/Uebook/Luna-sub002/services/address/internal/repository/redis"
	sqliterepo "github.com/Uebook/Luna-sub002/services/address/internal/repository/sqlite"
	"github.com/Uebook/Luna-sub002/services/address/internal/service"
	"github.com/Uebook/Luna-sub002/services/address/migrations"
)

const serviceName = "address-service"

// App wires together all dependencies and runs the address service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	storage        *storage
	producer       *pkgkafka.Producer
	tracerShutdown func(context.Context) error
	httpServer     *http.Server
}

// storage is an opened address book backend.
type storage struct {
	repo  repository.AddressBookRepository
	ping  health.Checker
	close func() error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing(serviceName))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	database.SetSlowQueryLogging(cfg.SlowQueryThreshold(), logger)

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		_ = tracerShutdown(context.Background())
		return nil, err
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register(cfg.StorageBackend, store.ping)

	// Kafka producer. Publishing failures never fail a request.
	var (
		producer  *pkgkafka.Producer
		publisher service.EventPublisher = event.Nop{}
	)
	if cfg.EventsEnabled {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = event.NewProducer(producer, logger)
		healthHandler.RegisterOptional("kafka", producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Build the dependency graph.
	addressService := service.NewAddressService(service.NewStore(store.repo, logger), publisher, logger)

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, serviceName, cfg.AccessTokenExpiry())

	// HTTP router.
	router := handler.NewRouter(addressService, healthHandler, logger, handler.RouterConfig{
		TokenValidator: jwtManager.Validator(),
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
		cfg:            cfg,
		logger:         logger,
		storage:        store,
		producer:       producer,
		tracerShutdown: tracerShutdown,
		httpServer:     httpServer,
	}, nil
}

// openStorage connects the configured backend and applies migrations where
// the backend has a schema.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage, error) {
	switch cfg.StorageBackend {
	case config.BackendRedis:
		rdb, err := database.NewRedisClient(ctx, cfg.Redis(), logger)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)
		return &storage{
			repo:  redisrepo.NewAddressBookRepository(rdb, cfg.BookTTLDuration()),
			ping:  func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			close: rdb.Close,
		}, nil

	case config.BackendPostgres:
		pgCfg := cfg.Postgres()
		pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := database.RunMigrations(ctx, pool, migrations.Postgres(), logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run postgres migrations: %w", err)
		}
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
			logger.Warn("failed to register pool metrics", slog.String("error", err.Error()))
		}
		logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.String("database", cfg.PostgresDB),
		)
		return &storage{
			repo: pgrepo.NewAddressBookRepository(pool),
			ping: pool.Ping,
			close: func() error {
				pool.Close()
				return nil
			},
		}, nil

	case config.BackendSQLite:
		db, err := database.OpenSQLite(ctx, database.DefaultSQLiteConfig(cfg.SQLitePath), logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := database.RunSQLiteMigrations(ctx, db, migrations.SQLite(), logger); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("run sqlite migrations: %w", err)
		}
		if err := database.RegisterSQLMetrics(prometheus.DefaultRegisterer, db, "address_sqlite"); err != nil {
			logger.Warn("failed to register sqlite metrics", slog.String("error", err.Error()))
		}
		logger.Info("opened SQLite database", slog.String("path", cfg.SQLitePath))
		return &storage{
			repo:  sqliterepo.NewAddressBookRepository(db),
			ping:  db.PingContext,
			close: db.Close,
		}, nil

	default:
		logger.Warn("using in-memory address storage, books are lost on restart")
		return &storage{
			repo:  memory.NewAddressBookRepository(),
			ping:  func(context.Context) error { return nil },
			close: func() error { return nil },
		}, nil
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
			slog.String("storage", a.cfg.StorageBackend),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}

	if err := a.storage.close(); err != nil {
		a.logger.Error("storage close error", slog.String("error", err.Error()))
	}

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
