package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pguia/crm-authz/internal/config"
	"github.com/pguia/crm-authz/internal/database"
	"github.com/pguia/crm-authz/internal/guard"
	"github.com/pguia/crm-authz/internal/httpapi"
	"github.com/pguia/crm-authz/internal/logging"
	"github.com/pguia/crm-authz/internal/repository"
	"github.com/pguia/crm-authz/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 10 * time.Second

// App holds all application components
type App struct {
	Config   *config.Config
	Log      *logrus.Logger
	Database *database.Database
	Cache    service.ResolutionCache
	Resolver *service.CachedResolver
	Service  *service.AuthzService
	Seeder   *service.Seeder
	Registry *prometheus.Registry
	Router   http.Handler
	Health   *health.Server
}

// InitializeApp loads configuration, connects to the database and wires the app
func InitializeApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logging.New(cfg.Log)

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.AutoMigrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info("database connection established")

	app, err := NewApp(cfg, db, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	return app, nil
}

// NewApp wires repositories, services and the HTTP surface on an open database
func NewApp(cfg *config.Config, db *database.Database, log *logrus.Logger) (*App, error) {
	permissionRepo := repository.NewPermissionRepository(db.DB)
	roleRepo := repository.NewRoleRepository(db.DB)
	assignmentRepo := repository.NewAssignmentRepository(db.DB)
	userRepo := repository.NewUserRepository(db.DB)

	cache, err := service.NewCache(&cfg.Cache, service.SystemClock(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	log.WithFields(logrus.Fields{"type": cfg.Cache.Type, "enabled": cfg.Cache.Enabled}).Info("cache initialized")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := service.NewMetrics(registry)

	resolver := service.NewCachedResolver(
		service.NewPermissionResolver(userRepo, assignmentRepo, metrics),
		cache,
		metrics,
	)

	authzService := service.NewAuthzService(
		permissionRepo,
		roleRepo,
		assignmentRepo,
		userRepo,
		resolver,
		resolver,
		log,
	)
	seeder := service.NewSeeder(permissionRepo, roleRepo, assignmentRepo, userRepo, resolver, log)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Handler:            httpapi.NewHandler(authzService, seeder, log),
		Authenticator:      guard.NewAuthenticator(cfg.Authz, userRepo, log),
		Guard:              guard.New(resolver, cfg.Authz, metrics, log),
		Health:             db,
		Gatherer:           registry,
		RateLimitPerMinute: cfg.Authz.AdminRateLimitPerMinute,
		RequestTimeout:     cfg.Server.WriteTimeout(),
		Log:                log,
	})

	if cfg.Authz.JWTSecret == "" {
		log.Warn("authz.jwt_secret is empty, every API request will be rejected")
	}

	return &App{
		Config:   cfg,
		Log:      log,
		Database: db,
		Cache:    cache,
		Resolver: resolver,
		Service:  authzService,
		Seeder:   seeder,
		Registry: registry,
		Router:   router,
		Health:   health.NewServer(),
	}, nil
}

// Close cleans up application resources
func (app *App) Close() error {
	var errs []error
	if app.Cache != nil {
		errs = append(errs, app.Cache.Close())
	}
	if app.Database != nil {
		errs = append(errs, app.Database.Close())
	}
	return errors.Join(errs...)
}

// Serve runs the HTTP API on httpLis and the gRPC health service on grpcLis
// until ctx is canceled, then shuts both down.
func (app *App) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	httpServer := &http.Server{
		Handler:      app.Router,
		ReadTimeout:  app.Config.Server.ReadTimeout(),
		WriteTimeout: app.Config.Server.WriteTimeout(),
	}

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, app.Health)
	app.Health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.Log.WithField("addr", httpLis.Addr().String()).Info("starting http server")
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		app.Log.WithField("addr", grpcLis.Addr().String()).Info("starting grpc health server")
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		app.Log.Info("shutting down")
		app.Health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		grpcServer.GracefulStop()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Run listens on the configured addresses and waits for a shutdown signal
func Run(app *App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpLis, err := net.Listen("tcp", app.Config.Server.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.Config.Server.Address, err)
	}
	grpcLis, err := net.Listen("tcp", app.Config.Server.GRPCAddress)
	if err != nil {
		httpLis.Close()
		return fmt.Errorf("failed to listen on %s: %w", app.Config.Server.GRPCAddress, err)
	}

	return app.Serve(ctx, httpLis, grpcLis)
}

func main() {
	app, err := InitializeApp()
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialize application")
	}

	err = Run(app)
	if cerr := app.Close(); cerr != nil {
		app.Log.WithError(cerr).Warn("failed to close resources")
	}
	if err != nil {
		app.Log.WithError(err).Error("application error")
		os.Exit(1)
	}
}
