package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pguia/crm-authz/internal/config"
	"github.com/pguia/crm-authz/internal/database"
	"github.com/pguia/crm-authz/internal/logging"
	"github.com/pguia/crm-authz/internal/repository"
	"github.com/pguia/crm-authz/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// Installs the default permission catalog and roles.
// Run with: go run ./cmd/seed [--admin-email someone@example.com]

type options struct {
	AdminEmail string
}

type bootstrapper interface {
	Seed(ctx context.Context) (*service.SeedResult, error)
	AssignBootstrapAdmin(ctx context.Context, email string) (bool, error)
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	fs.StringVar(&opts.AdminEmail, "admin-email", "", "assign the Administrator role to this user")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func runSeed(ctx context.Context, b bootstrapper, opts options, log logrus.FieldLogger) error {
	result, err := b.Seed(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed: %w", err)
	}
	log.WithFields(logrus.Fields{
		"permissions_created": result.PermissionsCreated,
		"roles_created":       result.RolesCreated,
	}).Info("seed complete")

	if opts.AdminEmail == "" {
		return nil
	}

	assigned, err := b.AssignBootstrapAdmin(ctx, opts.AdminEmail)
	if err != nil {
		return fmt.Errorf("failed to assign administrator: %w", err)
	}
	if !assigned {
		log.WithField("email", opts.AdminEmail).Info("user already holds the Administrator role")
	}
	return nil
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logging.New(cfg.Log)

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// A shared Redis cache is invalidated here; a server's memory cache expires on its own TTL
	cache, err := service.NewCache(&cfg.Cache, service.SystemClock(), log)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cache.Close()

	userRepo := repository.NewUserRepository(db.DB)
	assignmentRepo := repository.NewAssignmentRepository(db.DB)
	resolver := service.NewCachedResolver(
		service.NewPermissionResolver(userRepo, assignmentRepo, nil),
		cache,
		nil,
	)
	seeder := service.NewSeeder(
		repository.NewPermissionRepository(db.DB),
		repository.NewRoleRepository(db.DB),
		assignmentRepo,
		userRepo,
		resolver,
		log,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runSeed(ctx, seeder, opts, log)
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		logrus.WithError(err).Error("seed failed")
		os.Exit(1)
	}
}
