// Package app wires configuration, storage, coordination and services into a
// runnable application shared by the server and admin binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prn-tf/shoppingcart/internal/cache/memory"
	rediscache "github.com/prn-tf/shoppingcart/internal/cache/redis"
	"github.com/prn-tf/shoppingcart/internal/config"
	"github.com/prn-tf/shoppingcart/internal/handler"
	"github.com/prn-tf/shoppingcart/internal/lock"
	"github.com/prn-tf/shoppingcart/internal/pkg/crypto"
	"github.com/prn-tf/shoppingcart/internal/repository"
	"github.com/prn-tf/shoppingcart/internal/repository/migrate"
	"github.com/prn-tf/shoppingcart/internal/repository/postgres"
	"github.com/prn-tf/shoppingcart/internal/repository/sqlite"
	"github.com/prn-tf/shoppingcart/internal/service"
)

// App holds the wired components.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Store    *repository.Store
	Redis    *redis.Client
	Locker   lock.Locker
	Cache    repository.Cache
	Registry *prometheus.Registry
	Metrics  *service.Metrics
	Roles    *service.RoleService
	Users    *service.UserService

	closers []func() error
}

// New opens the database, connects Redis when enabled, seeds the role
// catalog and builds the services.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	if err := crypto.SetBcryptCost(cfg.Auth.BcryptCost); err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	store, err := OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, store.Database.Close)

	if cfg.Redis.Enabled {
		client, err := rediscache.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.Redis = client
		a.closers = append(a.closers, client.Close)
		a.Locker = lock.NewRedisLocker(client)
		a.Cache = rediscache.NewCache(client)
		logger.Info().Str("addr", cfg.Redis.Addr()).Msg("using redis for locks and role cache")
	} else {
		ml := lock.NewMemoryLocker()
		mc := memory.NewCache(cfg.Cache.CleanupInterval)
		a.closers = append(a.closers,
			func() error { ml.Close(); return nil },
			func() error { mc.Stop(); return nil },
		)
		a.Locker = ml
		a.Cache = mc
	}

	if cfg.Metrics.Enabled {
		a.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = service.NewMetrics(a.Registry)
	} else {
		a.Metrics = service.NewMetrics(nil)
	}

	a.Roles = service.NewRoleService(a.Store.Repos.Role, a.Cache, cfg.Cache.RoleTTL, a.Locker, a.Metrics, logger)
	if err := a.Roles.EnsureDefaults(ctx, seedRoleNames(cfg.Auth.DefaultRoles)...); err != nil {
		return nil, fmt.Errorf("failed to seed roles: %w", err)
	}

	a.Users = service.NewUserService(
		a.Store.Repos.User,
		a.Store.Repos.Cart,
		a.Roles,
		a.Locker,
		a.Metrics,
		service.UserServiceConfig{
			EnforcePasswordPolicy: cfg.Auth.EnforcePasswordPolicy,
			DefaultRoles:          cfg.Auth.DefaultRoles,
			LockTTL:               cfg.Auth.LockTTL,
		},
		logger,
	)

	ok = true
	return a, nil
}

// HealthChecks returns the dependency checks served on /health.
func (a *App) HealthChecks() map[string]handler.HealthChecker {
	checks := map[string]handler.HealthChecker{
		"database": a.Store.Database,
	}
	if a.Redis != nil {
		checks["redis"] = handler.HealthCheckFunc(func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		})
	}
	return checks
}

// Gatherer returns the metrics registry, or nil when metrics are disabled.
func (a *App) Gatherer() prometheus.Gatherer {
	if !a.Config.Metrics.Enabled {
		return nil
	}
	return a.Registry
}

// Close releases every opened resource in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// OpenStore connects to the configured database and applies pending migrations.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*repository.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(ctx, cfg, logger)
	case "postgres":
		return postgres.Open(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// OpenMigrator connects to the configured database without migrating it and
// returns a migrator over the driver's embedded migrations.
func OpenMigrator(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*migrate.Migrator, func() error, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := sqlite.NewDB(ctx, sqlite.ConfigFrom(cfg), logger)
		if err != nil {
			return nil, nil, err
		}
		m, err := db.Migrator()
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return m, db.Close, nil

	case "postgres":
		db, err := postgres.NewDB(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		m, cleanup, err := db.Migrator()
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return m, func() error {
			err := cleanup()
			return errors.Join(err, db.Close())
		}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// seedRoleNames merges the built-in catalog with the configured default roles.
func seedRoleNames(defaults []string) []string {
	names := append([]string{}, service.DefaultRoleNames...)
	seen := make(map[string]bool, len(names)+len(defaults))
	for _, n := range names {
		seen[n] = true
	}
	for _, n := range defaults {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	return names
}
