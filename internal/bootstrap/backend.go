// Package bootstrap assembles the storage backend selected by configuration.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/auth"
	"github.com/spec-kit/service-desk/internal/clock"
	"github.com/spec-kit/service-desk/internal/config"
	"github.com/spec-kit/service-desk/internal/persistence"
	"github.com/spec-kit/service-desk/internal/repository"
	"github.com/spec-kit/service-desk/internal/repository/local"
	"github.com/spec-kit/service-desk/internal/repository/mongo"
	"github.com/spec-kit/service-desk/internal/repository/postgres"
	"github.com/spec-kit/service-desk/internal/repository/redisstore"
	"github.com/spec-kit/service-desk/internal/sample"
)

// OpenBackend connects the configured store. When rdb is non-nil password
// reset tokens live in Redis instead of the primary store.
func OpenBackend(ctx context.Context, cfg *config.Config, rdb *persistence.Redis, clk clock.Clock, logger *zap.Logger) (*repository.Backend, error) {
	if clk == nil {
		clk = clock.Real()
	}

	var (
		backend *repository.Backend
		err     error
	)
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		backend, err = openPostgres(ctx, cfg, logger)
	case config.BackendMongo:
		backend, err = openMongo(ctx, cfg, clk, logger)
	case config.BackendLocal, "":
		backend, err = openLocal(ctx, cfg, clk, logger)
	default:
		err = fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	if err != nil {
		return nil, err
	}

	if client := rdb.ClientHandle(); client != nil {
		backend.Resets = redisstore.NewPasswordResetRepository(client, clk)
		logger.Info("password reset tokens stored in redis")
	}
	return backend, nil
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*repository.Backend, error) {
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}
	pool := pg.PoolHandle()
	return &repository.Backend{
		Name:    config.BackendPostgres,
		Tickets: postgres.NewTicketRepository(pool),
		Users:   postgres.NewUserRepository(pool),
		Resets:  postgres.NewPasswordResetRepository(pool),
		Close:   pg.Close,
	}, nil
}

func openMongo(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *zap.Logger) (*repository.Backend, error) {
	m, err := persistence.NewMongo(ctx, cfg.Mongo, logger)
	if err != nil {
		return nil, err
	}
	tickets, err := mongo.NewTicketRepository(ctx, m.Database)
	if err != nil {
		m.Close()
		return nil, err
	}
	users, err := mongo.NewUserRepository(ctx, m.Database)
	if err != nil {
		m.Close()
		return nil, err
	}
	resets, err := mongo.NewPasswordResetRepository(ctx, m.Database, clk)
	if err != nil {
		m.Close()
		return nil, err
	}
	return &repository.Backend{
		Name:    config.BackendMongo,
		Tickets: tickets,
		Users:   users,
		Resets:  resets,
		Close:   m.Close,
	}, nil
}

func openLocal(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *zap.Logger) (*repository.Backend, error) {
	db, err := persistence.OpenSQLite(cfg.Local, logger)
	if err != nil {
		return nil, err
	}
	store, err := local.New(ctx, db, clk)
	if err != nil {
		db.Close()
		return nil, err
	}
	backend := &repository.Backend{
		Name:    config.BackendLocal,
		Tickets: store.Tickets(),
		Users:   store.Users(),
		Resets:  store.Resets(),
		Close:   func() { _ = store.Close() },
	}

	if cfg.Local.SeedSample {
		if _, err := SeedIfEmpty(ctx, backend, SeedOptions{
			Count:      cfg.Local.SampleSize,
			Password:   cfg.Local.SamplePassword,
			BcryptCost: cfg.Auth.BcryptCost,
			Now:        clk.Now(),
		}, logger); err != nil {
			backend.Close()
			return nil, err
		}
	}
	return backend, nil
}

// SeedOptions controls sample seeding.
type SeedOptions struct {
	Count      int
	Seed       uint64
	Password   string
	BcryptCost int
	Now        time.Time
	// Force seeds even when tickets already exist.
	Force bool
}

// SeedIfEmpty writes the sample dataset into backend. Unless opts.Force is
// set nothing happens when the store already holds tickets; the returned
// result is nil in that case.
func SeedIfEmpty(ctx context.Context, backend *repository.Backend, opts SeedOptions, logger *zap.Logger) (*sample.Result, error) {
	if !opts.Force {
		existing, err := backend.Tickets.List(ctx, repository.TicketFilter{Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			logger.Info("store not empty; skipping sample data")
			return nil, nil
		}
	}

	ds, err := sample.Default()
	if err != nil {
		return nil, err
	}

	var hash string
	if opts.Password != "" {
		if hash, err = auth.HashPassword(opts.Password, opts.BcryptCost); err != nil {
			return nil, fmt.Errorf("hash sample password: %w", err)
		}
	}

	result, err := sample.Seed(ctx, ds, backend.Tickets, backend.Users, sample.Options{
		Count:        opts.Count,
		Seed:         opts.Seed,
		Now:          opts.Now,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("seeded sample data",
		zap.String("backend", backend.Name),
		zap.Int("users", len(result.Users)),
		zap.Int("tickets", result.Tickets))
	return result, nil
}
