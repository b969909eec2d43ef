// deskctl performs administrative tasks against the configured store:
// seeding sample data and changing user roles. Roles are never changed
// through the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/bootstrap"
	"github.com/spec-kit/service-desk/internal/clock"
	"github.com/spec-kit/service-desk/internal/config"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/observability"
	"github.com/spec-kit/service-desk/internal/repository"
	"github.com/spec-kit/service-desk/internal/service"
)

const usage = `Usage: deskctl <command> [flags]

Commands:
  seed       write sample users and tickets into the configured store
  set-role   grant or revoke the admin role

Run "deskctl <command> --help" for command flags.
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprint(os.Stderr, usage)
		return nil
	}

	switch args[0] {
	case "seed":
		return runSeed(args[1:])
	case "set-role":
		return runSetRole(args[1:])
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runSeed(args []string) error {
	var (
		count    int
		seed     uint64
		password string
		force    bool
	)
	flagSet := pflag.NewFlagSet("deskctl seed", pflag.ContinueOnError)
	flagSet.IntVarP(&count, "count", "n", 25, "number of tickets to generate")
	flagSet.Uint64Var(&seed, "seed", 1, "random seed for reproducible data")
	flagSet.StringVar(&password, "password", "changeme", "password given to every sample user (empty disables password login)")
	flagSet.BoolVar(&force, "force", false, "seed even when the store already has tickets")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if count < 0 {
		return fmt.Errorf("--count must not be negative")
	}

	return withBackend(func(ctx context.Context, cfg *config.Config, backend *repository.Backend, logger *zap.Logger) error {
		result, err := bootstrap.SeedIfEmpty(ctx, backend, bootstrap.SeedOptions{
			Count:      count,
			Seed:       seed,
			Password:   password,
			BcryptCost: cfg.Auth.BcryptCost,
			Now:        clock.Real().Now(),
			Force:      force,
		}, logger)
		if err != nil {
			return err
		}
		if result == nil {
			fmt.Println("store already has tickets; use --force to add more")
			return nil
		}
		fmt.Printf("seeded %d tickets for %d users into %s store\n", result.Tickets, len(result.Users), backend.Name)
		return nil
	})
}

func runSetRole(args []string) error {
	var (
		email string
		role  string
	)
	flagSet := pflag.NewFlagSet("deskctl set-role", pflag.ContinueOnError)
	flagSet.StringVar(&email, "email", "", "email of the user to change")
	flagSet.StringVar(&role, "role", string(domain.RoleAdmin), "new role: member or admin")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if email == "" {
		return fmt.Errorf("--email is required")
	}

	return withBackend(func(ctx context.Context, cfg *config.Config, backend *repository.Backend, _ *zap.Logger) error {
		resolver := service.NewIdentityResolver(backend.Users, clock.Real(), cfg.Auth.AdminEmails)
		user, err := resolver.SetRole(ctx, email, domain.Role(role))
		if err != nil {
			return err
		}
		fmt.Printf("%s is now %s\n", user.Email, user.Role)
		return nil
	})
}

func withBackend(fn func(context.Context, *config.Config, *repository.Backend, *zap.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.Local.SeedSample = false

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()
	backend, err := bootstrap.OpenBackend(ctx, cfg, nil, clock.Real(), logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	return fn(ctx, cfg, backend, logger)
}
