package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	appconfig "github.com/wolfman30/physioflow/internal/config"
	appmigrations "github.com/wolfman30/physioflow/migrations"
	"github.com/wolfman30/physioflow/pkg/logging"
)

const usage = "usage: migrate [up | down [steps] | version | force <version>]"

type action string

const (
	actionUp      action = "up"
	actionDown    action = "down"
	actionVersion action = "version"
	actionForce   action = "force"
)

// command is one parsed invocation. n is the step count for down and the
// target version for force.
type command struct {
	action action
	n      int
}

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{action: actionUp}, nil
	}
	name := action(strings.ToLower(strings.TrimSpace(args[0])))
	rest := args[1:]
	switch name {
	case actionUp, actionVersion:
		if len(rest) > 0 {
			return command{}, fmt.Errorf("%s takes no arguments", name)
		}
		return command{action: name}, nil
	case actionDown:
		if len(rest) == 0 {
			return command{action: actionDown, n: 1}, nil
		}
		steps, err := strconv.Atoi(rest[0])
		if err != nil || steps < 1 || len(rest) > 1 {
			return command{}, fmt.Errorf("down: steps must be a positive number")
		}
		return command{action: actionDown, n: steps}, nil
	case actionForce:
		if len(rest) != 1 {
			return command{}, fmt.Errorf("force: exactly one version required")
		}
		version, err := strconv.Atoi(rest[0])
		if err != nil || version < -1 {
			return command{}, fmt.Errorf("force: invalid version %q", rest[0])
		}
		return command{action: actionForce, n: version}, nil
	}
	return command{}, fmt.Errorf("unknown command %q", args[0])
}

// migrator is the subset of *migrate.Migrate the commands use.
type migrator interface {
	Up() error
	Steps(n int) error
	Force(version int) error
	Version() (uint, bool, error)
}

func run(m migrator, cmd command, logger *logging.Logger) error {
	switch cmd.action {
	case actionUp:
		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				logger.Info("schema already current")
				return nil
			}
			return fmt.Errorf("migrate up: %w", err)
		}
	case actionDown:
		if err := m.Steps(-cmd.n); err != nil {
			return fmt.Errorf("migrate down %d: %w", cmd.n, err)
		}
	case actionForce:
		if err := m.Force(cmd.n); err != nil {
			return fmt.Errorf("force version %d: %w", cmd.n, err)
		}
	case actionVersion:
	default:
		return fmt.Errorf("unsupported command %q", cmd.action)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		logger.Info("schema has no migrations applied", "command", cmd.action)
		return nil
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	}
	logger.Info("schema version", "command", cmd.action, "version", version, "dirty", dirty)
	if dirty && cmd.action != actionForce {
		return fmt.Errorf("schema version %d is dirty; fix it and run force", version)
	}
	return nil
}

func openMigrator(ctx context.Context, databaseURL string) (*migrate.Migrate, func(), error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping db: %w", err)
	}

	target, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("postgres driver: %w", err)
	}
	source, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", target)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, func() { _, _ = m.Close() }, nil
}

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	cmd, err := parseCommand(os.Args[1:])
	if err != nil {
		logger.Error(usage, "error", err)
		os.Exit(2)
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	m, closeFn, err := openMigrator(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to prepare migrations", "error", err)
		os.Exit(1)
	}
	err = run(m, cmd, logger)
	closeFn()
	if err != nil {
		logger.Error("migration failed", "command", cmd.action, "error", err)
		os.Exit(1)
	}
}
