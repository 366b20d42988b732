package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	appconfig "github.com/wolfman30/funcionariopro/internal/config"
	appmigrations "github.com/wolfman30/funcionariopro/migrations"
	"github.com/wolfman30/funcionariopro/pkg/logging"
)

var errDatabaseURLRequired = errors.New("migrate: DATABASE_URL is required")

type command struct {
	name    string
	version int
}

// parseCommand reads "up" (default), "version" or "force <n>".
func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{name: "up"}, nil
	}
	switch args[0] {
	case "up", "version":
		return command{name: args[0]}, nil
	case "force":
		if len(args) < 2 {
			return command{}, errors.New("migrate: force needs a version")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 0 {
			return command{}, fmt.Errorf("migrate: invalid version %q", args[1])
		}
		return command{name: "force", version: v}, nil
	}
	return command{}, fmt.Errorf("migrate: unknown command %q", args[0])
}

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	cmd, err := parseCommand(os.Args[1:])
	if err != nil {
		logger.Error("bad arguments", "error", err)
		os.Exit(2)
	}
	if err := run(cmd, cfg.DatabaseURL, logger); err != nil {
		logger.Error("migration failed", "command", cmd.name, "error", err)
		os.Exit(1)
	}
}

func run(cmd command, databaseURL string, logger *logging.Logger) error {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return errDatabaseURLRequired
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() { _ = db.Close() }()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	m, err := newMigrator(db)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	switch cmd.name {
	case "force":
		if err := m.Force(cmd.version); err != nil {
			return fmt.Errorf("force version: %w", err)
		}
		logger.Info("schema version forced", "version", cmd.version)
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
	}
	return reportVersion(m, logger)
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("db driver: %w", err)
	}
	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

func reportVersion(m *migrate.Migrate, logger *logging.Logger) error {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		logger.Info("no migrations applied")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	logger.Info("published_agents schema ready", "version", version, "dirty", dirty)
	if dirty {
		return fmt.Errorf("schema version %d is dirty; fix it and run force", version)
	}
	return nil
}
