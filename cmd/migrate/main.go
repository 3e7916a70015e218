// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"

	"github.com/carterperez-dev/templates/imagegate/internal/config"
	"github.com/carterperez-dev/templates/imagegate/internal/core"
	"github.com/carterperez-dev/templates/imagegate/internal/migrations"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load env file", "error", err)
	}
	if _, err := os.Stat(*configPath); errors.Is(err, fs.ErrNotExist) {
		*configPath = ""
	}

	if err := run(*configPath, flag.Args()); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := core.NewDatabase(context.Background(), cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // process exits right after

	m, err := migrations.New(db.DB.DB, cfg.Database.Driver)
	if err != nil {
		return err
	}

	switch args[0] {
	case "up":
		return report(m.Up(), "migrations applied")

	case "down":
		return report(m.Steps(-1), "last migration rolled back")

	case "goto":
		if len(args) < 2 {
			return errors.New("goto needs a version number")
		}
		version, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		return report(m.Migrate(uint(version)), "migrated to version "+args[1])

	case "status":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			slog.Info("no migrations applied yet")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read version: %w", err)
		}
		slog.Info("current migration version", "version", version, "dirty", dirty)
		return nil

	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func report(err error, done string) error {
	if errors.Is(err, migrate.ErrNoChange) {
		slog.Info("no change, schema already current")
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info(done)
	return nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: migrate [-config path] <command>")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  up       apply all pending migrations")
	fmt.Fprintln(os.Stderr, "  down     roll back the last migration")
	fmt.Fprintln(os.Stderr, "  goto N   migrate to version N")
	fmt.Fprintln(os.Stderr, "  status   print the current version")
}
