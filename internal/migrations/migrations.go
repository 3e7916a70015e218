// AngelaMos | 2026
// migrations.go

package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// New builds a migrator over an open handle. The returned migrator shares
// db, so callers must not Close it while db is still in use.
func New(db *sql.DB, driver string) (*migrate.Migrate, error) {
	var (
		dir      string
		dbName   string
		instance database.Driver
		err      error
	)

	switch driver {
	case "pgx":
		dir, dbName = "postgres", "pgx5"
		instance, err = pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	case "sqlite3":
		dir, dbName = "sqlite", "sqlite3"
		instance, err = sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	default:
		return nil, fmt.Errorf("unsupported migration driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open migration driver: %w", err)
	}

	src, err := iofs.New(files, dir)
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dbName, instance)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}

	return m, nil
}

// Up applies every pending migration. An up-to-date schema is not an error.
func Up(db *sql.DB, driver string) error {
	m, err := New(db, driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}
