package store

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFiles embed.FS

// Driver names accepted by RunMigrations.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// RunMigrations applies the embedded migrations for driver. target is the
// Postgres DSN or the SQLite file path.
func RunMigrations(driver, target string) error {
	dir, dbURL, err := migrationTarget(driver, target)
	if err != nil {
		return err
	}
	sub, err := fs.Sub(migrationFiles, dir)
	if err != nil {
		return fmt.Errorf("migrations %s: %w", dir, err)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("iofs.New: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return fmt.Errorf("migrate.New: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate.Up: %w", err)
	}
	return nil
}

func migrationTarget(driver, target string) (dir, dbURL string, err error) {
	switch driver {
	case DriverSQLite:
		return "migrations/sqlite", "sqlite3://" + SQLiteDSN(target), nil
	case DriverPostgres:
		if !strings.HasPrefix(target, "postgres://") && !strings.HasPrefix(target, "postgresql://") {
			return "", "", fmt.Errorf("postgres migrations need a URL DSN, got %q", target)
		}
		return "migrations/postgres", target, nil
	default:
		return "", "", fmt.Errorf("unknown store driver %q", driver)
	}
}
