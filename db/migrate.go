package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/url"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file:// migrations loader
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Migrate applies the SQL migrations in migrationsDir to the database
// reachable via dsn. A nil logger disables informational logging. Already
// up-to-date schemas are a no-op.
func Migrate(ctx context.Context, dsn, migrationsDir string, logger *log.Logger) error {
	if migrationsDir == "" {
		return fmt.Errorf("db: migrations directory required")
	}

	abs, err := filepath.Abs(migrationsDir)
	if err != nil {
		return fmt.Errorf("db: resolve migrations path: %w", err)
	}

	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("db: open migrations connection: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("db: ping migrations database: %w", err)
	}

	driver, err := pgxv5.WithInstance(sqlDB, &pgxv5.Config{})
	if err != nil {
		return fmt.Errorf("db: initialise pgx migrate driver: %w", err)
	}

	sourceURL := (&url.URL{Scheme: "file", Path: abs}).String()
	m, err := migrate.NewWithDatabaseInstance(sourceURL, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("db: initialise migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			if logger != nil {
				logger.Printf("database schema up-to-date")
			}
			return nil
		}
		return fmt.Errorf("db: apply migrations: %w", err)
	}

	if logger != nil {
		logger.Printf("database migrations applied: path=%s", abs)
	}
	return nil
}
