package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/udisondev/spellcore/internal/db/migrations"
)

// RunMigrations applies pending combat log and aura snapshot migrations.
func RunMigrations(ctx context.Context, dsn string) error {
	provider, err := openProvider(dsn)
	if err != nil {
		return err
	}
	defer provider.Close()

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	for _, r := range results {
		slog.Info("migration applied",
			"version", r.Source.Version,
			"file", r.Source.Path,
			"duration", r.Duration)
	}
	return nil
}

// MigrationVersion returns the schema version recorded in the database.
func MigrationVersion(ctx context.Context, dsn string) (int64, error) {
	provider, err := openProvider(dsn)
	if err != nil {
		return 0, err
	}
	defer provider.Close()

	v, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// openProvider owns the sql.DB; Provider.Close closes it.
func openProvider(dsn string) (*goose.Provider, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sql connection for migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, migrations.FS)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("creating goose provider: %w", err)
	}
	return provider, nil
}
