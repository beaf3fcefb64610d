package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.up.sql
var embeddedMigrations embed.FS

// RunMigrations executes every embedded *.up.sql file in name order. The scripts are idempotent
func (r *PostgresRepository) RunMigrations(ctx context.Context) error {
	files, err := fs.Glob(embeddedMigrations, "migrations/*.up.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(files)

	for _, name := range files {
		sql, err := embeddedMigrations.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", name, err)
		}
		if _, err := r.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
		r.logger.Info("Migration applied", "file", strings.TrimPrefix(name, "migrations/"))
	}
	return nil
}
