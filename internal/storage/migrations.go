package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations executes all pending database migrations.
// Migrations are SQL files in the migrations/ directory, named with a numeric prefix.
func RunMigrations(ctx context.Context, db *DB, logger *zap.Logger) (int, error) {
	if err := createMigrationsTable(ctx, db.DB); err != nil {
		return 0, fmt.Errorf("creating migrations table: %w", err)
	}

	applied, err := getAppliedMigrations(ctx, db.DB)
	if err != nil {
		return 0, fmt.Errorf("getting applied migrations: %w", err)
	}

	migrations, err := getMigrationFiles()
	if err != nil {
		return 0, fmt.Errorf("reading migration files: %w", err)
	}

	count := 0
	for _, m := range migrations {
		if applied[m.Name] {
			continue
		}

		logger.Info("Applying migration", zap.String("name", m.Name))
		if err := applyMigration(ctx, db.DB, m); err != nil {
			return count, fmt.Errorf("applying migration %s: %w", m.Name, err)
		}
		count++
	}

	return count, nil
}

type migration struct {
	Name    string
	Content string
}

func createMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			name TEXT PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func getAppliedMigrations(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM _migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}

	return applied, rows.Err()
}

func getMigrationFiles() ([]migration, error) {
	var migrations []migration

	err := fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}

		content, err := migrationsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		migrations = append(migrations, migration{
			Name:    filepath.Base(path),
			Content: string(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Numeric prefixes make lexical order the apply order.
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Name < migrations[j].Name
	})

	return migrations, nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.Content); err != nil {
		return fmt.Errorf("executing SQL: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO _migrations (name) VALUES (?)", m.Name); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}

	return tx.Commit()
}
