// Package migrations holds the embedded SQL schema for the identity store and
// a minimal runner for deployments that apply it at startup.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed *.sql
var migrationFS embed.FS

// FS exposes the embedded SQL for external migration runners.
var FS = migrationFS

// Apply runs every embedded migration in filename order, recording applied
// names in migrations.applied so reruns are no-ops.
func Apply(ctx context.Context, pg *pgxpool.Pool) error {
	if _, err := pg.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS migrations`); err != nil {
		return fmt.Errorf("creating migrations schema: %w", err)
	}
	if _, err := pg.Exec(ctx, `CREATE TABLE IF NOT EXISTS migrations.applied (
		name text PRIMARY KEY,
		applied_at timestamptz NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	names, err := fs.Glob(migrationFS, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		var done bool
		err := pg.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM migrations.applied WHERE name=$1)`, name,
		).Scan(&done)
		if err != nil {
			return fmt.Errorf("checking migration %s: %w", name, err)
		}
		if done {
			continue
		}

		sql, err := migrationFS.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := pg.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("applying migration %s: %w", name, err)
		}
		if _, err := pg.Exec(ctx,
			`INSERT INTO migrations.applied (name) VALUES ($1)`, name,
		); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}
