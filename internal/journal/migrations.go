package journal

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"slices"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// schemaStep is one numbered migration file, e.g. 002_pending.sql.
type schemaStep struct {
	version int
	name    string
	body    string
}

func schemaSteps() ([]schemaStep, error) {
	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	steps := make([]schemaStep, 0, len(names))
	for _, name := range names {
		base := strings.TrimPrefix(name, "migrations/")
		prefix, _, _ := strings.Cut(base, "_")
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s: missing numeric prefix", base)
		}
		body, err := migrationFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		steps = append(steps, schemaStep{version: version, name: base, body: string(body)})
	}
	slices.SortFunc(steps, func(a, b schemaStep) int { return a.version - b.version })
	return steps, nil
}

// applyMigrations brings the schema up to the newest step, tracking progress
// in PRAGMA user_version.
func (s *Store) applyMigrations(ctx context.Context) error {
	steps, err := schemaSteps()
	if err != nil {
		return err
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, step := range steps {
		if step.version <= current {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, step.body); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s: %w", step.name, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.ExecContext(ctx, "PRAGMA user_version = "+strconv.Itoa(step.version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s: set version: %w", step.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %s: commit: %w", step.name, err)
		}
		current = step.version
	}
	return nil
}
