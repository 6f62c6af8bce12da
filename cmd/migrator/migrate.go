package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type migrator struct {
	conn   *pgx.Conn
	dir    string
	logger *zap.Logger
}

func (m *migrator) run(ctx context.Context) (applied, skipped int, err error) {
	if _, err := m.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return 0, 0, fmt.Errorf("ensure schema_migrations: %w", err)
	}

	done, err := m.appliedNames(ctx)
	if err != nil {
		return 0, 0, err
	}

	files, err := migrationFiles(m.dir)
	if err != nil {
		return 0, 0, err
	}

	for _, name := range files {
		if done[name] {
			m.logger.Debug("skipping applied migration", zap.String("name", name))
			skipped++
			continue
		}

		if err := m.apply(ctx, name); err != nil {
			return applied, skipped, err
		}
		applied++
	}

	return applied, skipped, nil
}

func (m *migrator) appliedNames(ctx context.Context) (map[string]bool, error) {
	rows, err := m.conn.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}

	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan applied migrations: %w", err)
	}

	done := make(map[string]bool, len(names))
	for _, n := range names {
		done[n] = true
	}
	return done, nil
}

// apply runs one file and records it in the same transaction.
func (m *migrator) apply(ctx context.Context, name string) error {
	contents, err := os.ReadFile(filepath.Join(m.dir, name))
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	start := time.Now()
	m.logger.Info("applying migration", zap.String("name", name))

	tx, err := m.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin %s: %w", name, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, string(contents)); err != nil {
		return fmt.Errorf("execute %s: %w", name, err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
		return fmt.Errorf("mark applied %s: %w", name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}

	m.logger.Info("applied migration",
		zap.String("name", name),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// migrationFiles lists *.up.sql files in dir in name order.
func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		names = append(names, entry.Name())
	}

	sort.Strings(names)
	return names, nil
}
