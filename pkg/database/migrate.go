package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxConn is the subset of *pgxpool.Pool used for migrations. pgxmock pools
// satisfy it as well.
type PgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// migrationTarget abstracts the driver-specific parts of applying migrations.
type migrationTarget interface {
	ensureTable(ctx context.Context) error
	applied(ctx context.Context, version string) (bool, error)
	apply(ctx context.Context, version, stmt string) error
}

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

// RunMigrations applies every *.up.sql file at the root of migrations to a
// PostgreSQL database in lexical order, skipping versions already recorded
// in schema_migrations. Connection errors are retried; SQL errors are not.
func RunMigrations(ctx context.Context, conn PgxConn, migrations fs.FS, logger *slog.Logger) error {
	return retry(ctx, logger, "run migrations", true, func() error {
		return runMigrations(ctx, pgTarget{conn: conn}, migrations, logger)
	})
}

// RunSQLiteMigrations is RunMigrations for a database/sql SQLite handle.
func RunSQLiteMigrations(ctx context.Context, db *sql.DB, migrations fs.FS, logger *slog.Logger) error {
	return retry(ctx, logger, "run sqlite migrations", true, func() error {
		return runMigrations(ctx, sqlTarget{db: db}, migrations, logger)
	})
}

func runMigrations(ctx context.Context, target migrationTarget, migrations fs.FS, logger *slog.Logger) error {
	if err := target.ensureTable(ctx); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	names, err := upMigrations(migrations)
	if err != nil {
		return err
	}

	for _, name := range names {
		done, err := target.applied(ctx, name)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if done {
			logger.Debug("migration already applied, skipping", slog.String("version", name))
			continue
		}

		content, err := fs.ReadFile(migrations, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := target.apply(ctx, name, string(content)); err != nil {
			return err
		}
		logger.Info("migration applied", slog.String("version", name))
	}
	return nil
}

func upMigrations(migrations fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

type pgTarget struct {
	conn PgxConn
}

func (t pgTarget) ensureTable(ctx context.Context) error {
	_, err := t.conn.Exec(ctx, createMigrationsTable)
	return err
}

func (t pgTarget) applied(ctx context.Context, version string) (bool, error) {
	var exists bool
	err := t.conn.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version).Scan(&exists)
	return exists, err
}

func (t pgTarget) apply(ctx context.Context, version, stmt string) error {
	tx, err := t.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx for migration %s: %w", version, err)
	}

	if _, err := tx.Exec(ctx, stmt); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("execute migration %s: %w", version, err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}

type sqlTarget struct {
	db *sql.DB
}

func (t sqlTarget) ensureTable(ctx context.Context) error {
	_, err := t.db.ExecContext(ctx, createMigrationsTable)
	return err
}

func (t sqlTarget) applied(ctx context.Context, version string) (bool, error) {
	var n int
	err := t.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", version).Scan(&n)
	return n > 0, err
}

func (t sqlTarget) apply(ctx context.Context, version, stmt string) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for migration %s: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("execute migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}
