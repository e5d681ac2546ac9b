package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"

	_ "modernc.org/sqlite"
)

// SQLiteConfig configures a local SQLite database file.
type SQLiteConfig struct {
	Path string
	// BusyTimeoutMillis is how long a writer waits on a locked database.
	BusyTimeoutMillis int
}

// DefaultSQLiteConfig returns defaults for path.
func DefaultSQLiteConfig(path string) SQLiteConfig {
	return SQLiteConfig{Path: path, BusyTimeoutMillis: 5000}
}

// DSN returns the modernc.org/sqlite data source name with WAL journaling,
// foreign keys and the busy timeout enabled.
func (c SQLiteConfig) DSN() string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeoutMillis))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	return "file:" + c.Path + "?" + q.Encode()
}

// OpenSQLite opens the database and verifies it with a ping. The pool is
// limited to one connection so writers never contend inside the process.
func OpenSQLite(ctx context.Context, cfg SQLiteConfig, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("sqlite", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
	}
	db.SetMaxOpenConns(1)

	if err := retry(ctx, logger, "ping sqlite", true, func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", cfg.Path, err)
	}
	return db, nil
}
