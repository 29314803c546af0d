package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	Up      string
}

var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_feed_sources",
		Up: `
			CREATE TABLE IF NOT EXISTS feed_sources (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL DEFAULT '',
				url TEXT NOT NULL,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				author_id TEXT NOT NULL DEFAULT '',
				min_content_length INTEGER NOT NULL DEFAULT 0,
				max_posts_per_day INTEGER NOT NULL DEFAULT 0,
				posts_today INTEGER NOT NULL DEFAULT 0,
				total_posts INTEGER NOT NULL DEFAULT 0,
				last_fetched TIMESTAMPTZ,
				last_published TIMESTAMPTZ,
				error_log JSONB NOT NULL DEFAULT '[]',
				settings JSONB NOT NULL DEFAULT '{}'
			);
		`,
	},
	{
		Version: 2,
		Name:    "create_categories_and_articles",
		Up: `
			CREATE TABLE IF NOT EXISTS categories (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				active BOOLEAN NOT NULL DEFAULT TRUE,
				article_count INTEGER NOT NULL DEFAULT 0
			);
			CREATE TABLE IF NOT EXISTS articles (
				id TEXT PRIMARY KEY,
				slug TEXT NOT NULL UNIQUE,
				title TEXT NOT NULL,
				content TEXT NOT NULL DEFAULT '',
				seo_title TEXT NOT NULL DEFAULT '',
				seo_description TEXT NOT NULL DEFAULT '',
				image_url TEXT NOT NULL DEFAULT '',
				category_id TEXT NOT NULL DEFAULT '',
				author_id TEXT NOT NULL DEFAULT '',
				feed_id TEXT NOT NULL DEFAULT '',
				source_url TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				published_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_articles_title ON articles(title);
			CREATE INDEX IF NOT EXISTS idx_articles_source_url ON articles(source_url);
		`,
	},
	{
		Version: 3,
		Name:    "create_indexing_queue",
		Up: `
			CREATE TABLE IF NOT EXISTS indexing_queue (
				id TEXT PRIMARY KEY,
				article_id TEXT NOT NULL,
				article_title TEXT NOT NULL DEFAULT '',
				url TEXT NOT NULL,
				type TEXT NOT NULL,
				status TEXT NOT NULL,
				retry_count INTEGER NOT NULL DEFAULT 0,
				max_retries INTEGER NOT NULL DEFAULT 3,
				last_error TEXT NOT NULL DEFAULT '',
				error_code TEXT NOT NULL DEFAULT '',
				added_at TIMESTAMPTZ NOT NULL,
				processed_at TIMESTAMPTZ
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_indexing_queue_live_article
				ON indexing_queue(article_id) WHERE status IN ('pending', 'processing');
			CREATE INDEX IF NOT EXISTS idx_indexing_queue_status_added ON indexing_queue(status, added_at);
			CREATE TABLE IF NOT EXISTS indexing_stats (
				id SMALLINT PRIMARY KEY,
				total_indexed BIGINT NOT NULL DEFAULT 0,
				last_indexed_at TIMESTAMPTZ
			);
		`,
	},
}

// Open connects to Postgres, configures the pool and applies pending migrations.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := Migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return conn, nil
}

// Migrate runs every migration newer than the recorded schema version.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		);
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	for _, m := range sorted {
		if m.Version <= current {
			continue
		}
		if err := runMigration(ctx, db, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func runMigration(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
		return err
	}
	return tx.Commit()
}
