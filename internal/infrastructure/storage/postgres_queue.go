package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"FeedPress/internal/domain"
	"FeedPress/internal/ports"
)

const queueTable = "indexing_queue"

var (
	psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	queueColumns = []string{
		"id", "article_id", "article_title", "url", "type", "status",
		"retry_count", "max_retries", "last_error", "error_code", "added_at", "processed_at",
	}
	liveStatuses = []string{string(domain.QueuePending), string(domain.QueueProcessing)}
)

// PostgresQueueStore keeps the indexing queue in Postgres. The partial unique index on
// live items makes Insert atomic.
type PostgresQueueStore struct {
	db *sql.DB
}

var _ ports.QueueStore = (*PostgresQueueStore)(nil)

// NewPostgresQueueStore wires a migrated sql.DB.
func NewPostgresQueueStore(db *sql.DB) *PostgresQueueStore {
	return &PostgresQueueStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueueItem(row rowScanner) (domain.QueueItem, error) {
	var (
		item      domain.QueueItem
		kind      string
		status    string
		code      string
		processed sql.NullTime
	)
	if err := row.Scan(&item.ID, &item.ArticleID, &item.ArticleTitle, &item.URL, &kind, &status,
		&item.RetryCount, &item.MaxRetries, &item.LastError, &code, &item.AddedAt, &processed); err != nil {
		return domain.QueueItem{}, err
	}
	item.Type = domain.NotificationType(kind)
	item.Status = domain.QueueStatus(status)
	item.ErrorCode = domain.ErrorClass(code)
	if processed.Valid {
		t := processed.Time
		item.ProcessedAt = &t
	}
	return item, nil
}

// Insert relies on ON CONFLICT against the live-article index; no row inserted means already queued.
func (s *PostgresQueueStore) Insert(ctx context.Context, item domain.QueueItem) error {
	query, args, err := psql.Insert(queueTable).
		Columns(queueColumns...).
		Values(item.ID, item.ArticleID, item.ArticleTitle, item.URL, string(item.Type), string(item.Status),
			item.RetryCount, item.MaxRetries, item.LastError, string(item.ErrorCode), item.AddedAt, item.ProcessedAt).
		Suffix("ON CONFLICT (article_id) WHERE status IN ('pending', 'processing') DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.StorageError("insert queue item", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.StorageError("insert queue item", err)
	}
	if n == 0 {
		return domain.ErrAlreadyQueued
	}
	return nil
}

// ClaimNext flips the oldest pending row to processing in one statement.
func (s *PostgresQueueStore) ClaimNext(ctx context.Context) (*domain.QueueItem, error) {
	sub, subArgs, err := sq.Select("id").
		From(queueTable).
		Where(sq.Eq{"status": string(domain.QueuePending)}).
		OrderBy("added_at", "id").
		Limit(1).
		Suffix("FOR UPDATE SKIP LOCKED").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build claim subquery: %w", err)
	}

	query, args, err := psql.Update(queueTable).
		Set("status", string(domain.QueueProcessing)).
		Where(sq.Expr("id = ("+sub+")", subArgs...)).
		Suffix("RETURNING " + strings.Join(queueColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build claim: %w", err)
	}

	item, err := scanQueueItem(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.StorageError("claim queue item", err)
	}
	return &item, nil
}

func (s *PostgresQueueStore) Update(ctx context.Context, item domain.QueueItem) error {
	query, args, err := psql.Update(queueTable).
		SetMap(map[string]any{
			"status":       string(item.Status),
			"retry_count":  item.RetryCount,
			"max_retries":  item.MaxRetries,
			"last_error":   item.LastError,
			"error_code":   string(item.ErrorCode),
			"processed_at": item.ProcessedAt,
		}).
		Where(sq.Eq{"id": item.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.StorageError("update queue item", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *PostgresQueueStore) Counts(ctx context.Context) (map[domain.QueueStatus]int, error) {
	query, args, err := psql.Select("status", "COUNT(*)").From(queueTable).GroupBy("status").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build counts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.StorageError("count queue items", err)
	}
	defer rows.Close()

	counts := make(map[domain.QueueStatus]int, 4)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, domain.StorageError("scan queue count", err)
		}
		counts[domain.QueueStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("iterate queue counts", err)
	}
	return counts, nil
}

func (s *PostgresQueueStore) Recent(ctx context.Context, limit int) ([]domain.QueueItem, error) {
	builder := psql.Select(queueColumns...).From(queueTable).OrderBy("added_at DESC", "id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.StorageError("list queue items", err)
	}
	defer rows.Close()

	var items []domain.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, domain.StorageError("scan queue item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("iterate queue items", err)
	}
	return items, nil
}

func (s *PostgresQueueStore) Clear(ctx context.Context) (int, error) {
	query, args, err := psql.Delete(queueTable).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build clear: %w", err)
	}
	return s.execCount(ctx, "clear queue", query, args)
}

// ResetFailed resets the newest failed row of every article that has no live row.
func (s *PostgresQueueStore) ResetFailed(ctx context.Context) (int, error) {
	sub, subArgs, err := sq.Select("id").
		Options("DISTINCT ON (f.article_id)").
		From(queueTable + " f").
		Where(sq.Eq{"f.status": string(domain.QueueFailed)}).
		Where(sq.Expr("NOT EXISTS (SELECT 1 FROM "+queueTable+" l WHERE l.article_id = f.article_id AND l.status IN (?, ?))",
			liveStatuses[0], liveStatuses[1])).
		OrderBy("f.article_id", "f.added_at DESC").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build reset subquery: %w", err)
	}

	query, args, err := psql.Update(queueTable).
		Set("status", string(domain.QueuePending)).
		Set("retry_count", 0).
		Set("processed_at", nil).
		Where(sq.Expr("id IN ("+sub+")", subArgs...)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build reset: %w", err)
	}
	return s.execCount(ctx, "reset failed items", query, args)
}

func (s *PostgresQueueStore) RequeueProcessing(ctx context.Context) (int, error) {
	query, args, err := psql.Update(queueTable).
		Set("status", string(domain.QueuePending)).
		Where(sq.Eq{"status": string(domain.QueueProcessing)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build requeue: %w", err)
	}
	return s.execCount(ctx, "requeue processing items", query, args)
}

// RecordIndexed bumps the singleton stats row in place.
func (s *PostgresQueueStore) RecordIndexed(ctx context.Context, at time.Time) error {
	query, args, err := psql.Insert("indexing_stats").
		Columns("id", "total_indexed", "last_indexed_at").
		Values(1, 1, at.UTC()).
		Suffix("ON CONFLICT (id) DO UPDATE SET total_indexed = indexing_stats.total_indexed + 1, last_indexed_at = EXCLUDED.last_indexed_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build stats upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return domain.StorageError("record indexed", err)
	}
	return nil
}

func (s *PostgresQueueStore) Stats(ctx context.Context) (domain.IndexingStats, error) {
	query, args, err := psql.Select("total_indexed", "last_indexed_at").
		From("indexing_stats").
		Where(sq.Eq{"id": 1}).
		ToSql()
	if err != nil {
		return domain.IndexingStats{}, fmt.Errorf("build stats: %w", err)
	}

	var (
		stats domain.IndexingStats
		last  sql.NullTime
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&stats.TotalIndexed, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IndexingStats{}, nil
	}
	if err != nil {
		return domain.IndexingStats{}, domain.StorageError("read indexing stats", err)
	}
	if last.Valid {
		t := last.Time
		stats.LastIndexedAt = &t
	}
	return stats, nil
}

// Close is a no-op; the connection pool belongs to the composition root.
func (s *PostgresQueueStore) Close() error { return nil }

func (s *PostgresQueueStore) execCount(ctx context.Context, op, query string, args []any) (int, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, domain.StorageError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.StorageError(op, err)
	}
	return int(n), nil
}
