package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"FeedPress/internal/domain"
	"FeedPress/internal/ports"
)

const uniqueViolation = "23505"

var feedColumns = []string{
	"id", "name", "url", "active", "author_id", "min_content_length", "max_posts_per_day",
	"posts_today", "total_posts", "last_fetched", "last_published", "error_log", "settings",
}

// PostgresFeedStore persists feed sources and their counters.
type PostgresFeedStore struct {
	db *sql.DB
}

var _ ports.FeedStore = (*PostgresFeedStore)(nil)

func NewPostgresFeedStore(db *sql.DB) *PostgresFeedStore {
	return &PostgresFeedStore{db: db}
}

func scanFeed(row rowScanner) (domain.FeedSource, error) {
	var (
		feed          domain.FeedSource
		lastFetched   sql.NullTime
		lastPublished sql.NullTime
		errorLog      []byte
		settings      []byte
	)
	if err := row.Scan(&feed.ID, &feed.Name, &feed.URL, &feed.Active, &feed.AuthorID, &feed.MinContentLength,
		&feed.MaxPostsPerDay, &feed.PostsToday, &feed.TotalPosts, &lastFetched, &lastPublished, &errorLog, &settings); err != nil {
		return domain.FeedSource{}, err
	}
	feed.LastFetched = nullTimePtr(lastFetched)
	feed.LastPublished = nullTimePtr(lastPublished)
	if len(errorLog) > 0 {
		if err := json.Unmarshal(errorLog, &feed.ErrorLog); err != nil {
			return domain.FeedSource{}, fmt.Errorf("decode error log: %w", err)
		}
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &feed.Settings); err != nil {
			return domain.FeedSource{}, fmt.Errorf("decode settings: %w", err)
		}
	}
	return feed, nil
}

func (s *PostgresFeedStore) ListActive(ctx context.Context) ([]domain.FeedSource, error) {
	query, args, err := psql.Select(feedColumns...).From("feed_sources").
		Where(sq.Eq{"active": true}).OrderBy("name", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list feeds: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.StorageError("list feeds", err)
	}
	defer rows.Close()

	var feeds []domain.FeedSource
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, domain.StorageError("scan feed", err)
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("iterate feeds", err)
	}
	return feeds, nil
}

func (s *PostgresFeedStore) Get(ctx context.Context, id string) (domain.FeedSource, error) {
	query, args, err := psql.Select(feedColumns...).From("feed_sources").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.FeedSource{}, fmt.Errorf("build get feed: %w", err)
	}
	feed, err := scanFeed(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FeedSource{}, fmt.Errorf("feed %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.FeedSource{}, domain.StorageError("get feed", err)
	}
	return feed, nil
}

// Save upserts the full feed document.
func (s *PostgresFeedStore) Save(ctx context.Context, feed domain.FeedSource) error {
	return s.upsert(ctx, feed, "ON CONFLICT (id) DO UPDATE SET "+
		"name = EXCLUDED.name, url = EXCLUDED.url, active = EXCLUDED.active, author_id = EXCLUDED.author_id, "+
		"min_content_length = EXCLUDED.min_content_length, max_posts_per_day = EXCLUDED.max_posts_per_day, "+
		"posts_today = EXCLUDED.posts_today, total_posts = EXCLUDED.total_posts, "+
		"last_fetched = EXCLUDED.last_fetched, last_published = EXCLUDED.last_published, "+
		"error_log = EXCLUDED.error_log, settings = EXCLUDED.settings")
}

// Ensure inserts a seed feed unless a feed with the same id exists; stored counters win.
func (s *PostgresFeedStore) Ensure(ctx context.Context, feed domain.FeedSource) error {
	return s.upsert(ctx, feed, "ON CONFLICT (id) DO NOTHING")
}

func (s *PostgresFeedStore) upsert(ctx context.Context, feed domain.FeedSource, conflict string) error {
	errorLog, err := json.Marshal(nonNilLog(feed.ErrorLog))
	if err != nil {
		return fmt.Errorf("encode error log: %w", err)
	}
	settings, err := json.Marshal(feed.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	query, args, err := psql.Insert("feed_sources").Columns(feedColumns...).
		Values(feed.ID, feed.Name, feed.URL, feed.Active, feed.AuthorID, feed.MinContentLength, feed.MaxPostsPerDay,
			feed.PostsToday, feed.TotalPosts, feed.LastFetched, feed.LastPublished, string(errorLog), string(settings)).
		Suffix(conflict).
		ToSql()
	if err != nil {
		return fmt.Errorf("build save feed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return domain.StorageError("save feed", err)
	}
	return nil
}

// PostgresArticleStore is the article boundary backed by the articles table.
type PostgresArticleStore struct {
	db *sql.DB
}

var _ ports.ArticleStore = (*PostgresArticleStore)(nil)

func NewPostgresArticleStore(db *sql.DB) *PostgresArticleStore {
	return &PostgresArticleStore{db: db}
}

func (s *PostgresArticleStore) Create(ctx context.Context, a domain.Article) (domain.Article, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	query, args, err := psql.Insert("articles").
		Columns("id", "slug", "title", "content", "seo_title", "seo_description", "image_url",
			"category_id", "author_id", "feed_id", "source_url", "status", "published_at", "created_at").
		Values(a.ID, a.Slug, a.Title, a.Content, a.SEOTitle, a.SEODescription, a.ImageURL,
			a.CategoryID, a.AuthorID, a.FeedID, a.SourceURL, string(a.Status), a.PublishedAt, a.CreatedAt).
		ToSql()
	if err != nil {
		return domain.Article{}, fmt.Errorf("build create article: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return domain.Article{}, fmt.Errorf("create article %s: %w", a.Slug, domain.ErrDuplicate)
		}
		return domain.Article{}, domain.StorageError("create article", err)
	}
	return a, nil
}

func (s *PostgresArticleStore) ExistsByTitle(ctx context.Context, title string) (bool, error) {
	return s.exists(ctx, "title", title)
}

func (s *PostgresArticleStore) ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error) {
	if sourceURL == "" {
		return false, nil
	}
	return s.exists(ctx, "source_url", sourceURL)
}

func (s *PostgresArticleStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	return s.exists(ctx, "slug", slug)
}

func (s *PostgresArticleStore) exists(ctx context.Context, column, value string) (bool, error) {
	sub, args, err := sq.Select("1").From("articles").Where(sq.Eq{column: value}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists: %w", err)
	}
	query, args, err := psql.Select().Column(sq.Expr("EXISTS ("+sub+")", args...)).ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists: %w", err)
	}

	var found bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&found); err != nil {
		return false, domain.StorageError("article exists by "+column, err)
	}
	return found, nil
}

// PostgresCategoryStore lists categories and maintains their counters.
type PostgresCategoryStore struct {
	db *sql.DB
}

var _ ports.CategoryStore = (*PostgresCategoryStore)(nil)

func NewPostgresCategoryStore(db *sql.DB) *PostgresCategoryStore {
	return &PostgresCategoryStore{db: db}
}

func (s *PostgresCategoryStore) ListActive(ctx context.Context) ([]domain.Category, error) {
	query, args, err := psql.Select("id", "name", "description", "active").From("categories").
		Where(sq.Eq{"active": true}).OrderBy("name", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list categories: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.StorageError("list categories", err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Active); err != nil {
			return nil, domain.StorageError("scan category", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("iterate categories", err)
	}
	return categories, nil
}

func (s *PostgresCategoryStore) IncrementArticleCount(ctx context.Context, categoryID string) error {
	query, args, err := psql.Update("categories").
		Set("article_count", sq.Expr("article_count + 1")).
		Where(sq.Eq{"id": categoryID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build increment: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return domain.StorageError("increment category count", err)
	}
	return nil
}

// Ensure inserts a seed category unless one with the same id exists.
func (s *PostgresCategoryStore) Ensure(ctx context.Context, c domain.Category) error {
	query, args, err := psql.Insert("categories").Columns("id", "name", "description", "active").
		Values(c.ID, c.Name, c.Description, c.Active).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build ensure category: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return domain.StorageError("ensure category", err)
	}
	return nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nonNilLog(entries []domain.FeedLogEntry) []domain.FeedLogEntry {
	if entries == nil {
		return []domain.FeedLogEntry{}
	}
	return entries
}
