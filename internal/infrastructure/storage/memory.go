package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"FeedPress/internal/domain"
	"FeedPress/internal/ports"
)

// MemoryFeedStore keeps feed sources in process, seeded from configuration.
type MemoryFeedStore struct {
	mu    sync.Mutex
	feeds map[string]domain.FeedSource
	order []string
}

var _ ports.FeedStore = (*MemoryFeedStore)(nil)

func NewMemoryFeedStore(seed ...domain.FeedSource) *MemoryFeedStore {
	s := &MemoryFeedStore{feeds: make(map[string]domain.FeedSource, len(seed))}
	for _, f := range seed {
		_ = s.Save(context.Background(), f)
	}
	return s
}

func (s *MemoryFeedStore) ListActive(_ context.Context) ([]domain.FeedSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.FeedSource, 0, len(s.order))
	for _, id := range s.order {
		if f := s.feeds[id]; f.Active {
			out = append(out, cloneFeed(f))
		}
	}
	return out, nil
}

func (s *MemoryFeedStore) Get(_ context.Context, id string) (domain.FeedSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.feeds[id]
	if !ok {
		return domain.FeedSource{}, fmt.Errorf("feed %s: %w", id, domain.ErrNotFound)
	}
	return cloneFeed(f), nil
}

func (s *MemoryFeedStore) Save(_ context.Context, feed domain.FeedSource) error {
	if feed.ID == "" {
		return &domain.ValidationError{Field: "id", Reason: "empty"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.feeds[feed.ID]; !ok {
		s.order = append(s.order, feed.ID)
	}
	s.feeds[feed.ID] = cloneFeed(feed)
	return nil
}

func cloneFeed(f domain.FeedSource) domain.FeedSource {
	f.ErrorLog = append([]domain.FeedLogEntry(nil), f.ErrorLog...)
	return f
}

// MemoryArticleStore stands in for the article CRUD layer when no database is configured.
type MemoryArticleStore struct {
	mu       sync.Mutex
	articles []domain.Article
}

var _ ports.ArticleStore = (*MemoryArticleStore)(nil)

func NewMemoryArticleStore() *MemoryArticleStore {
	return &MemoryArticleStore{}
}

func (s *MemoryArticleStore) Create(_ context.Context, a domain.Article) (domain.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.articles {
		if existing.Slug == a.Slug || existing.ID == a.ID {
			return domain.Article{}, fmt.Errorf("create article %s: %w", a.Slug, domain.ErrDuplicate)
		}
	}
	s.articles = append(s.articles, a)
	return a, nil
}

func (s *MemoryArticleStore) ExistsByTitle(_ context.Context, title string) (bool, error) {
	return s.any(func(a domain.Article) bool { return a.Title == title }), nil
}

func (s *MemoryArticleStore) ExistsBySourceURL(_ context.Context, sourceURL string) (bool, error) {
	if sourceURL == "" {
		return false, nil
	}
	return s.any(func(a domain.Article) bool { return a.SourceURL == sourceURL }), nil
}

func (s *MemoryArticleStore) SlugExists(_ context.Context, slug string) (bool, error) {
	return s.any(func(a domain.Article) bool { return a.Slug == slug }), nil
}

// All returns a copy of the stored articles in creation order.
func (s *MemoryArticleStore) All() []domain.Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Article(nil), s.articles...)
}

func (s *MemoryArticleStore) any(match func(domain.Article) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.articles {
		if match(a) {
			return true
		}
	}
	return false
}

// MemoryCategoryStore keeps categories and their article counters.
type MemoryCategoryStore struct {
	mu         sync.Mutex
	categories []domain.Category
	counts     map[string]int
}

var _ ports.CategoryStore = (*MemoryCategoryStore)(nil)

func NewMemoryCategoryStore(seed ...domain.Category) *MemoryCategoryStore {
	return &MemoryCategoryStore{
		categories: append([]domain.Category(nil), seed...),
		counts:     make(map[string]int),
	}
}

// ListActive returns active categories in seed order.
func (s *MemoryCategoryStore) ListActive(_ context.Context) ([]domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryCategoryStore) IncrementArticleCount(_ context.Context, categoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[categoryID]++
	return nil
}

// Count returns the article counter of one category.
func (s *MemoryCategoryStore) Count(categoryID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[categoryID]
}

// DefaultCategories derives a category list from keyword dictionary names.
func DefaultCategories(names []string) []domain.Category {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	out := make([]domain.Category, 0, len(sorted))
	for _, n := range sorted {
		if n == "" {
			continue
		}
		out = append(out, domain.Category{
			ID:     n,
			Name:   strings.ToUpper(n[:1]) + n[1:],
			Active: true,
		})
	}
	return out
}
