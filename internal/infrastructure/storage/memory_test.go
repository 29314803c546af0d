package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedPress/internal/domain"
)

func TestMemoryFeedStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryFeedStore(
		domain.FeedSource{ID: "b", Name: "B", Active: true},
		domain.FeedSource{ID: "a", Name: "A", Active: false},
		domain.FeedSource{ID: "c", Name: "C", Active: true},
	)

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "b", active[0].ID)
	assert.Equal(t, "c", active[1].ID)

	feed, err := store.Get(ctx, "b")
	require.NoError(t, err)
	feed.LogError(time.Now(), "boom")
	feed.PostsToday = 2
	// Mutating the copy must not leak into the store until saved.
	again, err := store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, again.ErrorLog)

	require.NoError(t, store.Save(ctx, feed))
	again, err = store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, again.ErrorLog, 1)
	assert.Equal(t, 2, again.PostsToday)

	_, err = store.Get(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestMemoryArticleStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryArticleStore()
	_, err := store.Create(ctx, domain.Article{ID: "1", Slug: "hello", Title: "Hello", SourceURL: "https://src/1"})
	require.NoError(t, err)

	ok, err := store.ExistsByTitle(ctx, "Hello")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = store.ExistsByTitle(ctx, "hello")
	assert.False(t, ok)
	ok, _ = store.ExistsBySourceURL(ctx, "https://src/1")
	assert.True(t, ok)
	ok, _ = store.ExistsBySourceURL(ctx, "")
	assert.False(t, ok)
	ok, _ = store.SlugExists(ctx, "hello")
	assert.True(t, ok)

	_, err = store.Create(ctx, domain.Article{ID: "2", Slug: "hello"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
	assert.Len(t, store.All(), 1)
}

func TestMemoryCategoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryCategoryStore(
		domain.Category{ID: "t", Name: "Technology", Active: true},
		domain.Category{ID: "x", Name: "Hidden", Active: false},
		domain.Category{ID: "s", Name: "Sports", Active: true},
	)
	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "Technology", active[0].Name)

	require.NoError(t, store.IncrementArticleCount(ctx, "s"))
	require.NoError(t, store.IncrementArticleCount(ctx, "s"))
	assert.Equal(t, 2, store.Count("s"))
}

func TestDefaultCategories(t *testing.T) {
	t.Parallel()

	got := DefaultCategories([]string{"sports", "", "technology"})
	require.Len(t, got, 2)
	assert.Equal(t, domain.Category{ID: "sports", Name: "Sports", Active: true}, got[0])
	assert.Equal(t, "Technology", got[1].Name)
}
