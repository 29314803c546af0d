package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedPress/internal/classifier"
	"FeedPress/internal/domain"
	"FeedPress/internal/extractor"
	"FeedPress/internal/infrastructure/storage"
	"FeedPress/internal/ports"
)

type stubFetcher struct {
	items map[string][]domain.RawItem
	errs  map[string]error
}

func (s stubFetcher) Fetch(_ context.Context, url string) ([]domain.RawItem, error) {
	if err := s.errs[url]; err != nil {
		return nil, err
	}
	return s.items[url], nil
}

type stubSettings struct {
	autoCategory bool
	rewrite      bool
	indexing     bool
	rules        []ports.TextRule
}

func (s stubSettings) AutoCategoryEnabled() bool { return s.autoCategory }
func (s stubSettings) AIRewriteEnabled() bool { return s.rewrite }
func (s stubSettings) IndexingEnabled() bool { return s.indexing }
func (s stubSettings) SiteBaseURL() string { return "https://site.example.com" }
func (s stubSettings) ArticleURL(slug string) string { return "https://site.example.com/articles/" + slug }
func (s stubSettings) TextRules() []ports.TextRule { return s.rules }

type stubProber bool

func (s stubProber) Reachable(context.Context, string) bool { return bool(s) }

type upperRewriter struct{}

func (upperRewriter) Rewrite(_ context.Context, body string, _ domain.RewriteStyle) string {
	return strings.ToUpper(body)
}

type recordingQueue struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, _, _, url string, _ domain.NotificationType) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return false, q.err
	}
	q.urls = append(q.urls, url)
	return true, nil
}

// failingFeeds makes Save fail like an unavailable database.
type failingFeeds struct {
	*storage.MemoryFeedStore
}

func (failingFeeds) Save(context.Context, domain.FeedSource) error {
	return domain.StorageError("save feed", errors.New("connection refused"))
}

type fixture struct {
	feeds      *storage.MemoryFeedStore
	articles   *storage.MemoryArticleStore
	categories *storage.MemoryCategoryStore
	queue      *recordingQueue
	fetcher    stubFetcher
	settings   stubSettings
	prober     stubProber
	clock      time.Time
	slept      []time.Duration
}

func newFixture(feeds ...domain.FeedSource) *fixture {
	return &fixture{
		feeds:    storage.NewMemoryFeedStore(feeds...),
		articles: storage.NewMemoryArticleStore(),
		categories: storage.NewMemoryCategoryStore(
			domain.Category{ID: "technology", Name: "Technology", Active: true},
			domain.Category{ID: "sports", Name: "Sports", Active: true},
		),
		queue:    &recordingQueue{},
		fetcher:  stubFetcher{items: map[string][]domain.RawItem{}, errs: map[string]error{}},
		settings: stubSettings{autoCategory: true, indexing: true},
		prober:   true,
		clock:    time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) pipeline() *Pipeline {
	return f.pipelineWith(f.feeds)
}

func (f *fixture) pipelineWith(feeds ports.FeedStore) *Pipeline {
	p := NewPipeline(PipelineDeps{
		Feeds:      feeds,
		Articles:   f.articles,
		Categories: f.categories,
		Settings:   f.settings,
		Fetcher:    f.fetcher,
		Extractor:  extractor.New(extractor.Options{}),
		Prober:     f.prober,
		Classifier: classifier.NewFallback(nil, classifier.NewKeyword(map[string][]string{
			"sports":     {"football", "match"},
			"technology": {"software", "chip"},
		}), nil, nil),
		Rewriter: upperRewriter{},
		Queue:    f.queue,
	})
	p.now = func() time.Time { return f.clock }
	p.sleep = func(_ context.Context, d time.Duration) error {
		f.slept = append(f.slept, d)
		return nil
	}
	return p
}

func rawItem(n int, body string) domain.RawItem {
	return domain.RawItem{
		Title:   fmt.Sprintf("Story %d", n),
		Link:    fmt.Sprintf("https://news.example.com/story-%d", n),
		Content: body,
		Media:   []domain.MediaRef{{URL: fmt.Sprintf("https://cdn.example.com/%d.jpg", n), Medium: "image"}},
	}
}

func feedSource(id string) domain.FeedSource {
	return domain.FeedSource{
		ID:             id,
		Name:           id,
		URL:            "https://" + id + ".example.com/rss",
		Active:         true,
		MaxPostsPerDay: 10,
		Settings:       domain.FeedSettings{AutoPublish: true, AutoCategory: true},
	}
}

func longBody(words string) string {
	return strings.Repeat(words+" ", 20)
}

func TestSweepFeedSkipsShortItemsWithoutLogging(t *testing.T) {
	t.Parallel()

	feed := feedSource("wire")
	feed.MinContentLength = 100
	f := newFixture(feed)
	f.fetcher.items[feed.URL] = []domain.RawItem{rawItem(1, strings.Repeat("x", 50))}

	res, err := f.pipeline().SweepFeed(context.Background(), "wire")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, f.articles.All())

	stored, err := f.feeds.Get(context.Background(), "wire")
	require.NoError(t, err)
	assert.Empty(t, stored.ErrorLog)
	assert.Zero(t, stored.PostsToday)
}

func TestSweepFeedPublishesAndEnqueues(t *testing.T) {
	t.Parallel()

	feed := feedSource("wire")
	feed.AuthorID = "author-1"
	feed.Settings.IncludeSourceLink = true
	f := newFixture(feed)
	f.fetcher.items[feed.URL] = []domain.RawItem{rawItem(1, longBody("the new chip ships with software"))}

	res, err := f.pipeline().SweepFeed(context.Background(), "wire")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Published)

	articles := f.articles.All()
	require.Len(t, articles, 1)
	a := articles[0]
	assert.Equal(t, "story-1", a.Slug)
	assert.Equal(t, domain.ArticlePublished, a.Status)
	require.NotNil(t, a.PublishedAt)
	assert.Equal(t, "technology", a.CategoryID)
	assert.Equal(t, "author-1", a.AuthorID)
	assert.Equal(t, "https://news.example.com/story-1", a.SourceURL)
	assert.True(t, strings.HasSuffix(a.Content, "\n\nSource: https://news.example.com/story-1"))
	assert.NotContains(t, a.SEODescription, "Source:")
	assert.Equal(t, "https://cdn.example.com/1.jpg", a.ImageURL)

	assert.Equal(t, []string{"https://site.example.com/articles/story-1"}, f.queue.urls)
	assert.Equal(t, 1, f.categories.Count("technology"))

	stored, err := f.feeds.Get(context.Background(), "wire")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.PostsToday)
	assert.Equal(t, 1, stored.TotalPosts)
	require.NotNil(t, stored.LastFetched)
}

func TestSweepFeedDraftsAreNotEnqueued(t *testing.T) {
	t.Parallel()

	feed := feedSource("wire")
	feed.Settings.AutoPublish = false
	f := newFixture(feed)
	f.fetcher.items[feed.URL] = []domain.RawItem{rawItem(1, longBody("plain"))}

	res, err := f.pipeline().SweepFeed(context.Background(), "wire")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Drafted)
	require.Len(t, f.articles.All(), 1)
	assert.Equal(t, domain.ArticleDraft, f.articles.All()[0].Status)
	assert.Nil(t, f.articles.All()[0].PublishedAt)
	assert.Empty(t, f.queue.urls)
}

func TestSweepFeedIsIdempotentOnRefetch(t *testing.T) {
	t.Parallel()

	feed := feedSource("wire")
	f := newFixture(feed)
	f.fetcher.items[feed.URL] = []domain.RawItem{rawItem(1, longBody("a")), rawItem(2, longBody("b"))}
	p := f.pipeline()

	_, err := p.SweepFeed(context.Background(), "wire")
	require.NoError(t, err)
	res, err := p.SweepFeed(context.Background(), "wire")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Len(t, f.articles.All(), 2)

	// Same title under a different link is still a duplicate.
	renamed := rawItem(1, longBody("a"))
	renamed.Link = "https://mirror.example.com/story-1"
	f.fetcher.items[feed.URL] = []domain.RawItem{renamed}
	res, err = f.pipeline().SweepFeed(context.Background(), "wire")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, f.articles.All(), 2)
}

func TestSweepFeedHonoursDailyQuotaAndRollover(t *testing.T) {
	t.Parallel()

	feed := feedSource("wire")
	feed.MaxPostsPerDay = 2
	f := newFixture(feed)
	f.fetcher.items[feed.URL] = []domain.RawItem{
		rawItem(1, longBody("a")), rawItem(2, longBody("b")), rawItem(3, longBody("c")),
	}
	p := f.pipeline()

	res, err := p.SweepFeed(context.Background(), "wire")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Published)
	assert.True(t, res.QuotaReached)

	f.fetcher.items[feed.URL] = []domain.RawItem{rawItem(4, longBody("d"))}
	res, err = p.SweepFeed(context.Background(), "wire")
	require.NoError(t, err)
	assert.True(t, res.QuotaReached)
	assert.Zero(t, res.Fetched)

	stored, _ := f.feeds.Get(context.Background(), "wire")
	assert.Equal(t, 2, stored.PostsToday)

	f.clock = f.clock.Add(24 * time.Hour)
	res, err = p.SweepFeed(context.Background(), "wire")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Published)
	stored, _ = f.feeds.Get(context.Background(), "wire")
	assert.Equal(t, 1, stored.PostsToday)
	assert.Equal(t, 3, stored.TotalPosts)
}

func TestSweepFeedRequireImageGates(t *testing.T) {
	t.Parallel()

	feed := feedSource("wire")
	feed.Settings.RequireImage = true
	f := newFixture(feed)
	noImage := domain.RawItem{Title: "Bare", Link: "https://news.example.com/bare", Content: longBody("text")}
	f.fetcher.items[feed.URL] = []domain.RawItem{noImage}

	res, err := f.pipeline().SweepFeed(context.Background(), "wire")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)

	f.fetcher.items[feed.URL] = []domain.RawItem{rawItem(1, longBody("text"))}
	f.prober = false
	res, err = f.pipeline().SweepFeed(context.Background(), "wire")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, f.articles.All())

	f.prober = true
	res, err = f.pipeline().SweepFeed(context.Background(), "wire")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Published)
}

func TestSweepFeedLogsInvalidItemsAndContinues(t *testing.T) {
	t.Parallel()

	feed := feedSource("wire")
	f := newFixture(feed)
	f.fetcher.items[feed.URL] = []domain.RawItem{
		{Title: "", Link: "https://news.example.com/untitled", Content: longBody("x")},
		rawItem(2, longBody("y")),
	}

	res, err := f.pipeline().SweepFeed(context.Background(), "wire")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Published)

	stored, _ := f.feeds.Get(context.Background(), "wire")
	require.Len(t, stored.ErrorLog, 1)
	assert.Contains(t, stored.ErrorLog[0].Message, "untitled")
}

func TestSweepAllIsolatesFetchErrors(t *testing.T) {
	t.Parallel()

	broken, healthy := feedSource("broken"), feedSource("healthy")
	f := newFixture(broken, healthy)
	f.fetcher.errs[broken.URL] = &domain.FetchError{URL: broken.URL, Status: 503}
	f.fetcher.items[healthy.URL] = []domain.RawItem{rawItem(1, longBody("ok"))}

	summary, err := f.pipeline().SweepAll(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Feeds, 2)
	assert.Equal(t, 1, summary.Created())
	assert.Len(t, f.articles.All(), 1)

	stored, _ := f.feeds.Get(context.Background(), "broken")
	require.Len(t, stored.ErrorLog, 1)
	assert.Contains(t, stored.ErrorLog[0].Message, "503")
	assert.NotEmpty(t, summary.Feeds[0].Error)
}

func TestSweepAllHaltsOnStorageError(t *testing.T) {
	t.Parallel()

	f := newFixture(feedSource("a"), feedSource("b"))
	_, err := f.pipelineWith(failingFeeds{f.feeds}).SweepAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestSweepFeedUsesFirstCategoryWhenAutoCategoryOff(t *testing.T) {
	t.Parallel()

	feed := feedSource("wire")
	f := newFixture(feed)
	f.settings.autoCategory = false
	f.fetcher.items[feed.URL] = []domain.RawItem{rawItem(1, longBody("football match football"))}

	_, err := f.pipeline().SweepFeed(context.Background(), "wire")
	require.NoError(t, err)
	require.Len(t, f.articles.All(), 1)
	assert.Equal(t, "technology", f.articles.All()[0].CategoryID)
}

func TestSweepFeedRewritesAndDelays(t *testing.T) {
	t.Parallel()

	feed := feedSource("wire")
	feed.Settings.AIRewrite = true
	feed.Settings.PublishDelay = 5 * time.Second
	f := newFixture(feed)
	f.settings.rewrite = true
	f.fetcher.items[feed.URL] = []domain.RawItem{rawItem(1, longBody("quiet")), rawItem(2, longBody("calm"))}

	_, err := f.pipeline().SweepFeed(context.Background(), "wire")
	require.NoError(t, err)
	require.Len(t, f.articles.All(), 2)
	assert.Contains(t, f.articles.All()[0].Content, "QUIET")
	assert.Equal(t, []time.Duration{5 * time.Second}, f.slept)
}

func TestSweepFeedSkipsEnqueueWhenIndexingDisabled(t *testing.T) {
	t.Parallel()

	feed := feedSource("wire")
	f := newFixture(feed)
	f.settings.indexing = false
	f.fetcher.items[feed.URL] = []domain.RawItem{rawItem(1, longBody("a"))}

	_, err := f.pipeline().SweepFeed(context.Background(), "wire")
	require.NoError(t, err)
	assert.Len(t, f.articles.All(), 1)
	assert.Empty(t, f.queue.urls)
}

func TestSweepFeedAppliesTextRules(t *testing.T) {
	t.Parallel()

	feed := feedSource("wire")
	f := newFixture(feed)
	f.settings.rules = []ports.TextRule{{Find: "Story", Replace: "Report", Active: true}}
	f.fetcher.items[feed.URL] = []domain.RawItem{rawItem(7, longBody("a"))}

	_, err := f.pipeline().SweepFeed(context.Background(), "wire")
	require.NoError(t, err)
	require.Len(t, f.articles.All(), 1)
	assert.Equal(t, "Report 7", f.articles.All()[0].Title)
	assert.Equal(t, "report-7", f.articles.All()[0].Slug)
}

func TestResetDaily(t *testing.T) {
	t.Parallel()

	yesterday := time.Date(2024, 5, 31, 22, 0, 0, 0, time.UTC)
	stale, fresh := feedSource("stale"), feedSource("fresh")
	stale.PostsToday, stale.LastPublished = 4, &yesterday
	today := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	fresh.PostsToday, fresh.LastPublished = 2, &today
	f := newFixture(stale, fresh)

	n, err := f.pipeline().ResetDaily(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := f.feeds.Get(context.Background(), "stale")
	assert.Zero(t, got.PostsToday)
	got, _ = f.feeds.Get(context.Background(), "fresh")
	assert.Equal(t, 2, got.PostsToday)
}

func TestTestFeedReturnsThreeSamples(t *testing.T) {
	t.Parallel()

	f := newFixture()
	url := "https://probe.example.com/rss"
	for i := 1; i <= 5; i++ {
		f.fetcher.items[url] = append(f.fetcher.items[url], rawItem(i, longBody("sample")))
	}

	samples, err := f.pipeline().TestFeed(context.Background(), url)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, "Story 1", samples[0].Title)
	assert.True(t, samples[0].HasRealImage)
	assert.LessOrEqual(t, len([]rune(samples[0].Excerpt)), 160)
	assert.Empty(t, f.articles.All())

	f.fetcher.errs[url] = &domain.FetchError{URL: url, Status: 404}
	_, err = f.pipeline().TestFeed(context.Background(), url)
	var ferr *domain.FetchError
	assert.ErrorAs(t, err, &ferr)
}

// gatedFetcher announces each Fetch on entered and blocks until release is closed.
type gatedFetcher struct {
	items   []domain.RawItem
	entered chan struct{}
	release chan struct{}
}

func (g gatedFetcher) Fetch(ctx context.Context, _ string) ([]domain.RawItem, error) {
	g.entered <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.items, nil
}

func TestConcurrentSweepsOfOneFeedRespectQuota(t *testing.T) {
	t.Parallel()

	feed := feedSource("wire")
	feed.MaxPostsPerDay = 2
	f := newFixture(feed)
	p := f.pipeline()
	gate := gatedFetcher{
		items: []domain.RawItem{
			rawItem(1, longBody("a")), rawItem(2, longBody("b")),
			rawItem(3, longBody("c")), rawItem(4, longBody("d")),
		},
		entered: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	p.fetcher = gate

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	results := make([]SweepResult, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.SweepFeed(ctx, "wire")
			assert.NoError(t, err)
			results[i] = res
		}()
	}

	<-gate.entered
	select {
	case <-gate.entered:
		t.Fatal("second sweep fetched while the first was still running")
	case <-time.After(50 * time.Millisecond):
	}
	close(gate.release)
	wg.Wait()

	assert.Len(t, f.articles.All(), 2)
	assert.Equal(t, 2, results[0].Published+results[1].Published)
	assert.True(t, results[0].QuotaReached || results[1].QuotaReached)

	stored, err := f.feeds.Get(context.Background(), "wire")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.PostsToday)
}

func TestResetDailyWaitsForRunningSweep(t *testing.T) {
	t.Parallel()

	feed := feedSource("wire")
	f := newFixture(feed)
	p := f.pipeline()
	gate := gatedFetcher{
		items:   []domain.RawItem{rawItem(1, longBody("a"))},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	p.fetcher = gate

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		_, err := p.SweepFeed(context.Background(), "wire")
		assert.NoError(t, err)
	}()
	<-gate.entered

	resetDone := make(chan struct{})
	go func() {
		defer close(resetDone)
		_, err := p.ResetDaily(context.Background())
		assert.NoError(t, err)
	}()

	select {
	case <-resetDone:
		t.Fatal("daily reset ran during a sweep")
	case <-time.After(50 * time.Millisecond):
	}
	close(gate.release)
	<-sweepDone
	<-resetDone
}
