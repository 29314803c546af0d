package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"FeedPress/internal/domain"
	"FeedPress/internal/metrics"
	"FeedPress/internal/ports"
	"FeedPress/pkg/slug"
)

const sampleSize = 3

// Enqueuer accepts indexing notifications for published articles.
type Enqueuer interface {
	Enqueue(ctx context.Context, articleID, articleTitle, url string, kind domain.NotificationType) (bool, error)
}

// PipelineDeps wires all driven adapters into the publish pipeline.
type PipelineDeps struct {
	Feeds      ports.FeedStore
	Articles   ports.ArticleStore
	Categories ports.CategoryStore
	Settings   ports.Settings
	Fetcher    ports.FeedFetcher
	Extractor  ports.ContentExtractor
	Prober     ports.ImageProber
	Classifier ports.Classifier
	Rewriter   ports.Rewriter
	Queue      Enqueuer
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	// Location bounds the quota window; nil means UTC.
	Location *time.Location
}

// Pipeline implements the feed sweep: fetch, extract, gate, enrich, persist, enqueue.
type Pipeline struct {
	feeds      ports.FeedStore
	articles   ports.ArticleStore
	categories ports.CategoryStore
	settings   ports.Settings
	fetcher    ports.FeedFetcher
	extractor  ports.ContentExtractor
	prober     ports.ImageProber
	classifier ports.Classifier
	rewriter   ports.Rewriter
	queue      Enqueuer
	metrics    *metrics.Metrics
	logger     *slog.Logger
	loc        *time.Location

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string

	// sweepMu serializes sweeps and daily resets so a feed is never processed twice at once.
	sweepMu sync.Mutex
}

// SweepResult summarises one pass over one feed.
type SweepResult struct {
	FeedID       string `json:"feedId"`
	Fetched      int    `json:"fetched"`
	Published    int    `json:"published"`
	Drafted      int    `json:"drafted"`
	Skipped      int    `json:"skipped"`
	Failed       int    `json:"failed"`
	QuotaReached bool   `json:"quotaReached"`
	Error        string `json:"error,omitempty"`
}

// SweepSummary aggregates a sweep over every active feed.
type SweepSummary struct {
	Feeds []SweepResult `json:"feeds"`
}

// Created counts articles persisted during the sweep.
func (s SweepSummary) Created() int {
	n := 0
	for _, f := range s.Feeds {
		n += f.Published + f.Drafted
	}
	return n
}

// Sample is one extracted item returned by TestFeed.
type Sample struct {
	Title        string     `json:"title"`
	Link         string     `json:"link"`
	Published    *time.Time `json:"published,omitempty"`
	ImageURL     string     `json:"imageUrl"`
	HasRealImage bool       `json:"hasRealImage"`
	ContentLen   int        `json:"contentLength"`
	Excerpt      string     `json:"excerpt"`
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Pipeline{
		feeds:      deps.Feeds,
		articles:   deps.Articles,
		categories: deps.Categories,
		settings:   deps.Settings,
		fetcher:    deps.Fetcher,
		extractor:  deps.Extractor,
		prober:     deps.Prober,
		classifier: deps.Classifier,
		rewriter:   deps.Rewriter,
		queue:      deps.Queue,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		loc:        loc,
		now:        time.Now,
		sleep:      sleepContext,
		newID:      uuid.NewString,
	}
}

// SweepAll sweeps every active feed in order. Feed-level failures are isolated;
// only a storage error stops the sweep and is returned. A sweep already in progress
// is waited for.
func (p *Pipeline) SweepAll(ctx context.Context) (SweepSummary, error) {
	p.sweepMu.Lock()
	defer p.sweepMu.Unlock()

	var summary SweepSummary
	feeds, err := p.feeds.ListActive(ctx)
	if err != nil {
		return summary, fmt.Errorf("list active feeds: %w", err)
	}
	p.info("sweep started", "feeds", len(feeds))

	for _, feed := range feeds {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		res, err := p.sweepFeed(ctx, feed.ID)
		summary.Feeds = append(summary.Feeds, res)
		if err == nil {
			continue
		}
		if errors.Is(err, domain.ErrStorage) {
			return summary, err
		}
		p.warn("feed sweep failed", "feed_id", feed.ID, "error", err)
	}

	p.info("sweep finished", "feeds", len(summary.Feeds), "created", summary.Created())
	return summary, nil
}

// SweepFeed runs one pass over one feed. A FetchError is appended to the feed log and returned;
// per-item failures are logged to the feed and never abort the pass.
func (p *Pipeline) SweepFeed(ctx context.Context, feedID string) (SweepResult, error) {
	p.sweepMu.Lock()
	defer p.sweepMu.Unlock()
	return p.sweepFeed(ctx, feedID)
}

func (p *Pipeline) sweepFeed(ctx context.Context, feedID string) (SweepResult, error) {
	res := SweepResult{FeedID: feedID}
	feed, err := p.feeds.Get(ctx, feedID)
	if err != nil {
		return res, fmt.Errorf("load feed %s: %w", feedID, err)
	}

	now := p.now()
	if feed.ResetDailyIfRolledOver(now, p.loc) {
		p.debug("daily counter reset", "feed_id", feed.ID)
	}
	if feed.QuotaReached() {
		res.QuotaReached = true
		p.metrics.Sweep("quota")
		p.debug("daily quota reached", "feed_id", feed.ID, "posts_today", feed.PostsToday)
		return res, p.save(ctx, feed)
	}

	raws, err := p.fetcher.Fetch(ctx, feed.URL)
	feed.LastFetched = &now
	if err != nil {
		res.Error = err.Error()
		feed.LogError(now, err.Error())
		p.metrics.FetchError()
		p.metrics.Sweep("fetch_error")
		if saveErr := p.save(ctx, feed); saveErr != nil {
			return res, saveErr
		}
		return res, err
	}
	res.Fetched = len(raws)

	categories, err := p.categories.ListActive(ctx)
	if err != nil {
		return res, fmt.Errorf("list categories: %w", err)
	}
	rules := p.settings.TextRules()

	for i, raw := range raws {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if feed.QuotaReached() {
			res.QuotaReached = true
			break
		}

		outcome, err := p.processItem(ctx, &feed, raw, categories, rules)
		p.metrics.Item(outcome)
		switch {
		case err != nil && errors.Is(err, domain.ErrStorage):
			p.metrics.Sweep("halted")
			return res, err
		case err != nil:
			res.Failed++
			feed.LogError(p.now(), itemError(raw, err))
			p.debug("item failed", "feed_id", feed.ID, "link", raw.Link, "error", err)
			continue
		}

		switch outcome {
		case metrics.OutcomePublished:
			res.Published++
		case metrics.OutcomeDraft:
			res.Drafted++
		default:
			res.Skipped++
			continue
		}

		if d := feed.Settings.PublishDelay; d > 0 && i < len(raws)-1 {
			if err := p.sleep(ctx, d); err != nil {
				return res, err
			}
		}
	}

	if err := p.save(ctx, feed); err != nil {
		return res, err
	}
	p.metrics.Sweep("ok")
	p.info("feed swept", "feed_id", feed.ID, "fetched", res.Fetched, "published", res.Published,
		"drafted", res.Drafted, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// processItem applies the gates to one raw item and persists it when all pass.
// The returned outcome is one of the metrics.Outcome* values.
func (p *Pipeline) processItem(ctx context.Context, feed *domain.FeedSource, raw domain.RawItem, categories []domain.Category, rules []ports.TextRule) (string, error) {
	cand, err := p.extractor.Extract(ctx, raw, feed.URL, rules)
	if err != nil {
		return metrics.OutcomeInvalid, err
	}

	if len([]rune(cand.Body)) < feed.MinContentLength {
		p.debug("item skipped", "reason", "too short", "link", cand.Link)
		return metrics.OutcomeShort, nil
	}
	if feed.Settings.RequireImage {
		if !cand.HasRealImage {
			p.debug("item skipped", "reason", "no image", "link", cand.Link)
			return metrics.OutcomeNoImage, nil
		}
		if p.prober != nil && !p.prober.Reachable(ctx, cand.ImageURL) {
			p.debug("item skipped", "reason", "image unreachable", "link", cand.Link, "image", cand.ImageURL)
			return metrics.OutcomeBadImage, nil
		}
	}

	dup, err := p.articles.ExistsByTitle(ctx, cand.Title)
	if err != nil {
		return metrics.OutcomeError, err
	}
	if !dup {
		dup, err = p.articles.ExistsBySourceURL(ctx, cand.Link)
		if err != nil {
			return metrics.OutcomeError, err
		}
	}
	if dup {
		p.debug("item skipped", "reason", "duplicate", "link", cand.Link)
		return metrics.OutcomeDuplicate, nil
	}

	category := p.pickCategory(ctx, feed, cand, categories)

	content := cand.Body
	if p.rewriter != nil && p.settings.AIRewriteEnabled() && feed.Settings.AIRewrite {
		content = p.rewriter.Rewrite(ctx, content, feed.Settings.RewriteStyle)
	}
	if feed.Settings.IncludeSourceLink {
		content = WithSource(content, cand.Link)
	}

	articleSlug, err := slug.Unique(ctx, cand.Title, p.articles.SlugExists)
	if err != nil {
		return metrics.OutcomeError, err
	}

	now := p.now()
	article := domain.Article{
		ID:             p.newID(),
		Slug:           articleSlug,
		Title:          cand.Title,
		Content:        content,
		SEOTitle:       SEOTitle(cand.Title),
		SEODescription: SEODescription(content),
		ImageURL:       cand.ImageURL,
		CategoryID:     category.ID,
		AuthorID:       feed.AuthorID,
		FeedID:         feed.ID,
		SourceURL:      cand.Link,
		Status:         domain.ArticleDraft,
		CreatedAt:      now,
	}
	if feed.Settings.AutoPublish {
		article.Status = domain.ArticlePublished
		article.PublishedAt = &now
	}

	article, err = p.articles.Create(ctx, article)
	if errors.Is(err, domain.ErrDuplicate) {
		return metrics.OutcomeDuplicate, nil
	}
	if err != nil {
		return metrics.OutcomeError, err
	}

	feed.RecordPublish(now)
	if category.ID != "" {
		if err := p.categories.IncrementArticleCount(ctx, category.ID); err != nil {
			return metrics.OutcomeError, err
		}
	}
	p.info("article created", "feed_id", feed.ID, "article_id", article.ID, "slug", article.Slug,
		"status", article.Status, "category", category.Name)

	if article.Status != domain.ArticlePublished {
		return metrics.OutcomeDraft, nil
	}
	if p.queue != nil && p.settings.IndexingEnabled() {
		if _, err := p.queue.Enqueue(ctx, article.ID, article.Title, p.settings.ArticleURL(article.Slug), domain.NotifyUpdated); err != nil {
			return metrics.OutcomePublished, err
		}
	}
	return metrics.OutcomePublished, nil
}

func (p *Pipeline) pickCategory(ctx context.Context, feed *domain.FeedSource, cand domain.CandidateItem, categories []domain.Category) domain.Category {
	if len(categories) == 0 {
		return domain.Category{}
	}
	if p.classifier == nil || !p.settings.AutoCategoryEnabled() || !feed.Settings.AutoCategory {
		return categories[0]
	}
	// The classifier wired here is the fallback decorator, which never fails.
	c, err := p.classifier.Classify(ctx, cand.Title, cand.Body, categories)
	if err != nil || c.Category.ID == "" {
		return categories[0]
	}
	return c.Category
}

// ResetDaily zeroes the daily counter of every active feed whose quota window rolled over.
// It returns the number of feeds that were reset.
func (p *Pipeline) ResetDaily(ctx context.Context) (int, error) {
	p.sweepMu.Lock()
	defer p.sweepMu.Unlock()

	feeds, err := p.feeds.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active feeds: %w", err)
	}
	now := p.now()
	reset := 0
	for _, feed := range feeds {
		if !feed.ResetDailyIfRolledOver(now, p.loc) {
			continue
		}
		if err := p.save(ctx, feed); err != nil {
			return reset, err
		}
		reset++
	}
	if reset > 0 {
		p.info("daily counters reset", "feeds", reset)
	}
	return reset, nil
}

// TestFeed fetches url and returns up to three extracted items without publishing anything.
func (p *Pipeline) TestFeed(ctx context.Context, url string) ([]Sample, error) {
	raws, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	rules := p.settings.TextRules()
	samples := make([]Sample, 0, sampleSize)
	for _, raw := range raws {
		if len(samples) == sampleSize {
			break
		}
		cand, err := p.extractor.Extract(ctx, raw, url, rules)
		if err != nil {
			p.debug("sample skipped", "link", raw.Link, "error", err)
			continue
		}
		samples = append(samples, Sample{
			Title:        cand.Title,
			Link:         cand.Link,
			Published:    cand.Published,
			ImageURL:     cand.ImageURL,
			HasRealImage: cand.HasRealImage,
			ContentLen:   len([]rune(cand.Body)),
			Excerpt:      truncate(cand.Body, seoDescriptionMax),
		})
	}
	return samples, nil
}

func (p *Pipeline) save(ctx context.Context, feed domain.FeedSource) error {
	if err := p.feeds.Save(ctx, feed); err != nil {
		return fmt.Errorf("save feed %s: %w", feed.ID, err)
	}
	return nil
}

func itemError(raw domain.RawItem, err error) string {
	ref := raw.Link
	if ref == "" {
		ref = raw.Title
	}
	if ref == "" {
		return err.Error()
	}
	return fmt.Sprintf("%s: %v", ref, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Pipeline) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
