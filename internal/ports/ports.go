package ports

import (
	"context"
	"time"

	"FeedPress/internal/domain"
)

// FeedFetcher retrieves and parses one feed's raw item list.
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]domain.RawItem, error)
}

// ContentExtractor normalizes one raw item into a candidate. Relative image URLs resolve against feedURL.
type ContentExtractor interface {
	Extract(ctx context.Context, raw domain.RawItem, feedURL string, rules []TextRule) (domain.CandidateItem, error)
}

// ImageProber performs the synchronous reachability check of an image URL.
type ImageProber interface {
	Reachable(ctx context.Context, imageURL string) bool
}

// Classifier picks one of the supplied categories. Implementations used by the pipeline never fail.
type Classifier interface {
	Classify(ctx context.Context, title, body string, categories []domain.Category) (domain.Classification, error)
}

// Rewriter restyles a body; on any failure it returns the input unchanged.
type Rewriter interface {
	Rewrite(ctx context.Context, body string, style domain.RewriteStyle) string
}

// FeedStore persists feed sources and their runtime counters.
type FeedStore interface {
	ListActive(ctx context.Context) ([]domain.FeedSource, error)
	Get(ctx context.Context, id string) (domain.FeedSource, error)
	Save(ctx context.Context, feed domain.FeedSource) error
}

// ArticleStore is the boundary to the article CRUD collaborator.
type ArticleStore interface {
	Create(ctx context.Context, article domain.Article) (domain.Article, error)
	ExistsByTitle(ctx context.Context, title string) (bool, error)
	ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
}

// CategoryStore lists categories and keeps their article counters.
type CategoryStore interface {
	ListActive(ctx context.Context) ([]domain.Category, error)
	IncrementArticleCount(ctx context.Context, categoryID string) error
}

// TextRule is one configured find/replace rule.
type TextRule struct {
	Find    string `yaml:"find"`
	Replace string `yaml:"replace"`
	Active  bool   `yaml:"active"`
}

// Settings exposes site-wide flags the pipeline consults on every pass.
type Settings interface {
	AutoCategoryEnabled() bool
	AIRewriteEnabled() bool
	IndexingEnabled() bool
	SiteBaseURL() string
	ArticleURL(slug string) string
	TextRules() []TextRule
}

// QueueStore is the backing storage strategy of the indexing queue.
// Insert must reject a second non-terminal item for the same article with domain.ErrAlreadyQueued,
// atomically with the existence check.
type QueueStore interface {
	Insert(ctx context.Context, item domain.QueueItem) error
	// ClaimNext moves the oldest pending item to processing and returns it, or nil when none is pending.
	ClaimNext(ctx context.Context) (*domain.QueueItem, error)
	Update(ctx context.Context, item domain.QueueItem) error
	Counts(ctx context.Context) (map[domain.QueueStatus]int, error)
	Recent(ctx context.Context, limit int) ([]domain.QueueItem, error)
	Clear(ctx context.Context) (int, error)
	ResetFailed(ctx context.Context) (int, error)
	RequeueProcessing(ctx context.Context) (int, error)
	RecordIndexed(ctx context.Context, at time.Time) error
	Stats(ctx context.Context) (domain.IndexingStats, error)
	Close() error
}

// ChatClient sends a single prompt to an LLM and returns its free-text answer.
type ChatClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// IndexingClient notifies the external indexing service about one URL.
type IndexingClient interface {
	Notify(ctx context.Context, url string, kind domain.NotificationType) error
}

// Scheduler controls when a periodic job executes.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
