package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"FeedPress/internal/api"
	"FeedPress/internal/classifier"
	"FeedPress/internal/config"
	"FeedPress/internal/domain"
	"FeedPress/internal/extractor"
	"FeedPress/internal/infrastructure/feed"
	"FeedPress/internal/infrastructure/httpclient"
	"FeedPress/internal/infrastructure/indexing"
	"FeedPress/internal/infrastructure/llm"
	"FeedPress/internal/infrastructure/scheduler"
	"FeedPress/internal/infrastructure/storage"
	"FeedPress/internal/logging"
	"FeedPress/internal/metrics"
	"FeedPress/internal/ports"
	"FeedPress/internal/queue"
	"FeedPress/internal/rewriter"
	"FeedPress/internal/settings"
	"FeedPress/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	db         *sql.DB
	store      ports.QueueStore
	backend    string
	metrics    *metrics.Metrics
	queue      *queue.Service
	pipeline   *usecase.Pipeline
	scheduler  *usecase.Scheduler
	server     *api.Server
	serverDone chan error
}

// New builds every component. It opens the database when a DSN is configured.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger, metrics: metrics.New()}

	if cfg.Database.DSN != "" {
		db, err := storage.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.db = db
	}

	feeds, articles, categories, err := a.contentStores(ctx)
	if err != nil {
		a.closeDB()
		return nil, err
	}

	store, backend, err := queue.NewStore(cfg.Queue, a.db)
	if err != nil {
		a.closeDB()
		return nil, err
	}
	a.store, a.backend = store, backend

	indexClient := httpclient.New(cfg.Indexing.Timeout)
	notifier := indexing.NewNotifier(indexing.Options{
		Endpoint:        cfg.Indexing.Endpoint,
		APIKey:          cfg.Indexing.APIKey,
		CredentialsFile: cfg.Indexing.CredentialsFile,
		Client:          indexClient,
		Stats:           store,
		Logger:          baseLogger.With("component", "indexing"),
		Metrics:         a.metrics,
	})
	a.queue = queue.NewService(queue.Options{
		Store:          store,
		Notifier:       notifier,
		MaxRetries:     cfg.Queue.MaxRetries,
		RateLimitDelay: cfg.Queue.RateLimitDelay,
		Logger:         baseLogger.With("component", "queue", "backend", backend),
		Metrics:        a.metrics,
	})

	fetchClient := httpclient.WithUserAgent(httpclient.New(cfg.Fetcher.Timeout), cfg.Fetcher.UserAgent)
	ext := extractor.New(extractor.Options{
		Client:           fetchClient,
		PlaceholderImage: cfg.Extractor.PlaceholderImage,
		FetchOriginal:    cfg.Extractor.FetchOriginal(),
		Logger:           baseLogger.With("component", "extractor"),
	})

	var chat ports.ChatClient
	if c := llm.NewChatGPTClient(cfg.AI, nil); c != nil {
		chat = c
	}
	var primary ports.Classifier
	if chat != nil {
		primary = classifier.NewAI(chat)
	}
	cls := classifier.NewFallback(primary, classifier.NewKeyword(cfg.Classifier.Keywords),
		baseLogger.With("component", "classifier"), a.metrics)

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Feeds:      feeds,
		Articles:   articles,
		Categories: categories,
		Settings:   settings.NewStatic(cfg),
		Fetcher:    feed.NewFetcher(fetchClient, baseLogger.With("component", "fetcher")),
		Extractor:  ext,
		Prober:     ext,
		Classifier: cls,
		Rewriter:   rewriter.New(chat, baseLogger.With("component", "rewriter"), a.metrics),
		Queue:      a.queue,
		Metrics:    a.metrics,
		Logger:     baseLogger.With("component", "pipeline"),
		Location:   cfg.Scheduler.Location(),
	})

	a.scheduler = usecase.NewScheduler(baseLogger.With("component", "scheduler"),
		usecase.SweepTask(scheduler.NewTicker(cfg.Scheduler.SweepInterval, true), a.pipeline),
		usecase.ResetTask(scheduler.NewTicker(cfg.Scheduler.ResetInterval, true), a.pipeline),
		usecase.DrainTask(scheduler.NewTicker(cfg.Queue.DrainInterval, true), a.queue.Drain),
	)

	a.server = api.NewServer(api.Config{
		Addr:    cfg.HTTP.Addr,
		Queue:   a.queue,
		Feeds:   a.pipeline,
		Metrics: a.metrics.Handler(),
		Logger:  baseLogger.With("component", "api"),
	})

	baseLogger.Info("application wired", "queue_backend", backend, "database", a.db != nil, "ai", chat != nil)
	return a, nil
}

// contentStores returns Postgres stores when a database is open, in-memory ones otherwise.
// Configured feeds and categories are seeded into either.
func (a *Application) contentStores(ctx context.Context) (ports.FeedStore, ports.ArticleStore, ports.CategoryStore, error) {
	seedFeeds := make([]domain.FeedSource, 0, len(a.cfg.Feeds))
	for _, f := range a.cfg.Feeds {
		seedFeeds = append(seedFeeds, f.Source())
	}
	seedCategories := a.cfg.Categories
	if len(seedCategories) == 0 {
		names := make([]string, 0, len(a.cfg.Classifier.Keywords))
		for name := range a.cfg.Classifier.Keywords {
			names = append(names, name)
		}
		seedCategories = storage.DefaultCategories(names)
	}

	if a.db == nil {
		return storage.NewMemoryFeedStore(seedFeeds...), storage.NewMemoryArticleStore(),
			storage.NewMemoryCategoryStore(seedCategories...), nil
	}

	feeds := storage.NewPostgresFeedStore(a.db)
	for _, f := range seedFeeds {
		if err := feeds.Ensure(ctx, f); err != nil {
			return nil, nil, nil, fmt.Errorf("seed feed %s: %w", f.ID, err)
		}
	}
	categories := storage.NewPostgresCategoryStore(a.db)
	for _, c := range seedCategories {
		if err := categories.Ensure(ctx, c); err != nil {
			return nil, nil, nil, fmt.Errorf("seed category %s: %w", c.ID, err)
		}
	}
	return feeds, storage.NewPostgresArticleStore(a.db), categories, nil
}

// Pipeline exposes the publish pipeline for one-shot commands.
func (a *Application) Pipeline() *usecase.Pipeline { return a.pipeline }

// Queue exposes the indexing queue for one-shot commands.
func (a *Application) Queue() *queue.Service { return a.queue }

// QueueBackend names the selected queue backend.
func (a *Application) QueueBackend() string { return a.backend }

// Start launches the scheduled tasks and the admin API.
func (a *Application) Start(ctx context.Context) error {
	if n, err := a.queue.RecoverStale(ctx); err != nil {
		return fmt.Errorf("recover queue: %w", err)
	} else if n > 0 {
		a.logger.Warn("requeued items left processing by a previous run", "count", n)
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}

	a.serverDone = make(chan error, 1)
	go func() {
		a.serverDone <- a.server.Start()
	}()
	return nil
}

// Errors reports a failure of the admin listener after Start.
func (a *Application) Errors() <-chan error { return a.serverDone }

// Stop tears down in reverse order: listener, scheduled tasks, queue drain, storage.
func (a *Application) Stop(ctx context.Context) error {
	var errs []error
	if a.serverDone != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown api: %w", err))
		}
	}
	if err := a.scheduler.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	a.queue.Close()
	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases storage without touching the scheduler or listener.
func (a *Application) Close() error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close queue store: %w", err))
		}
		a.store = nil
	}
	if err := a.closeDB(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *Application) closeDB() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	if err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
