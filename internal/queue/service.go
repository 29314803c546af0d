package queue

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
)

const defaultMaxRetries = 3

// Options configures the queue service.
type Options struct {
	Store          ports.QueueStore
	Notifier       ports.IndexingClient
	MaxRetries     int
	RateLimitDelay time.Duration
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

// Service is the indexing queue state machine. At most one drain runs at a time.
type Service struct {
	store    ports.QueueStore
	notifier ports.IndexingClient
	retries  int
	delay    time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string

	mu   sync.Mutex
	busy bool
	// rerun is set when a wakeup arrives while busy; the running drain claims again before releasing.
	rerun bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status is the operator view of the queue.
type Status struct {
	TotalItems      int                  `json:"totalItems"`
	IsProcessing    bool                 `json:"isProcessing"`
	PendingItems    int                  `json:"pendingItems"`
	ProcessingItems int                  `json:"processingItems"`
	CompletedItems  int                  `json:"completedItems"`
	FailedItems     int                  `json:"failedItems"`
	Stats           domain.IndexingStats `json:"stats"`
}

// ItemView is one row of the queue listing.
type ItemView struct {
	ID           string                  `json:"id"`
	URL          string                  `json:"url"`
	Type         domain.NotificationType `json:"type"`
	Status       domain.QueueStatus      `json:"status"`
	Retries      int                     `json:"retries"`
	AddedAt      time.Time               `json:"addedAt"`
	ArticleTitle string                  `json:"articleTitle"`
	LastError    string                  `json:"lastError,omitempty"`
	ErrorCode    domain.ErrorClass       `json:"errorCode,omitempty"`
}

// DrainResult summarises one drain run.
type DrainResult struct {
	Skipped   bool `json:"skipped"`
	Recovered int  `json:"recovered"`
	Processed int  `json:"processed"`
	Completed int  `json:"completed"`
	Retried   int  `json:"retried"`
	Failed    int  `json:"failed"`
}

// NewService wires a queue over the given backend.
func NewService(opts Options) *Service {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:    opts.Store,
		notifier: opts.Notifier,
		retries:  opts.MaxRetries,
		delay:    opts.RateLimitDelay,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      time.Now,
		sleep:    sleepContext,
		newID:    uuid.NewString,
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Enqueue adds a pending notification unless the article already has a non-terminal item.
// It reports whether a new item was created and kicks the drain when one was.
func (s *Service) Enqueue(ctx context.Context, articleID, articleTitle, url string, kind domain.NotificationType) (bool, error) {
	if kind == "" {
		kind = domain.NotifyUpdated
	}
	item := domain.QueueItem{
		ID:           s.newID(),
		ArticleID:    articleID,
		ArticleTitle: articleTitle,
		URL:          url,
		Type:         kind,
		Status:       domain.QueuePending,
		MaxRetries:   s.retries,
		AddedAt:      s.now().UTC(),
	}

	if err := s.store.Insert(ctx, item); err != nil {
		if errors.Is(err, domain.ErrAlreadyQueued) {
			s.debug("article already queued", "article_id", articleID)
			return false, nil
		}
		return false, fmt.Errorf("enqueue %s: %w", articleID, err)
	}

	s.metrics.QueueTransition(string(domain.QueuePending))
	s.info("notification queued", "article_id", articleID, "url", url, "type", kind)
	s.Kick()
	return true, nil
}

// Kick starts a background drain when none is running. A running drain is asked to
// look for new items once more before it stops.
func (s *Service) Kick() {
	if s.baseCtx.Err() != nil {
		return
	}
	s.mu.Lock()
	busy := s.busy
	if busy {
		s.rerun = true
	}
	s.mu.Unlock()
	if busy {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := s.Drain(s.baseCtx)
		if err != nil {
			s.logError("drain halted", "error", err, "processed", res.Processed)
		}
	}()
}

// Wait blocks until background drains started by Kick have returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close cancels background drains and waits for them.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// IsProcessing reports whether a drain is running.
func (s *Service) IsProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

func (s *Service) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		s.rerun = true
		return false
	}
	s.busy = true
	s.rerun = false
	return true
}

// release clears the busy flag and honours a wakeup that arrived in the meantime.
func (s *Service) release() {
	s.mu.Lock()
	s.busy = false
	pending := s.rerun
	s.rerun = false
	s.mu.Unlock()
	if pending {
		s.Kick()
	}
}

// finish releases the drain unless a wakeup arrived since the last claim, in which case
// the caller keeps claiming. The check and the release happen under one lock.
func (s *Service) finish() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rerun {
		s.rerun = false
		return false
	}
	s.busy = false
	return true
}

// Drain processes pending items until none remain. A storage error halts the run and is returned;
// the in-flight item stays in processing and is recovered by the next run.
func (s *Service) Drain(ctx context.Context) (DrainResult, error) {
	if !s.acquire() {
		return DrainResult{Skipped: true}, nil
	}
	finished := false
	defer func() {
		if !finished {
			s.release()
		}
	}()
	defer s.refreshDepth(ctx)

	var res DrainResult
	recovered, err := s.store.RequeueProcessing(ctx)
	if err != nil {
		return res, fmt.Errorf("recover stale items: %w", err)
	}
	res.Recovered = recovered
	if recovered > 0 {
		s.warn("requeued stale processing items", "count", recovered)
	}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		item, err := s.store.ClaimNext(ctx)
		if err != nil {
			return res, fmt.Errorf("claim next item: %w", err)
		}
		if item == nil {
			if finished = s.finish(); finished {
				break
			}
			continue
		}
		res.Processed++
		s.metrics.QueueTransition(string(domain.QueueProcessing))

		notifyErr := s.notifier.Notify(ctx, item.URL, item.Type)
		if notifyErr != nil && ctx.Err() != nil {
			return res, ctx.Err()
		}
		s.transition(item, notifyErr, &res)

		if err := s.store.Update(ctx, *item); err != nil {
			return res, fmt.Errorf("update item %s: %w", item.ID, err)
		}
		s.metrics.QueueTransition(string(item.Status))

		if err := s.sleep(ctx, s.delay); err != nil {
			return res, err
		}
	}

	if res.Processed > 0 {
		s.info("drain finished", "processed", res.Processed, "completed", res.Completed,
			"retried", res.Retried, "failed", res.Failed)
	}
	return res, nil
}

// transition applies the outcome of one notification to item.
// retryCount counts failures; the item fails once it reaches its retry budget.
func (s *Service) transition(item *domain.QueueItem, notifyErr error, res *DrainResult) {
	now := s.now().UTC()
	if notifyErr == nil {
		item.Status = domain.QueueCompleted
		item.ProcessedAt = &now
		item.LastError = ""
		item.ErrorCode = ""
		res.Completed++
		return
	}

	budget := item.MaxRetries
	if budget <= 0 {
		budget = s.retries
	}
	item.RetryCount++
	item.LastError = notifyErr.Error()
	item.ErrorCode = domain.ClassOf(notifyErr)

	if item.RetryCount >= budget {
		item.Status = domain.QueueFailed
		item.ProcessedAt = &now
		res.Failed++
		s.warn("notification failed permanently", "id", item.ID, "url", item.URL,
			"retries", item.RetryCount, "error_code", item.ErrorCode, "error", notifyErr)
		return
	}

	item.Status = domain.QueuePending
	res.Retried++
	s.info("notification will be retried", "id", item.ID, "url", item.URL,
		"retries", item.RetryCount, "error_code", item.ErrorCode)
}

// Status returns per-state counts and the aggregate indexing stats.
func (s *Service) Status(ctx context.Context) (Status, error) {
	counts, err := s.store.Counts(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("queue counts: %w", err)
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("indexing stats: %w", err)
	}

	st := Status{
		IsProcessing:    s.IsProcessing(),
		PendingItems:    counts[domain.QueuePending],
		ProcessingItems: counts[domain.QueueProcessing],
		CompletedItems:  counts[domain.QueueCompleted],
		FailedItems:     counts[domain.QueueFailed],
		Stats:           stats,
	}
	st.TotalItems = st.PendingItems + st.ProcessingItems + st.CompletedItems + st.FailedItems
	return st, nil
}

// List returns the most recent items, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]ItemView, error) {
	if limit <= 0 {
		limit = 50
	}
	items, err := s.store.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	views := make([]ItemView, 0, len(items))
	for _, it := range items {
		views = append(views, ItemView{
			ID:           it.ID,
			URL:          it.URL,
			Type:         it.Type,
			Status:       it.Status,
			Retries:      it.RetryCount,
			AddedAt:      it.AddedAt,
			ArticleTitle: it.ArticleTitle,
			LastError:    it.LastError,
			ErrorCode:    it.ErrorCode,
		})
	}
	return views, nil
}

// Clear deletes every item.
func (s *Service) Clear(ctx context.Context) (int, error) {
	n, err := s.store.Clear(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	s.warn("queue cleared", "deleted", n)
	s.refreshDepth(ctx)
	return n, nil
}

// RetryFailed resets failed items to pending with a zero retry count, then kicks the drain.
func (s *Service) RetryFailed(ctx context.Context) (int, error) {
	n, err := s.store.ResetFailed(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset failed items: %w", err)
	}
	s.info("failed items reset", "count", n)
	if n > 0 {
		s.Kick()
	}
	return n, nil
}

// RecoverStale returns processing items to pending when no drain is running.
func (s *Service) RecoverStale(ctx context.Context) (int, error) {
	if !s.acquire() {
		return 0, nil
	}
	defer s.release()
	n, err := s.store.RequeueProcessing(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover stale items: %w", err)
	}
	return n, nil
}

func (s *Service) refreshDepth(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	counts, err := s.store.Counts(ctx)
	if err != nil {
		return
	}
	depth := make(map[string]int, 4)
	for _, st := range []domain.QueueStatus{domain.QueuePending, domain.QueueProcessing, domain.QueueCompleted, domain.QueueFailed} {
		depth[string(st)] = counts[st]
	}
	s.metrics.QueueDepth(depth)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Service) info(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Service) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Service) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}
