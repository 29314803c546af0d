package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"FeedPress/internal/domain"
	"FeedPress/internal/queue"
	"FeedPress/internal/usecase"
)

const defaultListLimit = 50

// Queue is the operator surface of the indexing queue.
type Queue interface {
	Status(ctx context.Context) (queue.Status, error)
	List(ctx context.Context, limit int) ([]queue.ItemView, error)
	Clear(ctx context.Context) (int, error)
	RetryFailed(ctx context.Context) (int, error)
	Enqueue(ctx context.Context, articleID, articleTitle, url string, kind domain.NotificationType) (bool, error)
}

// Feeds exposes the manual feed controls.
type Feeds interface {
	SweepFeed(ctx context.Context, feedID string) (usecase.SweepResult, error)
	SweepAll(ctx context.Context) (usecase.SweepSummary, error)
	ResetDaily(ctx context.Context) (int, error)
	TestFeed(ctx context.Context, url string) ([]usecase.Sample, error)
}

// Config contains server configuration.
type Config struct {
	Addr    string
	Queue   Queue
	Feeds   Feeds
	Metrics http.Handler
	Logger  *slog.Logger
}

// Server is the admin JSON API.
type Server struct {
	queue   Queue
	feeds   Feeds
	metrics http.Handler
	logger  *slog.Logger
	mux     *http.ServeMux
	server  *http.Server
}

// NewServer registers the routes; it does not start listening.
func NewServer(cfg Config) *Server {
	s := &Server{
		queue:   cfg.Queue,
		feeds:   cfg.Feeds,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}

	s.mux.HandleFunc("GET /api/queue/status", s.handleQueueStatus)
	s.mux.HandleFunc("GET /api/queue/items", s.handleQueueItems)
	s.mux.HandleFunc("POST /api/queue/clear", s.handleQueueClear)
	s.mux.HandleFunc("POST /api/queue/retry-failed", s.handleQueueRetry)
	s.mux.HandleFunc("POST /api/queue/enqueue", s.handleQueueEnqueue)

	s.mux.HandleFunc("POST /api/feeds/sweep", s.handleSweepAll)
	s.mux.HandleFunc("POST /api/feeds/{id}/sweep", s.handleSweepFeed)
	s.mux.HandleFunc("POST /api/feeds/reset", s.handleReset)
	s.mux.HandleFunc("POST /api/feeds/test", s.handleTestFeed)
}

// Handler returns the routed handler with logging and tracing middleware applied.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.logRequests(s.mux), "feedpress-admin")
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.info("admin api listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if r.URL.Path != "/health" && s.logger != nil {
			s.logger.Debug("request served", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		}
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.queue.Status(r.Context())
	if err != nil {
		s.respondFailure(w, "queue status", err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleQueueItems(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	items, err := s.queue.List(r.Context(), limit)
	if err != nil {
		s.respondFailure(w, "queue list", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": items, "limit": limit})
}

func (s *Server) handleQueueClear(w http.ResponseWriter, r *http.Request) {
	n, err := s.queue.Clear(r.Context())
	if err != nil {
		s.respondFailure(w, "queue clear", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) handleQueueRetry(w http.ResponseWriter, r *http.Request) {
	n, err := s.queue.RetryFailed(r.Context())
	if err != nil {
		s.respondFailure(w, "queue retry", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"reset": n})
}

// EnqueueRequest queues a notification on behalf of the article CRUD layer.
type EnqueueRequest struct {
	ArticleID    string                  `json:"articleId"`
	ArticleTitle string                  `json:"articleTitle"`
	URL          string                  `json:"url"`
	Type         domain.NotificationType `json:"type"`
}

func (s *Server) handleQueueEnqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ArticleID == "" || req.URL == "" {
		respondError(w, http.StatusBadRequest, "articleId and url are required")
		return
	}
	if req.Type == "" {
		req.Type = domain.NotifyUpdated
	}
	if req.Type != domain.NotifyUpdated && req.Type != domain.NotifyDeleted {
		respondError(w, http.StatusBadRequest, "type must be updated or deleted")
		return
	}

	created, err := s.queue.Enqueue(r.Context(), req.ArticleID, req.ArticleTitle, req.URL, req.Type)
	if err != nil {
		s.respondFailure(w, "queue enqueue", err)
		return
	}
	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}
	respondJSON(w, status, map[string]bool{"queued": created})
}

func (s *Server) handleSweepAll(w http.ResponseWriter, r *http.Request) {
	summary, err := s.feeds.SweepAll(context.WithoutCancel(r.Context()))
	if err != nil {
		s.respondFailure(w, "sweep", err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleSweepFeed(w http.ResponseWriter, r *http.Request) {
	res, err := s.feeds.SweepFeed(context.WithoutCancel(r.Context()), r.PathValue("id"))
	var fetchErr *domain.FetchError
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, res)
	case errors.As(err, &fetchErr):
		respondJSON(w, http.StatusBadGateway, res)
	default:
		s.respondFailure(w, "sweep feed", err)
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	n, err := s.feeds.ResetDaily(context.WithoutCancel(r.Context()))
	if err != nil {
		s.respondFailure(w, "reset daily", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"reset": n})
}

// TestFeedRequest names the feed URL to probe.
type TestFeedRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleTestFeed(w http.ResponseWriter, r *http.Request) {
	var req TestFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	samples, err := s.feeds.TestFeed(r.Context(), req.URL)
	var fetchErr *domain.FetchError
	if errors.As(err, &fetchErr) {
		respondError(w, http.StatusBadGateway, fetchErr.Error())
		return
	}
	if err != nil {
		s.respondFailure(w, "test feed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"url": req.URL, "items": samples})
}

// respondFailure maps domain errors to HTTP statuses.
func (s *Server) respondFailure(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrStorage):
		status = http.StatusServiceUnavailable
	}
	if s.logger != nil && status != http.StatusNotFound {
		s.logger.Error("admin request failed", "op", op, "error", err)
	}
	respondError(w, status, err.Error())
}

func (s *Server) info(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
