package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedPress/internal/domain"
	"FeedPress/internal/metrics"
	"FeedPress/internal/queue"
	"FeedPress/internal/usecase"
)

type okNotifier struct{}

func (okNotifier) Notify(context.Context, string, domain.NotificationType) error { return nil }

type fakeFeeds struct {
	swept []string
}

func (f *fakeFeeds) SweepFeed(_ context.Context, id string) (usecase.SweepResult, error) {
	f.swept = append(f.swept, id)
	switch id {
	case "missing":
		return usecase.SweepResult{FeedID: id}, fmt.Errorf("load feed %s: %w", id, domain.ErrNotFound)
	case "down":
		err := &domain.FetchError{URL: "https://down.example.com/rss", Status: 503}
		return usecase.SweepResult{FeedID: id, Error: err.Error()}, err
	}
	return usecase.SweepResult{FeedID: id, Fetched: 2, Published: 1}, nil
}

func (f *fakeFeeds) SweepAll(ctx context.Context) (usecase.SweepSummary, error) {
	res, _ := f.SweepFeed(ctx, "wire")
	return usecase.SweepSummary{Feeds: []usecase.SweepResult{res}}, nil
}

func (f *fakeFeeds) ResetDaily(context.Context) (int, error) { return 2, nil }

func (f *fakeFeeds) TestFeed(_ context.Context, url string) ([]usecase.Sample, error) {
	if strings.Contains(url, "broken") {
		return nil, &domain.FetchError{URL: url, Status: 404}
	}
	return []usecase.Sample{{Title: "One", Link: url + "/1"}}, nil
}

func setupTestServer(t *testing.T) (*httptest.Server, *queue.Service, *fakeFeeds) {
	t.Helper()

	svc := queue.NewService(queue.Options{Store: queue.NewMemoryStore(), Notifier: okNotifier{}})
	feeds := &fakeFeeds{}
	s := NewServer(Config{Queue: svc, Feeds: feeds, Metrics: metrics.New().Handler()})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		svc.Close()
	})
	return ts, svc, feeds
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _, _ := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", decode[map[string]any](t, resp)["status"])

	mresp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	assert.Equal(t, http.StatusOK, mresp.StatusCode)
}

func TestQueueEndpoints(t *testing.T) {
	ts, svc, _ := setupTestServer(t)

	resp := post(t, ts.URL+"/api/queue/enqueue", EnqueueRequest{ArticleID: "a1", ArticleTitle: "Hello", URL: "https://site/a1"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	svc.Wait()

	resp = post(t, ts.URL+"/api/queue/enqueue", EnqueueRequest{ArticleID: "a2", URL: "https://site/a2", Type: "moved"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = post(t, ts.URL+"/api/queue/enqueue", EnqueueRequest{URL: "https://site/a3"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	sresp, err := http.Get(ts.URL + "/api/queue/status")
	require.NoError(t, err)
	defer sresp.Body.Close()
	st := decode[queue.Status](t, sresp)
	assert.Equal(t, 1, st.TotalItems)
	assert.Equal(t, 1, st.CompletedItems)

	lresp, err := http.Get(ts.URL + "/api/queue/items?limit=5")
	require.NoError(t, err)
	defer lresp.Body.Close()
	listing := decode[struct {
		Items []queue.ItemView `json:"items"`
		Limit int              `json:"limit"`
	}](t, lresp)
	require.Len(t, listing.Items, 1)
	assert.Equal(t, "Hello", listing.Items[0].ArticleTitle)
	assert.Equal(t, 5, listing.Limit)

	bad, err := http.Get(ts.URL + "/api/queue/items?limit=zero")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	resp = post(t, ts.URL+"/api/queue/retry-failed", nil)
	assert.Equal(t, 0, decode[map[string]int](t, resp)["reset"])

	resp = post(t, ts.URL+"/api/queue/clear", nil)
	assert.Equal(t, 1, decode[map[string]int](t, resp)["deleted"])
}

func TestFeedEndpoints(t *testing.T) {
	ts, _, feeds := setupTestServer(t)

	resp := post(t, ts.URL+"/api/feeds/wire/sweep", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decode[usecase.SweepResult](t, resp).Published)

	resp = post(t, ts.URL+"/api/feeds/missing/sweep", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = post(t, ts.URL+"/api/feeds/down/sweep", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, decode[usecase.SweepResult](t, resp).Error, "503")

	resp = post(t, ts.URL+"/api/feeds/sweep", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"wire", "missing", "down", "wire"}, feeds.swept)

	resp = post(t, ts.URL+"/api/feeds/reset", nil)
	assert.Equal(t, 2, decode[map[string]int](t, resp)["reset"])

	resp = post(t, ts.URL+"/api/feeds/test", TestFeedRequest{URL: "https://ok.example.com/rss"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = post(t, ts.URL+"/api/feeds/test", TestFeedRequest{URL: "https://broken.example.com/rss"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	resp = post(t, ts.URL+"/api/feeds/test", TestFeedRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMethodMismatch(t *testing.T) {
	ts, _, _ := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/queue/clear")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

// ctxFeeds records the context error seen by the sweep operations.
type ctxFeeds struct {
	fakeFeeds
	errs []error
}

func (c *ctxFeeds) SweepFeed(ctx context.Context, id string) (usecase.SweepResult, error) {
	c.errs = append(c.errs, ctx.Err())
	return usecase.SweepResult{FeedID: id}, nil
}

func (c *ctxFeeds) SweepAll(ctx context.Context) (usecase.SweepSummary, error) {
	c.errs = append(c.errs, ctx.Err())
	return usecase.SweepSummary{}, nil
}

func (c *ctxFeeds) ResetDaily(ctx context.Context) (int, error) {
	c.errs = append(c.errs, ctx.Err())
	return 0, nil
}

func TestManualSweepsOutliveClientDisconnect(t *testing.T) {
	t.Parallel()

	svc := queue.NewService(queue.Options{Store: queue.NewMemoryStore(), Notifier: okNotifier{}})
	t.Cleanup(svc.Close)
	feeds := &ctxFeeds{}
	handler := NewServer(Config{Queue: svc, Feeds: feeds}).Handler()

	for _, path := range []string{"/api/feeds/sweep", "/api/feeds/wire/sweep", "/api/feeds/reset"} {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest(http.MethodPost, path, nil).WithContext(ctx)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	require.Len(t, feeds.errs, 3)
	for _, err := range feeds.errs {
		assert.NoError(t, err)
	}
}
