package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedPress/internal/config"
	"FeedPress/internal/logging"
)

const rssTemplate = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Wire</title>
<item>
  <title>Chip makers report record quarter</title>
  <link>%[1]s/news/chips</link>
  <description>%[2]s</description>
  <enclosure url="%[1]s/img/chips.jpg" type="image/jpeg" length="100"/>
</item>
</channel></rss>`

func TestSweepPublishesAndNotifies(t *testing.T) {
	body := strings.Repeat("The new software release lifts chip demand. ", 5)
	var feedURL string
	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, rssTemplate, feedURL, body)
	}))
	defer feedSrv.Close()
	feedURL = feedSrv.URL

	var (
		mu       sync.Mutex
		notified []map[string]string
	)
	indexSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var payload map[string]string
		_ = json.Unmarshal(raw, &payload)
		mu.Lock()
		notified = append(notified, payload)
		mu.Unlock()
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"urlNotificationMetadata":{}}`))
	}))
	defer indexSrv.Close()

	cfg, err := config.Parse([]byte(fmt.Sprintf(`
queue:
  rateLimitDelay: 1ms
fetcher:
  timeout: 5s
indexing:
  enabled: true
  apiKey: test-key
  endpoint: %s
site:
  baseUrl: https://site.example.com
feeds:
  - id: wire
    name: Wire
    url: %s/rss
    maxPostsPerDay: 5
    settings:
      autoPublish: true
      autoCategory: true
`, indexSrv.URL, feedSrv.URL)))
	require.NoError(t, err)

	application, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer application.Close()
	assert.Equal(t, config.BackendMemory, application.QueueBackend())

	summary, err := application.Pipeline().SweepAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created())

	application.Queue().Wait()
	st, err := application.Queue().Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.CompletedItems)
	assert.EqualValues(t, 1, st.Stats.TotalIndexed)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, notified, 1)
	assert.Equal(t, "https://site.example.com/articles/chip-makers-report-record-quarter", notified[0]["url"])
	assert.Equal(t, "URL_UPDATED", notified[0]["type"])
}

func TestNewRejectsUnusableQueueBackend(t *testing.T) {
	cfg, err := config.Parse([]byte("queue:\n  backend: postgres\n"))
	require.NoError(t, err)

	_, err = New(context.Background(), cfg, logging.Discard())
	assert.Error(t, err)
}
