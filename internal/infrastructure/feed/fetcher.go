package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"FeedPress/internal/domain"
	"FeedPress/internal/infrastructure/httpclient"
	"FeedPress/internal/ports"
)

const (
	acceptHeader = "application/rss+xml, application/atom+xml, application/xml, text/xml"
	maxFeedBytes = 10 << 20
)

// Fetcher downloads a feed document and hands it to the shape adapters.
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
}

var _ ports.FeedFetcher = (*Fetcher)(nil)

// NewFetcher wires the outbound client; a nil client gets the shared default.
func NewFetcher(client *http.Client, log *slog.Logger) *Fetcher {
	if client == nil {
		client = httpclient.New(0)
	}
	return &Fetcher{client: client, logger: log}
}

// Fetch returns the feed's items in document order. Every failure is a *domain.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]domain.RawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &domain.FetchError{URL: feedURL, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Accept", acceptHeader)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &domain.FetchError{URL: feedURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, &domain.FetchError{URL: feedURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, &domain.FetchError{URL: feedURL, Err: fmt.Errorf("read body: %w", err)}
	}

	items, err := parseShapes(body)
	if err != nil {
		return nil, &domain.FetchError{URL: feedURL, Err: fmt.Errorf("parse feed: %w", err)}
	}

	f.debug("feed fetched", "url", feedURL, "items", len(items))
	return items, nil
}

func (f *Fetcher) debug(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}
