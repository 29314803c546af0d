package extractor

import (
	"context"
	"io"
	"net/http"
)

// Reachable issues a HEAD request for the image and reports whether it answered 2xx.
// Servers that reject HEAD are retried once with GET.
func (e *Extractor) Reachable(ctx context.Context, imageURL string) bool {
	status, err := e.probe(ctx, http.MethodHead, imageURL)
	if err == nil && status == http.StatusMethodNotAllowed {
		status, err = e.probe(ctx, http.MethodGet, imageURL)
	}
	if err != nil {
		e.debug("image probe failed", "url", imageURL, "error", err)
		return false
	}
	return status >= 200 && status < 300
}

func (e *Extractor) probe(ctx context.Context, method, imageURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, imageURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	return resp.StatusCode, nil
}
