package indexing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"FeedPress/internal/domain"
	"FeedPress/internal/infrastructure/httpclient"
	"FeedPress/internal/metrics"
	"FeedPress/internal/ports"
)

// StatsRecorder keeps the aggregate indexing statistics.
type StatsRecorder interface {
	RecordIndexed(ctx context.Context, at time.Time) error
}

// Options configures a Notifier.
type Options struct {
	Endpoint        string
	APIKey          string
	CredentialsFile string
	Client          *http.Client
	Stats           StatsRecorder
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
}

// Notifier publishes URL change notifications to the indexing API.
type Notifier struct {
	endpoint string
	auth     Authorizer
	client   *http.Client
	stats    StatsRecorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

var _ ports.IndexingClient = (*Notifier)(nil)

type publishRequest struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

type providerError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewNotifier picks the service-account authorizer when a credentials file is set, else the static key.
func NewNotifier(opts Options) *Notifier {
	if opts.Client == nil {
		opts.Client = httpclient.New(15 * time.Second)
	}

	var auth Authorizer
	switch {
	case opts.CredentialsFile != "":
		sa, err := LoadServiceAccount(opts.CredentialsFile, opts.Client)
		if err != nil {
			auth = failedAuthorizer{err: err}
		} else {
			auth = sa
		}
	case opts.APIKey != "":
		auth = StaticKey(opts.APIKey)
	default:
		auth = failedAuthorizer{err: &domain.NotifierError{Class: domain.ErrorAuthentication, Message: "no indexing credential configured"}}
	}

	return &Notifier{
		endpoint: opts.Endpoint,
		auth:     auth,
		client:   opts.Client,
		stats:    opts.Stats,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      time.Now,
	}
}

// WithAuthorizer swaps the credential strategy.
func (n *Notifier) WithAuthorizer(auth Authorizer) *Notifier {
	n.auth = auth
	return n
}

// Notify publishes one URL. Failures are *domain.NotifierError.
func (n *Notifier) Notify(ctx context.Context, rawURL string, kind domain.NotificationType) error {
	err := n.notify(ctx, rawURL, kind)
	if err != nil {
		n.metrics.NotifierError(string(domain.ClassOf(err)))
		return err
	}

	now := n.now()
	if n.stats != nil {
		if serr := n.stats.RecordIndexed(ctx, now); serr != nil && n.logger != nil {
			n.logger.Warn("record indexing stats", "url", rawURL, "error", serr)
		}
	}
	if n.logger != nil {
		n.logger.Info("url indexed", "url", rawURL, "type", kind)
	}
	return nil
}

func (n *Notifier) notify(ctx context.Context, rawURL string, kind domain.NotificationType) error {
	if err := validateURL(rawURL); err != nil {
		return err
	}
	if n.endpoint == "" {
		return &domain.NotifierError{Class: domain.ErrorUnknown, Message: "indexing endpoint not configured"}
	}

	body, err := json.Marshal(publishRequest{URL: rawURL, Type: notificationType(kind)})
	if err != nil {
		return &domain.NotifierError{Class: domain.ErrorUnknown, Message: fmt.Sprintf("marshal payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return &domain.NotifierError{Class: domain.ErrorUnknown, Message: fmt.Sprintf("new request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	if err := n.auth.Authorize(ctx, req); err != nil {
		var nerr *domain.NotifierError
		if errors.As(err, &nerr) {
			return nerr
		}
		return &domain.NotifierError{Class: domain.ErrorAuthentication, Message: err.Error()}
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return &domain.NotifierError{Class: domain.ErrorUnknown, Message: fmt.Sprintf("do request: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil
	}

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &domain.NotifierError{
		Class:      domain.ClassFromStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    providerMessage(resp.Status, payload),
	}
}

func validateURL(rawURL string) error {
	u, err := url.ParseRequestURI(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &domain.NotifierError{Class: domain.ErrorInvalidURL, Message: fmt.Sprintf("malformed url %q", rawURL)}
	}
	return nil
}

func notificationType(kind domain.NotificationType) string {
	if kind == domain.NotifyDeleted {
		return "URL_DELETED"
	}
	return "URL_UPDATED"
}

func providerMessage(status string, payload []byte) string {
	var pe providerError
	if err := json.Unmarshal(payload, &pe); err == nil && pe.Error.Message != "" {
		return pe.Error.Message
	}
	if text := strings.TrimSpace(string(payload)); text != "" {
		return text
	}
	return status
}
