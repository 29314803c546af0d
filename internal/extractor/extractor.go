package extractor

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"FeedPress/internal/domain"
	"FeedPress/internal/infrastructure/httpclient"
	"FeedPress/internal/ports"
)

// DefaultPlaceholder is assigned when no real image can be discovered.
const DefaultPlaceholder = "https://placehold.co/1200x630?text=No+Image"

// Options configures an Extractor.
type Options struct {
	Client           *http.Client
	PlaceholderImage string
	// FetchOriginal enables the last cascade step that downloads the linked article page.
	FetchOriginal bool
	Logger        *slog.Logger
}

// Extractor turns raw feed items into normalized candidates.
type Extractor struct {
	client        *http.Client
	placeholder   string
	fetchOriginal bool
	logger        *slog.Logger
}

var (
	_ ports.ContentExtractor = (*Extractor)(nil)
	_ ports.ImageProber      = (*Extractor)(nil)
)

// New builds an extractor; missing options fall back to defaults.
func New(opts Options) *Extractor {
	if opts.Client == nil {
		opts.Client = httpclient.New(0)
	}
	if opts.PlaceholderImage == "" {
		opts.PlaceholderImage = DefaultPlaceholder
	}
	return &Extractor{
		client:        opts.Client,
		placeholder:   opts.PlaceholderImage,
		fetchOriginal: opts.FetchOriginal,
		logger:        opts.Logger,
	}
}

// Placeholder returns the image assigned to items without a real image.
func (e *Extractor) Placeholder() string { return e.placeholder }

// Extract normalizes raw. It returns a *domain.ValidationError when the item lacks a title or link.
func (e *Extractor) Extract(ctx context.Context, raw domain.RawItem, feedURL string, rules []ports.TextRule) (domain.CandidateItem, error) {
	title := CleanText(raw.Title)
	if title == "" {
		return domain.CandidateItem{}, &domain.ValidationError{Field: "title", Reason: "empty"}
	}
	link := strings.TrimSpace(raw.Link)
	if link == "" {
		return domain.CandidateItem{}, &domain.ValidationError{Field: "link", Reason: "empty"}
	}

	htmlBody := firstNonEmpty(raw.Encoded, raw.Content, raw.Summary)

	image, found := e.findImage(ctx, raw.Media, htmlBody, link, feedURL)
	if !found {
		image = e.placeholder
	}

	body := CleanText(htmlBody)
	title = ApplyRules(title, rules)
	body = ApplyRules(body, rules)

	e.debug("item extracted", "link", link, "image", image, "real_image", found, "body_len", len([]rune(body)))

	return domain.CandidateItem{
		Title:        title,
		Body:         body,
		Link:         link,
		Published:    raw.Published,
		ImageURL:     image,
		HasRealImage: found,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func (e *Extractor) debug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}
