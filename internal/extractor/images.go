package extractor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"FeedPress/internal/domain"
)

const maxPageBytes = 5 << 20

var (
	bareImageURL    = regexp.MustCompile(`(?i)https?://[^\s"'<>()]+\.(?:jpe?g|png|gif|webp|avif|bmp|svg)(?:\?[^\s"'<>()]*)?`)
	backgroundImage = regexp.MustCompile(`(?i)background(?:-image)?\s*:\s*url\(\s*['"]?([^'")\s]+)['"]?\s*\)`)
	imageExtension  = regexp.MustCompile(`(?i)\.(?:jpe?g|png|gif|webp|avif|bmp|svg)(?:$|\?)`)
)

// findImage walks the image cascade and stops at the first hit.
func (e *Extractor) findImage(ctx context.Context, media []domain.MediaRef, htmlBody, link, feedURL string) (string, bool) {
	candidates := []func() string{
		func() string { return fromMedia(media) },
		func() string { return fromInlineImg(htmlBody) },
		func() string { return bareImageURL.FindString(htmlBody) },
		func() string { return fromDataSrc(htmlBody) },
		func() string { return fromBackground(htmlBody) },
	}
	for _, next := range candidates {
		if found := next(); found != "" {
			if abs := resolve(found, feedURL); abs != "" {
				return abs, true
			}
		}
	}

	if !e.fetchOriginal || link == "" {
		return "", false
	}
	found, err := e.fromOriginalPage(ctx, link)
	if err != nil {
		e.debug("original page image lookup failed", "link", link, "error", err)
		return "", false
	}
	if abs := resolve(found, feedURL); abs != "" {
		return abs, true
	}
	return "", false
}

func fromMedia(media []domain.MediaRef) string {
	for _, ref := range media {
		if ref.URL == "" {
			continue
		}
		if isImageRef(ref) {
			return ref.URL
		}
	}
	return ""
}

func isImageRef(ref domain.MediaRef) bool {
	if ref.Medium != "" {
		return strings.EqualFold(ref.Medium, "image")
	}
	if ref.Type != "" {
		return strings.HasPrefix(strings.ToLower(ref.Type), "image/")
	}
	switch ref.Origin {
	case "media:thumbnail", "image":
		return true
	}
	return imageExtension.MatchString(ref.URL)
}

func parseFragment(html string) *goquery.Document {
	if strings.TrimSpace(html) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	return doc
}

func fromInlineImg(html string) string {
	doc := parseFragment(html)
	if doc == nil {
		return ""
	}
	var found string
	doc.Find("img[src]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src := strings.TrimSpace(sel.AttrOr("src", ""))
		if src == "" || strings.HasPrefix(src, "data:") {
			return true
		}
		found = src
		return false
	})
	return found
}

func fromDataSrc(html string) string {
	doc := parseFragment(html)
	if doc == nil {
		return ""
	}
	var found string
	doc.Find("[data-src]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		found = strings.TrimSpace(sel.AttrOr("data-src", ""))
		return found == ""
	})
	return found
}

func fromBackground(html string) string {
	if m := backgroundImage.FindStringSubmatch(html); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// fromOriginalPage scans the linked article for og:image, then twitter:image, then the first img.
func (e *Extractor) fromOriginalPage(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch page: unexpected status %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	selectors := []string{
		`meta[property="og:image"]`,
		`meta[name="og:image"]`,
		`meta[name="twitter:image"]`,
		`meta[property="twitter:image"]`,
	}
	for _, selector := range selectors {
		if content := strings.TrimSpace(doc.Find(selector).First().AttrOr("content", "")); content != "" {
			return content, nil
		}
	}

	var found string
	doc.Find("img[src]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src := strings.TrimSpace(sel.AttrOr("src", ""))
		if src == "" || strings.HasPrefix(src, "data:") {
			return true
		}
		found = src
		return false
	})
	if found == "" {
		return "", fmt.Errorf("no image on page")
	}
	return found, nil
}

// resolve makes ref absolute against the scheme and host of feedURL.
func resolve(ref, feedURL string) string {
	ref = strings.TrimSpace(ref)
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if parsed.IsAbs() {
		return parsed.String()
	}

	feed, err := url.Parse(feedURL)
	if err != nil || feed.Host == "" {
		if strings.HasPrefix(ref, "//") {
			return "https:" + ref
		}
		return ""
	}
	base := &url.URL{Scheme: feed.Scheme, Host: feed.Host, Path: "/"}
	return base.ResolveReference(parsed).String()
}
