package usecase

import "strings"

const (
	seoTitleMax       = 60
	seoDescriptionMax = 160
	ellipsis          = "..."
	sourcePrefix      = "\n\nSource: "
)

// SEOTitle keeps at most 60 characters, cutting to 57 plus an ellipsis when longer.
func SEOTitle(title string) string {
	return truncate(strings.TrimSpace(title), seoTitleMax)
}

// SEODescription drops a trailing source attribution and keeps at most 160 characters.
func SEODescription(body string) string {
	return truncate(strings.TrimSpace(stripSource(body)), seoDescriptionMax)
}

// WithSource appends the literal source attribution suffix.
func WithSource(body, link string) string {
	if link == "" {
		return body
	}
	return body + sourcePrefix + link
}

func stripSource(body string) string {
	if i := strings.LastIndex(body, sourcePrefix); i >= 0 {
		return body[:i]
	}
	return body
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return strings.TrimSpace(string(r[:limit-len(ellipsis)])) + ellipsis
}
