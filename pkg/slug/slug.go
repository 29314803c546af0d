package slug

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	maxLength   = 80
	maxAttempts = 50
)

var (
	nonAlnum = regexp.MustCompile(`[^a-z0-9-]+`)
	dashes   = regexp.MustCompile(`-+`)
)

// Generate creates a URL-friendly slug from a string.
func Generate(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	s = transliterate(s)
	s = strings.NewReplacer(" ", "-", "_", "-", "/", "-", ".", "-").Replace(s)
	s = nonAlnum.ReplaceAllString(s, "")
	s = dashes.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > maxLength {
		s = strings.TrimRight(s[:maxLength], "-")
	}
	return s
}

// ExistsFunc reports whether a slug is already taken.
type ExistsFunc func(ctx context.Context, slug string) (bool, error)

// Unique derives a slug from title that exists reports as free, appending -2, -3, ...
// and finally a random suffix when the numbered candidates are exhausted.
func Unique(ctx context.Context, title string, exists ExistsFunc) (string, error) {
	base := Generate(title)
	if base == "" {
		base = "article"
	}

	candidate := base
	for n := 2; n <= maxAttempts; n++ {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}

	return fmt.Sprintf("%s-%s", base, uuid.NewString()[:8]), nil
}

// transliterate strips diacritics by decomposing and dropping nonspacing marks.
func transliterate(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}
