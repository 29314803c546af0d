package classifier

import (
	"context"
	"regexp"
	"strings"

	"FeedPress/internal/domain"
	"FeedPress/internal/ports"
)

// Keyword scores categories by whole-word keyword hits.
type Keyword struct {
	patterns map[string][]*regexp.Regexp
}

var _ ports.Classifier = (*Keyword)(nil)

// NewKeyword compiles the dictionary. Keys are matched case-insensitively against category names.
func NewKeyword(dictionary map[string][]string) *Keyword {
	patterns := make(map[string][]*regexp.Regexp, len(dictionary))
	for name, words := range dictionary {
		key := strings.ToLower(strings.TrimSpace(name))
		for _, w := range words {
			w = strings.TrimSpace(w)
			if w == "" {
				continue
			}
			patterns[key] = append(patterns[key], regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(w)+`\b`))
		}
	}
	return &Keyword{patterns: patterns}
}

// Classify picks the highest scoring category; ties keep the earlier one.
func (k *Keyword) Classify(_ context.Context, title, body string, categories []domain.Category) (domain.Classification, error) {
	if len(categories) == 0 {
		return domain.Classification{}, errNoCategories
	}

	text := title + " " + body
	best, bestScore := -1, 0
	for i, c := range categories {
		score := k.score(c.Name, text)
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	if best < 0 {
		return defaultFirst(categories), nil
	}
	return domain.Classification{Category: categories[best], Confidence: ConfidenceKeyword, Strategy: StrategyKeyword}, nil
}

func (k *Keyword) score(category, text string) int {
	total := 0
	for _, re := range k.patterns[strings.ToLower(strings.TrimSpace(category))] {
		total += len(re.FindAllStringIndex(text, -1))
	}
	return total
}
