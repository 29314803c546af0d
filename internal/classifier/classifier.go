package classifier

import (
	"context"
	"errors"
	"log/slog"

	"FeedPress/internal/domain"
	"FeedPress/internal/metrics"
	"FeedPress/internal/ports"
)

// Strategy names reported in domain.Classification.Strategy.
const (
	StrategyAI      = "ai"
	StrategyKeyword = "keyword"
	StrategyDefault = "default"
)

// Confidence values per decision path.
const (
	ConfidenceExact     = 1.0
	ConfidencePartial   = 0.8
	ConfidenceAIDefault = 0.5
	ConfidenceKeyword   = 0.6
	ConfidenceDefault   = 0.3
)

var errNoCategories = errors.New("no categories to choose from")

// Fallback tries the primary strategy and falls back to the secondary on any error.
// It never returns an error.
type Fallback struct {
	primary   ports.Classifier
	secondary ports.Classifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

var _ ports.Classifier = (*Fallback)(nil)

// NewFallback composes two strategies. A nil primary always uses the secondary.
func NewFallback(primary, secondary ports.Classifier, log *slog.Logger, m *metrics.Metrics) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, logger: log, metrics: m}
}

// Classify returns a category from categories; with an empty list it returns the zero value.
func (f *Fallback) Classify(ctx context.Context, title, body string, categories []domain.Category) (domain.Classification, error) {
	if len(categories) == 0 {
		return domain.Classification{}, nil
	}

	for _, strategy := range []ports.Classifier{f.primary, f.secondary} {
		if strategy == nil {
			continue
		}
		result, err := strategy.Classify(ctx, title, body, categories)
		if err == nil {
			f.metrics.Classified(result.Strategy)
			return result, nil
		}
		if f.logger != nil {
			f.logger.Debug("classifier strategy failed, falling back", "error", err)
		}
	}

	f.metrics.Classified(StrategyDefault)
	return defaultFirst(categories), nil
}

func defaultFirst(categories []domain.Category) domain.Classification {
	return domain.Classification{Category: categories[0], Confidence: ConfidenceDefault, Strategy: StrategyDefault}
}
