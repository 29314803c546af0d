package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"FeedPress/internal/domain"
	"FeedPress/internal/ports"
)

const maxPromptBody = 1000

var errNoChatClient = errors.New("ai classifier: no credential configured")

// AI asks a chat model to pick a category name.
type AI struct {
	chat ports.ChatClient
}

var _ ports.Classifier = (*AI)(nil)

// NewAI returns an AI strategy; a nil chat client makes every call fail so the fallback takes over.
func NewAI(chat ports.ChatClient) *AI {
	return &AI{chat: chat}
}

func (a *AI) Classify(ctx context.Context, title, body string, categories []domain.Category) (domain.Classification, error) {
	if len(categories) == 0 {
		return domain.Classification{}, errNoCategories
	}
	if a.chat == nil {
		return domain.Classification{}, errNoChatClient
	}

	answer, err := a.chat.Complete(ctx, buildPrompt(title, body, categories))
	if err != nil {
		return domain.Classification{}, fmt.Errorf("ai classify: %w", err)
	}
	return matchAnswer(answer, categories), nil
}

func buildPrompt(title, body string, categories []domain.Category) string {
	var b strings.Builder
	b.WriteString("Classify the article into exactly one of the following categories.\n\nCategories:\n")
	for _, c := range categories {
		b.WriteString("- ")
		b.WriteString(c.Name)
		if c.Description != "" {
			b.WriteString(": ")
			b.WriteString(c.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nTitle: ")
	b.WriteString(title)
	b.WriteString("\n\nContent:\n")
	b.WriteString(truncateRunes(body, maxPromptBody))
	b.WriteString("\n\nRespond with only the category name.")
	return b.String()
}

// matchAnswer resolves a free-text answer: exact name, then substring either way, then the first category.
func matchAnswer(answer string, categories []domain.Category) domain.Classification {
	got := strings.ToLower(strings.Trim(strings.TrimSpace(answer), `"'.`))

	for _, c := range categories {
		if strings.ToLower(c.Name) == got {
			return domain.Classification{Category: c, Confidence: ConfidenceExact, Strategy: StrategyAI}
		}
	}
	if got != "" {
		for _, c := range categories {
			name := strings.ToLower(c.Name)
			if name == "" {
				continue
			}
			if strings.Contains(got, name) || strings.Contains(name, got) {
				return domain.Classification{Category: c, Confidence: ConfidencePartial, Strategy: StrategyAI}
			}
		}
	}
	return domain.Classification{Category: categories[0], Confidence: ConfidenceAIDefault, Strategy: StrategyAI}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
