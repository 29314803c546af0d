package rewriter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"FeedPress/internal/domain"
	"FeedPress/internal/metrics"
	"FeedPress/internal/ports"
)

var styleInstructions = map[domain.RewriteStyle]string{
	domain.StyleProfessional: "Rewrite the following article in a professional, neutral news tone.",
	domain.StyleCasual:       "Rewrite the following article in a casual, conversational tone that is easy to read.",
	domain.StyleFormal:       "Rewrite the following article in a formal, precise tone suitable for an official publication.",
	domain.StyleCreative:     "Rewrite the following article in a creative, engaging tone with vivid wording while keeping every fact.",
}

// Rewriter restyles article bodies through a chat model.
type Rewriter struct {
	chat    ports.ChatClient
	logger  *slog.Logger
	metrics *metrics.Metrics
}

var _ ports.Rewriter = (*Rewriter)(nil)

// New returns a rewriter; with a nil chat client Rewrite is the identity.
func New(chat ports.ChatClient, log *slog.Logger, m *metrics.Metrics) *Rewriter {
	return &Rewriter{chat: chat, logger: log, metrics: m}
}

// Rewrite returns the restyled body, or body itself when anything goes wrong.
func (r *Rewriter) Rewrite(ctx context.Context, body string, style domain.RewriteStyle) string {
	if strings.TrimSpace(body) == "" {
		return body
	}
	if r.chat == nil {
		r.fallback("no chat client configured")
		return body
	}

	answer, err := r.chat.Complete(ctx, Prompt(body, style))
	if err != nil {
		r.fallback("completion failed", "error", err)
		return body
	}

	rewritten := strings.TrimSpace(answer)
	if rewritten == "" {
		r.fallback("empty completion")
		return body
	}
	return rewritten
}

// Prompt builds the style-specific rewrite instruction. Unknown styles use the professional tone.
func Prompt(body string, style domain.RewriteStyle) string {
	instruction, ok := styleInstructions[style]
	if !ok {
		instruction = styleInstructions[domain.StyleProfessional]
	}
	words := len(strings.Fields(body))
	return fmt.Sprintf("%s Keep the length similar to the original, within 10%% of its %d words. "+
		"Return only the rewritten text without any preamble.\n\n%s", instruction, words, body)
}

func (r *Rewriter) fallback(reason string, args ...any) {
	r.metrics.RewriteFallback()
	if r.logger != nil {
		r.logger.Debug("rewrite skipped: "+reason, args...)
	}
}
