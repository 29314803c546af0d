package rewriter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"FeedPress/internal/domain"
)

type stubChat struct {
	answer string
	err    error
	prompt string
}

func (s *stubChat) Complete(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.answer, s.err
}

func TestRewriteReturnsModelOutput(t *testing.T) {
	t.Parallel()

	chat := &stubChat{answer: "  Hey folks, big news today.  "}
	got := New(chat, nil, nil).Rewrite(context.Background(), "Big news was announced today.", domain.StyleCasual)
	assert.Equal(t, "Hey folks, big news today.", got)
	assert.Contains(t, chat.prompt, "casual")
	assert.Contains(t, chat.prompt, "within 10% of its 5 words")
	assert.Contains(t, chat.prompt, "Big news was announced today.")
}

func TestRewriteFallsBackToOriginal(t *testing.T) {
	t.Parallel()

	body := "Original body text."
	cases := map[string]*Rewriter{
		"no client":   New(nil, nil, nil),
		"chat error":  New(&stubChat{err: errors.New("rate limited")}, nil, nil),
		"empty reply": New(&stubChat{answer: "   "}, nil, nil),
	}
	for name, r := range cases {
		assert.Equal(t, body, r.Rewrite(context.Background(), body, domain.StyleFormal), name)
	}
}

func TestPromptPerStyle(t *testing.T) {
	t.Parallel()

	for style, instruction := range styleInstructions {
		assert.Contains(t, Prompt("a b", style), instruction)
	}
	assert.Contains(t, Prompt("a b", "unknown"), styleInstructions[domain.StyleProfessional])
}
