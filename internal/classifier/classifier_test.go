package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedPress/internal/config"
	"FeedPress/internal/domain"
)

type stubChat struct {
	answer  string
	err     error
	prompts []string
}

func (s *stubChat) Complete(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.answer, s.err
}

var techSports = []domain.Category{
	{ID: "c-tech", Name: "Technology", Description: "Gadgets and software"},
	{ID: "c-sports", Name: "Sports", Description: "Games and athletes"},
}

func TestAIExactMatch(t *testing.T) {
	t.Parallel()

	chat := &stubChat{answer: "Technology"}
	got, err := NewAI(chat).Classify(context.Background(), "New phone", "A new phone launched.", techSports)
	require.NoError(t, err)
	assert.Equal(t, "c-tech", got.Category.ID)
	assert.Equal(t, ConfidenceExact, got.Confidence)
	assert.Equal(t, StrategyAI, got.Strategy)

	require.Len(t, chat.prompts, 1)
	assert.Contains(t, chat.prompts[0], "- Technology: Gadgets and software")
	assert.Contains(t, chat.prompts[0], "- Sports: Games and athletes")
}

func TestAIAnswerMatching(t *testing.T) {
	t.Parallel()

	cases := []struct {
		answer     string
		wantID     string
		confidence float64
	}{
		{answer: "  sports. ", wantID: "c-sports", confidence: ConfidenceExact},
		{answer: "Category: Sports", wantID: "c-sports", confidence: ConfidencePartial},
		{answer: "tech", wantID: "c-tech", confidence: ConfidencePartial},
		{answer: "Weather", wantID: "c-tech", confidence: ConfidenceAIDefault},
		{answer: "", wantID: "c-tech", confidence: ConfidenceAIDefault},
	}
	for _, tc := range cases {
		got := matchAnswer(tc.answer, techSports)
		assert.Equal(t, tc.wantID, got.Category.ID, "answer %q", tc.answer)
		assert.Equal(t, tc.confidence, got.Confidence, "answer %q", tc.answer)
	}
}

func TestAIPromptTruncatesBody(t *testing.T) {
	t.Parallel()

	chat := &stubChat{answer: "Sports"}
	body := strings.Repeat("é", 1500)
	_, err := NewAI(chat).Classify(context.Background(), "t", body, techSports)
	require.NoError(t, err)
	assert.Contains(t, chat.prompts[0], strings.Repeat("é", 1000)+"\n")
	assert.NotContains(t, chat.prompts[0], strings.Repeat("é", 1001))
}

func TestAIWithoutClientFails(t *testing.T) {
	t.Parallel()

	_, err := NewAI(nil).Classify(context.Background(), "t", "b", techSports)
	assert.ErrorIs(t, err, errNoChatClient)
}

func TestKeywordScoring(t *testing.T) {
	t.Parallel()

	k := NewKeyword(config.DefaultKeywords())

	got, err := k.Classify(context.Background(), "Weekend report",
		"The football final was tense. Fans love football. More football tomorrow.", techSports)
	require.NoError(t, err)
	assert.Equal(t, "c-sports", got.Category.ID)
	assert.Equal(t, StrategyKeyword, got.Strategy)
	assert.Equal(t, ConfidenceKeyword, got.Confidence)
}

func TestKeywordWholeWordsOnly(t *testing.T) {
	t.Parallel()

	k := NewKeyword(map[string][]string{"technology": {"ai"}, "sports": {"match"}})
	// "said" and "rematched" must not count.
	got, err := k.Classify(context.Background(), "", "He said the rematched game was odd.", techSports)
	require.NoError(t, err)
	assert.Equal(t, StrategyDefault, got.Strategy)
	assert.Equal(t, "c-tech", got.Category.ID)
}

func TestKeywordTieKeepsFirst(t *testing.T) {
	t.Parallel()

	k := NewKeyword(map[string][]string{"technology": {"chip"}, "sports": {"race"}})
	cats := []domain.Category{techSports[1], techSports[0]}
	got, err := k.Classify(context.Background(), "CHIP race", "", cats)
	require.NoError(t, err)
	assert.Equal(t, "c-sports", got.Category.ID)
}

func TestKeywordEmptyListScoresZero(t *testing.T) {
	t.Parallel()

	k := NewKeyword(map[string][]string{"sports": {"goal"}})
	cats := []domain.Category{{ID: "c-misc", Name: "Misc"}, techSports[1]}
	got, err := k.Classify(context.Background(), "", "no hits here", cats)
	require.NoError(t, err)
	assert.Equal(t, "c-misc", got.Category.ID)
	assert.Equal(t, ConfidenceDefault, got.Confidence)
}

func TestFallbackUsesKeywordsWhenAIUnavailable(t *testing.T) {
	t.Parallel()

	chat := &stubChat{err: errors.New("429 rate limited")}
	f := NewFallback(NewAI(chat), NewKeyword(config.DefaultKeywords()), nil, nil)

	got, err := f.Classify(context.Background(), "Weekend",
		"football is back, football everywhere, football forever", techSports)
	require.NoError(t, err)
	assert.Equal(t, "c-sports", got.Category.ID)
	assert.Equal(t, StrategyKeyword, got.Strategy)
}

func TestFallbackPrefersAI(t *testing.T) {
	t.Parallel()

	f := NewFallback(NewAI(&stubChat{answer: "Technology"}), NewKeyword(config.DefaultKeywords()), nil, nil)
	got, err := f.Classify(context.Background(), "", "football football football", techSports)
	require.NoError(t, err)
	assert.Equal(t, "c-tech", got.Category.ID)
	assert.Equal(t, 1.0, got.Confidence)
}

type failing struct{}

func (failing) Classify(context.Context, string, string, []domain.Category) (domain.Classification, error) {
	return domain.Classification{}, errors.New("down")
}

func TestFallbackNeverFails(t *testing.T) {
	t.Parallel()

	f := NewFallback(failing{}, failing{}, nil, nil)
	got, err := f.Classify(context.Background(), "", "", techSports)
	require.NoError(t, err)
	assert.Equal(t, "c-tech", got.Category.ID)
	assert.Equal(t, StrategyDefault, got.Strategy)

	got, err = f.Classify(context.Background(), "", "", nil)
	require.NoError(t, err)
	assert.Empty(t, got.Category.ID)
}
