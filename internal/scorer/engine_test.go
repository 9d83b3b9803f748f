package scorer

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BeyondDrewTV/stylescope/internal/config"
	"github.com/BeyondDrewTV/stylescope/internal/model"
	"github.com/BeyondDrewTV/stylescope/internal/resilience"
	"github.com/BeyondDrewTV/stylescope/pkg/anthropic"
)

// fakeClient returns canned responses or errors in sequence, then repeats
// the last entry.
type fakeClient struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeClient) CreateMessage(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	idx := f.calls
	f.calls++
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	if f.errs != nil && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: f.responses[idx]}},
	}, nil
}

func testScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		ReadabilityWeight:  0.40,
		SecondaryWeight:    0.15,
		ReadabilityFloor:   70,
		CappedOverall:      75,
		MaxAttempts:        3,
		InitialBackoffSecs: 0.001,
		MinReviewCount:     5,
		MinContextChars:    800,
	}
}

func testAICfg() config.AnthropicConfig {
	return config.AnthropicConfig{Key: "test-key", Model: "claude-haiku-4-5-20251001", MaxTokens: 2048}
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestEngine(client anthropic.Client) *Engine {
	return NewEngine(client, testAICfg(), testScoringConfig(), WithSleep(noSleep))
}

func richContext() *model.Context {
	excerpts := make([]string, 10)
	text := "Title: Sample Book\n\n"
	for i := range excerpts {
		excerpts[i] = "The prose flows beautifully and the pacing never lets up."
		text += excerpts[i] + " Plenty more commentary to push the context well past the length threshold for confident scoring. "
	}
	return &model.Context{
		Text:            text,
		QualityExcerpts: excerpts,
		ReviewCount:     10,
		ExcerptCount:    10,
		Source:          model.ContextDescriptionReviews,
	}
}

func TestScoreSuccess(t *testing.T) {
	client := &fakeClient{responses: []string{validJSON}}
	e := newTestEngine(client)

	result := e.Score(context.Background(), model.BookQuery{Title: "Sample Book", Author: "A. Author"}, richContext())

	assert.Equal(t, model.ScoringOK, result.Status)
	assert.Equal(t, 82, result.Dimensions.Readability)
	// 0.40*82 + 0.15*(75+70+68+77) = 32.8 + 43.5 = 76.3 → 76
	assert.Equal(t, 76, result.Overall)
	assert.Equal(t, 80, result.Confidence)
	assert.Empty(t, result.Flags)
	assert.Equal(t, 1, client.calls)
}

func TestComputeOverall(t *testing.T) {
	e := newTestEngine(&fakeClient{})

	tests := []struct {
		name string
		dims model.DimensionScores
		want int
	}{
		{
			name: "weighted unclamped",
			dims: model.DimensionScores{Readability: 90, Grammar: 80, Polish: 80, Prose: 80, Pacing: 80},
			want: 84,
		},
		{
			name: "readability cap",
			dims: model.DimensionScores{Readability: 60, Grammar: 100, Polish: 100, Prose: 100, Pacing: 100},
			want: 75,
		},
		{
			name: "cap not applied below threshold value",
			dims: model.DimensionScores{Readability: 60, Grammar: 60, Polish: 60, Prose: 60, Pacing: 60},
			want: 60,
		},
		{
			name: "readability at floor is unclamped",
			dims: model.DimensionScores{Readability: 70, Grammar: 100, Polish: 100, Prose: 100, Pacing: 100},
			want: 88,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.computeOverall(tt.dims))
		})
	}
}

func TestScoreFailFast(t *testing.T) {
	t.Run("missing API key", func(t *testing.T) {
		client := &fakeClient{responses: []string{validJSON}}
		e := NewEngine(client, config.AnthropicConfig{}, testScoringConfig(), WithSleep(noSleep))

		result := e.Score(context.Background(), model.BookQuery{Title: "X"}, richContext())

		assert.Equal(t, model.ScoringError, result.Status)
		assert.Contains(t, result.Flags, "missing_api_key")
		assert.Zero(t, client.calls, "no API call without credentials")
	})

	t.Run("empty context", func(t *testing.T) {
		client := &fakeClient{responses: []string{validJSON}}
		e := newTestEngine(client)

		result := e.Score(context.Background(), model.BookQuery{Title: "X"}, &model.Context{Text: "   "})

		assert.Equal(t, model.ScoringError, result.Status)
		assert.Contains(t, result.Flags, "no_context_found")
		assert.Zero(t, client.calls)
	})
}

func TestScoreRetriesThenSucceeds(t *testing.T) {
	client := &fakeClient{
		responses: []string{"", "", validJSON},
		errs:      []error{eris.New("connection reset"), eris.New("connection reset"), nil},
	}
	e := newTestEngine(client)

	result := e.Score(context.Background(), model.BookQuery{Title: "X", Author: "Y"}, richContext())

	assert.Equal(t, model.ScoringOK, result.Status)
	assert.Equal(t, 3, client.calls)
}

func TestScoreTerminalClassification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus model.ScoringStatus
		wantFlag   string
	}{
		{
			name:       "rate limited",
			err:        resilience.NewTransientError(eris.New("too many requests"), 429),
			wantStatus: model.ScoringUnavailable,
			wantFlag:   "rate_limited",
		},
		{
			name:       "rate limit in message",
			err:        eris.New("anthropic: rate limit exceeded"),
			wantStatus: model.ScoringUnavailable,
			wantFlag:   "rate_limited",
		},
		{
			name:       "server error",
			err:        eris.New("anthropic: 500 internal server error"),
			wantStatus: model.ScoringError,
			wantFlag:   "api_error_500",
		},
		{
			name:       "generic failure",
			err:        eris.New("something odd happened"),
			wantStatus: model.ScoringError,
			wantFlag:   "scoring_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{responses: []string{""}, errs: []error{tt.err}}
			e := newTestEngine(client)

			result := e.Score(context.Background(), model.BookQuery{Title: "X"}, richContext())

			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Contains(t, result.Flags, tt.wantFlag)
			assert.Equal(t, testScoringConfig().MaxAttempts, client.calls, "errors retried until attempts exhaust")
		})
	}
}

func TestScoreParseFailureDegradesToDefault(t *testing.T) {
	client := &fakeClient{responses: []string{"not json at all"}}
	e := newTestEngine(client)

	result := e.Score(context.Background(), model.BookQuery{Title: "X"}, richContext())

	require.Equal(t, model.ScoringOK, result.Status)
	assert.Contains(t, result.Flags, "json_parse_failure")
	assert.Equal(t, 50, result.Overall)
	assert.Equal(t, 50, result.Dimensions.Readability)
	assert.Zero(t, result.Confidence)
	assert.Equal(t, testScoringConfig().MaxAttempts, client.calls)
}

func TestScoreParseFailureKeepsLowConfidenceFlags(t *testing.T) {
	client := &fakeClient{responses: []string{"not json at all"}}
	e := newTestEngine(client)

	thin := &model.Context{
		Text:         "Title: Sample Book\n\nA short description.",
		ReviewCount:  1,
		ExcerptCount: 1,
		Source:       model.ContextDescriptionOnly,
	}

	result := e.Score(context.Background(), model.BookQuery{Title: "X"}, thin)

	require.Equal(t, model.ScoringOK, result.Status)
	assert.Contains(t, result.Flags, "json_parse_failure")
	assert.Contains(t, result.Flags, "low_confidence: fewer than 5 review-derived snippets")
	assert.Contains(t, result.Flags, "low_confidence: limited context length")
	assert.Equal(t, 1, result.ReviewCount)
}

func TestScoreReviewCountDistinctFromExcerpts(t *testing.T) {
	client := &fakeClient{responses: []string{validJSON}}
	e := newTestEngine(client)

	// Heavy filtering leaves few excerpts, but ten raw reviews is still
	// enough signal to skip the low-confidence flag.
	bctx := richContext()
	bctx.ReviewCount = 10
	bctx.ExcerptCount = 2

	result := e.Score(context.Background(), model.BookQuery{Title: "X"}, bctx)

	require.Equal(t, model.ScoringOK, result.Status)
	assert.Equal(t, 10, result.ReviewCount)
	assert.NotContains(t, result.Flags, "low_confidence: fewer than 5 review-derived snippets")

	client = &fakeClient{responses: []string{validJSON}}
	e = newTestEngine(client)

	bctx = richContext()
	bctx.ReviewCount = 2
	bctx.ExcerptCount = 10

	result = e.Score(context.Background(), model.BookQuery{Title: "X"}, bctx)

	assert.Equal(t, 2, result.ReviewCount)
	assert.Contains(t, result.Flags, "low_confidence: fewer than 5 review-derived snippets")
}

func TestScoreLowConfidenceFlags(t *testing.T) {
	client := &fakeClient{responses: []string{validJSON}}
	e := newTestEngine(client)

	thin := &model.Context{
		Text:         "Title: Sample Book\n\nA short description.",
		ReviewCount:  1,
		ExcerptCount: 1,
		Source:       model.ContextDescriptionOnly,
	}

	result := e.Score(context.Background(), model.BookQuery{Title: "X"}, thin)

	require.Equal(t, model.ScoringOK, result.Status)
	assert.Contains(t, result.Flags, "low_confidence: fewer than 5 review-derived snippets")
	assert.Contains(t, result.Flags, "low_confidence: limited context length")
}
