package scorer

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BeyondDrewTV/stylescope/internal/config"
	"github.com/BeyondDrewTV/stylescope/internal/model"
	"github.com/BeyondDrewTV/stylescope/internal/resilience"
	"github.com/BeyondDrewTV/stylescope/pkg/anthropic"
)

// Engine scores a book's writing quality from its assembled context. It
// always returns a structured result; failures surface through Status and
// Flags, never as errors.
type Engine struct {
	client anthropic.Client
	aiCfg  config.AnthropicConfig
	cfg    config.ScoringConfig

	// sleep is injectable so tests can assert retry behavior without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures the engine.
type Option func(*Engine)

// WithSleep overrides the retry sleep function (for testing).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		e.sleep = fn
	}
}

// NewEngine creates a scoring engine over the given LLM client.
func NewEngine(client anthropic.Client, aiCfg config.AnthropicConfig, cfg config.ScoringConfig, opts ...Option) *Engine {
	e := &Engine{
		client: client,
		aiCfg:  aiCfg,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score runs the full attempt state machine: call the model, parse, retry
// on any failure with backoff, then classify the terminal state.
func (e *Engine) Score(ctx context.Context, q model.BookQuery, bctx *model.Context) *model.ScoreResult {
	reviewCount := 0
	if bctx != nil {
		reviewCount = bctx.ReviewCount
	}

	// Configuration and empty-context failures are terminal immediately,
	// no point burning retries on them.
	if e.aiCfg.Key == "" {
		zap.L().Error("scorer: no API key configured", zap.String("title", q.Title))
		return failedResult(model.ScoringError, []string{"missing_api_key"}, reviewCount)
	}
	if bctx == nil || strings.TrimSpace(bctx.Text) == "" {
		zap.L().Warn("scorer: empty context, cannot score", zap.String("title", q.Title))
		return failedResult(model.ScoringError, []string{"no_context_found"}, reviewCount)
	}

	prompt := buildUserPrompt(q, bctx)

	retryCfg := resilience.RetryConfig{
		MaxAttempts:    e.cfg.MaxAttempts,
		InitialBackoff: time.Duration(e.cfg.InitialBackoffSecs * float64(time.Second)),
		ShouldRetry:    func(error) bool { return true },
		OnRetry:        resilience.RetryLogger("anthropic", "score_book"),
		Sleep:          e.sleep,
	}

	payload, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*llmPayload, error) {
		return e.attempt(ctx, prompt)
	})
	if err != nil {
		return e.classifyFailure(q, err, bctx)
	}

	result := &model.ScoreResult{
		Dimensions: model.DimensionScores{
			Readability: payload.Scores["readability"],
			Grammar:     payload.Scores["grammar"],
			Polish:      payload.Scores["polish"],
			Prose:       payload.Scores["prose"],
			Pacing:      payload.Scores["pacing"],
		},
		Confidence:  payload.Confidence,
		Flags:       payload.Flags,
		Status:      model.ScoringOK,
		ReviewCount: reviewCount,
	}
	result.Overall = e.computeOverall(result.Dimensions)
	e.annotateLowConfidence(result, bctx)

	zap.L().Info("scorer: book scored",
		zap.String("title", q.Title),
		zap.Int("overall", result.Overall),
		zap.Int("readability", result.Dimensions.Readability),
		zap.Int("confidence", result.Confidence),
	)
	return result
}

// attempt performs one model call and parse.
func (e *Engine) attempt(ctx context.Context, prompt string) (*llmPayload, error) {
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.aiCfg.Model,
		MaxTokens: e.aiCfg.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(rubricSystemText),
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, err
	}

	resp.Usage.LogCost(e.aiCfg.Model, "score")

	return parseResponse(resp.Text())
}

// computeOverall applies the weighted formula and the readability cap.
func (e *Engine) computeOverall(d model.DimensionScores) int {
	raw := float64(d.Readability)*e.cfg.ReadabilityWeight +
		float64(d.Grammar+d.Polish+d.Prose+d.Pacing)*e.cfg.SecondaryWeight
	overall := int(raw + 0.5)

	if d.Readability < e.cfg.ReadabilityFloor && overall > e.cfg.CappedOverall {
		zap.L().Info("scorer: readability cap applied",
			zap.Int("weighted", overall),
			zap.Int("readability", d.Readability),
		)
		overall = e.cfg.CappedOverall
	}
	return overall
}

// annotateLowConfidence appends the thin-signal flags. The review threshold
// keys on the raw review count, not the filtered excerpt count.
func (e *Engine) annotateLowConfidence(result *model.ScoreResult, bctx *model.Context) {
	if result.ReviewCount < e.cfg.MinReviewCount {
		result.Flags = append(result.Flags, "low_confidence: fewer than 5 review-derived snippets")
	}
	if len(bctx.Text) < e.cfg.MinContextChars {
		result.Flags = append(result.Flags, "low_confidence: limited context length")
	}
}

// classifyFailure maps the final error after retries exhaust to a terminal
// status and flag.
func (e *Engine) classifyFailure(q model.BookQuery, err error, bctx *model.Context) *model.ScoreResult {
	reviewCount := bctx.ReviewCount
	msg := strings.ToLower(err.Error())

	switch {
	case resilience.IsRateLimited(err):
		zap.L().Error("scorer: rate limited, scoring unavailable",
			zap.String("title", q.Title), zap.Error(err))
		return failedResult(model.ScoringUnavailable, []string{"rate_limited"}, reviewCount)

	case strings.Contains(msg, "500") || strings.Contains(msg, "internal server error"):
		zap.L().Error("scorer: upstream server error",
			zap.String("title", q.Title), zap.Error(err))
		return failedResult(model.ScoringError, []string{"api_error_500"}, reviewCount)

	case strings.Contains(msg, "json") || strings.Contains(msg, "parse"):
		// Degrade to a neutral default rather than surfacing an error:
		// the caller always gets a numeric score to work with.
		zap.L().Warn("scorer: unparseable responses, returning neutral default",
			zap.String("title", q.Title), zap.Error(err))
		result := &model.ScoreResult{
			Dimensions: model.DimensionScores{
				Readability: 50, Grammar: 50, Polish: 50, Prose: 50, Pacing: 50,
			},
			Overall:     50,
			Confidence:  0,
			Flags:       []string{"json_parse_failure"},
			Status:      model.ScoringOK,
			ReviewCount: reviewCount,
		}
		e.annotateLowConfidence(result, bctx)
		return result

	default:
		zap.L().Error("scorer: scoring failed",
			zap.String("title", q.Title), zap.Error(err))
		return failedResult(model.ScoringError, []string{"scoring_error"}, reviewCount)
	}
}

func failedResult(status model.ScoringStatus, flags []string, reviewCount int) *model.ScoreResult {
	return &model.ScoreResult{
		Status:      status,
		Flags:       flags,
		Confidence:  0,
		ReviewCount: reviewCount,
	}
}
