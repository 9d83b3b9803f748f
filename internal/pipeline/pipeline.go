// Package pipeline orchestrates a full scoring run: resolve the book
// against the provider chain, assemble the scoring context, score it,
// and persist the result.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/BeyondDrewTV/stylescope/internal/model"
	"github.com/BeyondDrewTV/stylescope/internal/store"
)

// Resolver resolves a book query against the provider fallback chain.
type Resolver interface {
	Resolve(ctx context.Context, q model.BookQuery) []*model.SourceRecord
}

// Assembler merges provider records into a scoring context.
type Assembler interface {
	Assemble(q model.BookQuery, records []*model.SourceRecord) *model.Context
}

// Scorer produces a structured score for an assembled context.
type Scorer interface {
	Score(ctx context.Context, q model.BookQuery, bctx *model.Context) *model.ScoreResult
}

// Pipeline wires the resolve, assemble, score, and persist stages.
type Pipeline struct {
	resolver  Resolver
	assembler Assembler
	scorer    Scorer
	store     store.Store
}

// New creates a pipeline with all dependencies.
func New(resolver Resolver, assembler Assembler, scorer Scorer, st store.Store) *Pipeline {
	return &Pipeline{
		resolver:  resolver,
		assembler: assembler,
		scorer:    scorer,
		store:     st,
	}
}

// ScoreOptions tunes a single run.
type ScoreOptions struct {
	// IncrementRequested is true for user-triggered requests. Batch
	// rescoring leaves it false so times_requested stays a demand signal.
	IncrementRequested bool
}

// ScoreBook runs the full pipeline for one book. A persistence failure is
// logged and does not discard the computed score; scoring failures surface
// through the result's Status, never as the error return.
func (p *Pipeline) ScoreBook(ctx context.Context, q model.BookQuery, opts ScoreOptions) (*model.JobResult, error) {
	if q.Title == "" || q.Author == "" {
		return nil, eris.New("pipeline: title and author are required")
	}

	log := zap.L().With(zap.String("title", q.Title), zap.String("author", q.Author))
	log.Info("pipeline: scoring book")

	records := p.resolver.Resolve(ctx, q)
	bctx := p.assembler.Assemble(q, records)

	result := p.scorer.Score(ctx, q, bctx)

	out := &model.JobResult{
		Score:   result,
		Context: bctx,
	}

	// Only successful scores are cached; transient and hard failures must
	// not shadow a prior good record.
	if result.Status != model.ScoringOK {
		log.Warn("pipeline: scoring did not complete",
			zap.String("status", string(result.Status)),
			zap.Strings("flags", result.Flags))
		return out, nil
	}

	id, err := p.store.UpsertScoredBook(ctx, store.UpsertParams{
		Query:              q,
		Result:             result,
		Context:            bctx,
		IncrementRequested: opts.IncrementRequested,
	})
	if err != nil {
		log.Error("pipeline: persist failed, returning unsaved score", zap.Error(err))
		return out, nil
	}
	out.BookID = id

	log.Info("pipeline: book scored and saved",
		zap.Int64("book_id", id),
		zap.Int("overall", result.Overall),
		zap.String("context_source", string(bctx.Source)))
	return out, nil
}
