package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/BeyondDrewTV/stylescope/internal/bookctx"
	"github.com/BeyondDrewTV/stylescope/internal/pipeline"
	"github.com/BeyondDrewTV/stylescope/internal/quota"
	"github.com/BeyondDrewTV/stylescope/internal/scorer"
	"github.com/BeyondDrewTV/stylescope/internal/source"
	"github.com/BeyondDrewTV/stylescope/internal/store"
	anthropicpkg "github.com/BeyondDrewTV/stylescope/pkg/anthropic"
)

// scopeEnv holds the initialized store, pipeline, runner, and quota guard
// shared by the serve/score/batch commands.
type scopeEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Runner   *pipeline.Runner
	Guard    *quota.Guard
}

// Close releases resources held by the environment.
func (e *scopeEnv) Close() {
	if e.Runner != nil {
		e.Runner.Wait()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv opens the store, runs migrations, and wires the source chain,
// assembler, scoring engine, and job runner. Callers should defer
// env.Close().
func initEnv(ctx context.Context) (*scopeEnv, error) {
	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	vocab, err := bookctx.LoadVocabulary(cfg.Context.VocabularyPath)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	assembler := bookctx.NewAssembler(bookctx.NewFilter(cfg.Context, vocab))

	chain := source.NewChain(
		source.NewHardcover(cfg.Hardcover),
		source.NewGoogleBooks(cfg.GoogleBooks),
		source.NewOpenLibrary(cfg.OpenLibrary),
	)

	engine := scorer.NewEngine(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic, cfg.Scoring)

	p := pipeline.New(chain, assembler, engine, st)
	guard := quota.NewGuard(st, cfg.Quota)

	return &scopeEnv{
		Store:    st,
		Pipeline: p,
		Runner:   pipeline.NewRunner(p, st, guard),
		Guard:    guard,
	}, nil
}
