package bookctx

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/BeyondDrewTV/stylescope/internal/model"
)

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

// sourceLabels maps adapter names to the heading shown in the context text.
var sourceLabels = map[string]string{
	"hardcover":    "Hardcover",
	"google_books": "Google Books",
	"open_library": "Open Library",
}

// Assembler merges adapter records into the single context blob the
// scoring engine consumes.
type Assembler struct {
	filter *Filter
}

// NewAssembler builds an assembler over the given excerpt filter.
func NewAssembler(filter *Filter) *Assembler {
	return &Assembler{filter: filter}
}

// Assemble merges records in priority order: the first record's fields win
// wherever both carry a value, and reviews pool across all of them.
func (a *Assembler) Assemble(q model.BookQuery, records []*model.SourceRecord) *model.Context {
	merged := mergeRecords(records)

	reviews := make([]string, 0, len(merged.Reviews))
	for _, r := range merged.Reviews {
		if t := strings.TrimSpace(r.Text); t != "" {
			reviews = append(reviews, t)
		}
	}

	excerpts := a.filter.QualityExcerpts(reviews)
	if len(excerpts) < a.filter.cfg.BackfillMin && len(reviews) > 0 {
		zap.L().Info("bookctx: thin quality yield, backfilling",
			zap.Int("quality_excerpts", len(excerpts)),
			zap.Int("total_reviews", len(reviews)),
		)
		excerpts = a.filter.Backfill(excerpts, reviews)
	}

	ctx := &model.Context{
		QualityExcerpts:      excerpts,
		ReviewCount:          len(reviews),
		ExcerptCount:         len(excerpts),
		RatingsCountEstimate: merged.RatingsCount,
		AverageRating:        merged.AverageRating,
		Description:          merged.Description,
		CoverURL:             merged.CoverURL,
		ISBN13:               merged.ISBN13,
		Genres:               merged.Genres,
	}

	switch {
	case len(excerpts) > 0:
		ctx.Source = model.ContextDescriptionReviews
	case merged.RatingsCount > 0 || merged.AverageRating > 0:
		ctx.Source = model.ContextDescriptionRatings
	default:
		ctx.Source = model.ContextDescriptionOnly
	}

	ctx.Text = buildText(q, merged, excerpts)

	zap.L().Info("bookctx: context assembled",
		zap.String("title", q.Title),
		zap.String("context_source", string(ctx.Source)),
		zap.Int("review_count", ctx.ReviewCount),
		zap.Int("excerpt_count", ctx.ExcerptCount),
		zap.Int("description_chars", len(merged.Description)),
	)
	return ctx
}

// mergeRecords folds the chain's records into one, earlier records taking
// precedence field by field.
func mergeRecords(records []*model.SourceRecord) *model.SourceRecord {
	merged := &model.SourceRecord{}
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if merged.Source == "" {
			merged.Source = rec.Source
		}
		if merged.Title == "" {
			merged.Title = rec.Title
		}
		if len(merged.Authors) == 0 {
			merged.Authors = rec.Authors
		}
		if merged.Description == "" {
			merged.Description = rec.Description
		}
		if len(merged.Genres) == 0 {
			merged.Genres = rec.Genres
		}
		if merged.ISBN10 == "" {
			merged.ISBN10 = rec.ISBN10
		}
		if merged.ISBN13 == "" {
			merged.ISBN13 = rec.ISBN13
		}
		if merged.CoverURL == "" {
			merged.CoverURL = rec.CoverURL
		}
		if merged.AverageRating == 0 {
			merged.AverageRating = rec.AverageRating
		}
		if merged.RatingsCount == 0 {
			merged.RatingsCount = rec.RatingsCount
		}
		merged.Reviews = append(merged.Reviews, rec.Reviews...)
	}
	return merged
}

// buildText lays out the context in a fixed order. The description leads
// because the model weights earlier content more heavily.
func buildText(q model.BookQuery, merged *model.SourceRecord, excerpts []string) string {
	parts := []string{
		fmt.Sprintf("Title: %s", q.Title),
		fmt.Sprintf("Author: %s", q.Author),
	}

	if desc := strings.TrimSpace(htmlTagRe.ReplaceAllString(merged.Description, "")); desc != "" {
		label := sourceLabels[merged.Source]
		if label == "" {
			label = merged.Source
		}
		parts = append(parts, fmt.Sprintf("\n[Book Description (%s)]\n%s", label, desc))
	}

	if len(merged.Genres) > 0 {
		genres := merged.Genres
		if len(genres) > 8 {
			genres = genres[:8]
		}
		parts = append(parts, fmt.Sprintf("Genres: %s", strings.Join(genres, ", ")))
	}

	if merged.AverageRating > 0 {
		count := "?"
		if merged.RatingsCount > 0 {
			count = fmt.Sprintf("%d", merged.RatingsCount)
		}
		parts = append(parts, fmt.Sprintf("Community Rating: %.2f/5 (%s ratings)", merged.AverageRating, count))
	}

	if len(excerpts) > 0 {
		parts = append(parts, fmt.Sprintf("\n[Reader Reviews — %d quality-focused excerpts]", len(excerpts)))
		for i, excerpt := range excerpts {
			parts = append(parts, fmt.Sprintf("%d. %q", i+1, excerpt))
		}
	} else {
		parts = append(parts,
			"\n(No reader reviews available — scoring based on "+
				"book description and metadata only. Low confidence expected.)")
	}

	return strings.Join(parts, "\n\n")
}
