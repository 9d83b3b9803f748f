package bookctx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BeyondDrewTV/stylescope/internal/model"
)

func TestAssembleContextSource(t *testing.T) {
	a := NewAssembler(NewFilter(testContextConfig(), nil))
	q := model.BookQuery{Title: "Sample Book", Author: "A. Author"}

	t.Run("description only", func(t *testing.T) {
		ctx := a.Assemble(q, []*model.SourceRecord{
			{Source: "google_books", Title: "Sample Book", Description: "A quiet story."},
		})
		assert.Equal(t, model.ContextDescriptionOnly, ctx.Source)
		assert.Equal(t, 0, ctx.ReviewCount)
		assert.Equal(t, 0, ctx.ExcerptCount)
	})

	t.Run("description plus ratings", func(t *testing.T) {
		ctx := a.Assemble(q, []*model.SourceRecord{
			{Source: "hardcover", Description: "A quiet story.", AverageRating: 4.1, RatingsCount: 2300},
		})
		assert.Equal(t, model.ContextDescriptionRatings, ctx.Source)
	})

	t.Run("description plus reviews", func(t *testing.T) {
		ctx := a.Assemble(q, []*model.SourceRecord{
			{Source: "hardcover", Description: "A quiet story.", Reviews: []model.ReviewExcerpt{
				{Text: "The prose in this book is absolutely gorgeous, every sentence flows."},
			}},
		})
		assert.Equal(t, model.ContextDescriptionReviews, ctx.Source)
		assert.Equal(t, 1, ctx.ExcerptCount)
	})

	t.Run("never reviews when zero excerpts", func(t *testing.T) {
		ctx := a.Assemble(q, []*model.SourceRecord{
			{Source: "hardcover", Description: "A quiet story.", AverageRating: 4.1},
		})
		assert.NotEqual(t, model.ContextDescriptionReviews, ctx.Source)
	})
}

func TestAssembleMergePrecedence(t *testing.T) {
	a := NewAssembler(NewFilter(testContextConfig(), nil))
	q := model.BookQuery{Title: "Sample Book", Author: "A. Author"}

	primary := &model.SourceRecord{
		Source:      "hardcover",
		Description: "Primary description.",
		Genres:      []string{"Fantasy"},
		Reviews: []model.ReviewExcerpt{
			{Text: "The prose in this book is absolutely gorgeous, every sentence flows."},
		},
	}
	secondary := &model.SourceRecord{
		Source:      "google_books",
		Description: "Secondary description.",
		CoverURL:    "https://example.com/cover.jpg",
		ISBN13:      "9780000000001",
	}

	ctx := a.Assemble(q, []*model.SourceRecord{primary, secondary})

	assert.Contains(t, ctx.Text, "Primary description.")
	assert.NotContains(t, ctx.Text, "Secondary description.")
	assert.Equal(t, "https://example.com/cover.jpg", ctx.CoverURL, "gap fields fill from later records")
	assert.Equal(t, "9780000000001", ctx.ISBN13)
	assert.Contains(t, ctx.Text, "[Book Description (Hardcover)]")
}

func TestAssembleTextLayout(t *testing.T) {
	a := NewAssembler(NewFilter(testContextConfig(), nil))
	q := model.BookQuery{Title: "Sample Book", Author: "A. Author"}

	ctx := a.Assemble(q, []*model.SourceRecord{{
		Source:        "hardcover",
		Description:   "<p>An <b>annotated</b> story.</p>",
		Genres:        []string{"Fantasy", "Romance"},
		AverageRating: 4.25,
		RatingsCount:  1200,
		Reviews: []model.ReviewExcerpt{
			{Text: "The writing style is clean and the pacing never drags at all here."},
		},
	}})

	require.True(t, strings.HasPrefix(ctx.Text, "Title: Sample Book"))
	assert.Contains(t, ctx.Text, "Author: A. Author")
	assert.Contains(t, ctx.Text, "An annotated story.", "HTML tags stripped")
	assert.Contains(t, ctx.Text, "Genres: Fantasy, Romance")
	assert.Contains(t, ctx.Text, "Community Rating: 4.25/5 (1200 ratings)")
	assert.Contains(t, ctx.Text, "1. \"The writing style is clean and the pacing never drags at all here.\"")

	descIdx := strings.Index(ctx.Text, "[Book Description")
	reviewIdx := strings.Index(ctx.Text, "[Reader Reviews")
	assert.Less(t, descIdx, reviewIdx, "description precedes reviews")
}

func TestAssembleNoReviewsNotice(t *testing.T) {
	a := NewAssembler(NewFilter(testContextConfig(), nil))
	ctx := a.Assemble(model.BookQuery{Title: "Sample Book", Author: "A. Author"}, []*model.SourceRecord{
		{Source: "google_books", Description: "Just a description."},
	})
	assert.Contains(t, ctx.Text, "No reader reviews available")
}
