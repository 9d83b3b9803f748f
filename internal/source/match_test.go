package source

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BeyondDrewTV/stylescope/internal/model"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase and trim", "  The Remains of the Day  ", "the remains of the day"},
		{"series suffix stripped", "Paper Hearts (Hearts, #2)", "paper hearts"},
		{"diacritics folded", "Café Américain", "cafe americain"},
		{"whitespace collapsed", "Dune    Messiah", "dune messiah"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTitle(tt.in))
		})
	}
}

func TestTitleScore(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		candidate string
		want      int
	}{
		{"exact", "Dune", "Dune", 3},
		{"exact after normalization", "Paper Hearts", "Paper Hearts (Hearts, #2)", 3},
		{"prefix", "Dune", "Dune Messiah", 2},
		{"substring", "Remains of the Day", "The Remains of the Day", 1},
		{"no match", "Dune", "Hyperion", 0},
		{"empty query", "", "Dune", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TitleScore(tt.query, tt.candidate))
		})
	}
}

func TestAuthorMatch(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		candidates []string
		matched    bool
		bonus      int
	}{
		{"full name", "Jane Smith", []string{"Jane Smith"}, true, 3},
		{"full name within longer", "Jane Smith", []string{"Jane Smith Jr."}, true, 3},
		{"last name only", "Jane Smith", []string{"J. K. Smith"}, true, 2},
		{"last name inside longer word rejected", "Jane Smith", []string{"Robert Smithson"}, false, 0},
		{"candidate fragment inside query rejected", "Jane Smithson", []string{"Son"}, false, 0},
		{"candidate as whole word inside query", "Jane van Smith", []string{"Smith"}, true, 3},
		{"no overlap", "Jane Smith", []string{"Frank Herbert"}, false, 0},
		{"empty query", "", []string{"Frank Herbert"}, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matched, bonus := AuthorMatch(tt.query, tt.candidates)
			assert.Equal(t, tt.matched, matched)
			assert.Equal(t, tt.bonus, bonus)
		})
	}
}

func TestPickBestPrefersStrongerMatch(t *testing.T) {
	q := model.BookQuery{Title: "Dune", Author: "Frank Herbert"}
	weak := &model.SourceRecord{Title: "Dune Messiah", Authors: []string{"Frank Herbert"}}
	strong := &model.SourceRecord{Title: "Dune", Authors: []string{"Frank Herbert"}, Description: "Arrakis."}

	got := PickBest(q, []*model.SourceRecord{weak, strong})
	assert.Same(t, strong, got)
}

func TestPickBestTieKeepsFirstSeen(t *testing.T) {
	q := model.BookQuery{Title: "Dune", Author: "Frank Herbert"}
	first := &model.SourceRecord{Title: "Dune", Authors: []string{"Frank Herbert"}}
	second := &model.SourceRecord{Title: "Dune", Authors: []string{"Frank Herbert"}}

	got := PickBest(q, []*model.SourceRecord{first, second})
	assert.Same(t, first, got)
}

func TestPickBestRejectsAuthorMismatch(t *testing.T) {
	q := model.BookQuery{Title: "The Signal", Author: "Jane Smith"}
	candidates := []*model.SourceRecord{
		{Title: "The Signal", Authors: []string{"Robert Smithson"}, Description: "Not hers."},
	}

	assert.Nil(t, PickBest(q, candidates))
}

func TestPickBestNoAuthorQueryKeepsWinner(t *testing.T) {
	q := model.BookQuery{Title: "The Signal"}
	candidate := &model.SourceRecord{Title: "The Signal", Authors: []string{"Anyone"}}

	assert.Same(t, candidate, PickBest(q, []*model.SourceRecord{candidate}))
}

func TestPickBestPopularityCapped(t *testing.T) {
	q := model.BookQuery{Title: "Dune", Author: "Frank Herbert"}
	// A wrong-title candidate with huge ratings must not beat a real match.
	popular := &model.SourceRecord{Title: "Hyperion", Authors: []string{"Frank Herbert"}, RatingsCount: 900000}
	right := &model.SourceRecord{Title: "Dune", Authors: []string{"Frank Herbert"}}

	got := PickBest(q, []*model.SourceRecord{popular, right})
	assert.Same(t, right, got)
}

func TestPickBestEmpty(t *testing.T) {
	assert.Nil(t, PickBest(model.BookQuery{Title: "Dune"}, nil))
	assert.Nil(t, PickBest(model.BookQuery{Title: "Dune"}, []*model.SourceRecord{nil}))
}
