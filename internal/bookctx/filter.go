package bookctx

import (
	"strings"
	"unicode/utf8"

	"github.com/BeyondDrewTV/stylescope/internal/config"
)

// Filter selects the review excerpts worth showing the scorer.
type Filter struct {
	cfg   config.ContextConfig
	vocab *Vocabulary
}

// NewFilter builds a filter with the given bounds and vocabulary.
func NewFilter(cfg config.ContextConfig, vocab *Vocabulary) *Filter {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	return &Filter{cfg: cfg, vocab: vocab}
}

// QualityExcerpts keeps reviews that mention writing craft, truncated to
// the configured length and deduplicated by lowercase prefix.
func (f *Filter) QualityExcerpts(reviews []string) []string {
	excerpts := make([]string, 0, len(reviews))
	seen := make(map[string]struct{})

	for _, text := range reviews {
		text = strings.TrimSpace(text)
		if len(text) < f.cfg.MinExcerptChars {
			continue
		}
		if !f.vocab.Matches(text) {
			continue
		}

		text = f.truncate(text)

		prefix := dedupKey(text)
		if _, dup := seen[prefix]; dup {
			continue
		}
		seen[prefix] = struct{}{}

		excerpts = append(excerpts, text)
		if len(excerpts) >= f.cfg.MaxExcerpts {
			break
		}
	}
	return excerpts
}

// Backfill pads a thin excerpt list with any long-enough review when the
// craft vocabulary happened not to appear, so a book with real reviews is
// never scored on zero textual signal.
func (f *Filter) Backfill(excerpts, reviews []string) []string {
	if len(excerpts) >= f.cfg.BackfillMin || len(reviews) == 0 {
		return excerpts
	}

	seen := make(map[string]struct{}, len(excerpts))
	for _, e := range excerpts {
		seen[dedupKey(e)] = struct{}{}
	}

	for _, text := range reviews {
		text = strings.TrimSpace(text)
		if len(text) < f.cfg.MinExcerptChars {
			continue
		}
		prefix := dedupKey(text)
		if _, dup := seen[prefix]; dup {
			continue
		}
		seen[prefix] = struct{}{}

		excerpts = append(excerpts, f.truncate(text))
		if len(excerpts) >= f.cfg.BackfillMax {
			break
		}
	}
	return excerpts
}

// truncate cuts at the last word boundary before the max length and marks
// the cut with an ellipsis.
func (f *Filter) truncate(text string) string {
	if len(text) <= f.cfg.MaxExcerptChars {
		return text
	}
	cut := text[:f.cfg.MaxExcerptChars]
	// The byte slice may have split a multi-byte rune at the end.
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}

func dedupKey(text string) string {
	if len(text) > 60 {
		text = text[:60]
	}
	return strings.ToLower(text)
}
