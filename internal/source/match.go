package source

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/BeyondDrewTV/stylescope/internal/model"
)

// Title match tiers. Exact beats prefix beats substring.
const (
	titleExact     = 3
	titlePrefix    = 2
	titleSubstring = 1

	authorFullBonus = 3
	authorLastBonus = 2
)

var (
	parenSuffix = regexp.MustCompile(`\s*\(.*?\)\s*`)
	multiSpace  = regexp.MustCompile(`\s+`)

	stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// NormalizeTitle lowercases, strips parenthetical series suffixes
// ("Paper Hearts (Hearts, #2)" -> "paper hearts"), removes diacritics,
// and collapses whitespace.
func NormalizeTitle(s string) string {
	t := strings.ToLower(strings.TrimSpace(s))
	if folded, _, err := transform.String(stripMarks, t); err == nil {
		t = folded
	}
	t = parenSuffix.ReplaceAllString(t, " ")
	return strings.TrimSpace(multiSpace.ReplaceAllString(t, " "))
}

// TitleScore rates how well a candidate title matches the query title.
func TitleScore(queryTitle, candidateTitle string) int {
	qt := NormalizeTitle(queryTitle)
	ct := NormalizeTitle(candidateTitle)
	switch {
	case qt == "" || ct == "":
		return 0
	case qt == ct:
		return titleExact
	case strings.HasPrefix(ct, qt) || strings.HasPrefix(qt, ct):
		return titlePrefix
	case strings.Contains(ct, qt) || strings.Contains(qt, ct):
		return titleSubstring
	default:
		return 0
	}
}

// AuthorMatch checks the query author against a candidate's author list.
// Full-name containment scores higher than a word-boundary match on the
// query's last-name token. The word boundary prevents a short name from
// matching inside a longer unrelated one ("Smith" inside "Smithson").
func AuthorMatch(queryAuthor string, candidateAuthors []string) (matched bool, bonus int) {
	qa := NormalizeTitle(queryAuthor)
	if qa == "" {
		return false, 0
	}

	joined := make([]string, 0, len(candidateAuthors))
	for _, a := range candidateAuthors {
		joined = append(joined, NormalizeTitle(a))
	}

	for _, ca := range joined {
		if ca == "" {
			continue
		}
		if containsName(ca, qa) || containsName(qa, ca) {
			return true, authorFullBonus
		}
	}

	parts := strings.Fields(qa)
	if len(parts) == 0 {
		return false, 0
	}
	last := parts[len(parts)-1]
	boundary := regexp.MustCompile(`\b` + regexp.QuoteMeta(last) + `\b`)
	if boundary.MatchString(strings.Join(joined, " ")) {
		return true, authorLastBonus
	}

	return false, 0
}

// containsName reports whether needle appears in haystack on word
// boundaries. Bare substring containment would let a short name match
// inside a longer unrelated one in either direction.
func containsName(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	boundary := regexp.MustCompile(`\b` + regexp.QuoteMeta(needle) + `\b`)
	return boundary.MatchString(haystack)
}

// compositeScore combines title, author, and signal bonuses for ranking.
func compositeScore(q model.BookQuery, rec *model.SourceRecord) float64 {
	score := float64(TitleScore(q.Title, rec.Title))

	if _, bonus := AuthorMatch(q.Author, rec.Authors); bonus > 0 {
		score += float64(bonus)
	}

	// Prefer candidates that actually carry a description.
	if rec.Description != "" {
		score++
	}

	// Popularity signal, capped so it can never outweigh a real match.
	ratings := float64(rec.RatingsCount) / 1000
	if ratings > 1 {
		ratings = 1
	}
	score += ratings

	return score
}

// PickBest ranks candidates against the query and returns the winner,
// or nil when no candidate is acceptable. Ties keep first-seen order.
// When the query supplied an author and the winner shares no author
// overlap at all, the match is discarded rather than returning a wrong
// book.
func PickBest(q model.BookQuery, candidates []*model.SourceRecord) *model.SourceRecord {
	var best *model.SourceRecord
	bestScore := -1.0

	for _, c := range candidates {
		if c == nil {
			continue
		}
		if s := compositeScore(q, c); s > bestScore {
			bestScore = s
			best = c
		}
	}

	if best == nil {
		return nil
	}

	if strings.TrimSpace(q.Author) != "" {
		if matched, _ := AuthorMatch(q.Author, best.Authors); !matched {
			return nil
		}
	}

	return best
}
