package model

import "time"

// BookQuery identifies the book a caller wants scored. It is never persisted.
type BookQuery struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	ISBN   string `json:"isbn,omitempty"`
}

// ReviewExcerpt is a single reader review text from a provider.
type ReviewExcerpt struct {
	Text string `json:"text"`
}

// SourceRecord is one provider's normalized view of a book. Ephemeral,
// produced by a source adapter and consumed by the context assembler.
type SourceRecord struct {
	ID            string          `json:"id,omitempty"`
	Title         string          `json:"title"`
	Authors       []string        `json:"authors"`
	Description   string          `json:"description,omitempty"`
	Genres        []string        `json:"genres,omitempty"`
	ISBN10        string          `json:"isbn10,omitempty"`
	ISBN13        string          `json:"isbn13,omitempty"`
	CoverURL      string          `json:"cover_url,omitempty"`
	AverageRating float64         `json:"average_rating,omitempty"`
	RatingsCount  int             `json:"ratings_count,omitempty"`
	Reviews       []ReviewExcerpt `json:"reviews,omitempty"`
	Source        string          `json:"source"`
}

// HasSignal reports whether the record carries anything the scorer can
// work with. The adapter chain advances when the current adapter has none.
func (r *SourceRecord) HasSignal() bool {
	return r != nil && (r.Description != "" || len(r.Reviews) > 0)
}

// ContextSource labels what evidence went into an assembled context.
type ContextSource string

const (
	ContextDescriptionOnly    ContextSource = "description_only"
	ContextDescriptionRatings ContextSource = "description+ratings"
	ContextDescriptionReviews ContextSource = "description+reviews"
)

// Context is the assembled text blob handed to the scoring engine,
// one per scoring attempt.
type Context struct {
	Text                 string        `json:"context_text"`
	QualityExcerpts      []string      `json:"quality_excerpts"`
	ReviewCount          int           `json:"review_count"`
	ExcerptCount         int           `json:"excerpt_count"`
	Source               ContextSource `json:"context_source"`
	RatingsCountEstimate int           `json:"ratings_count_estimate"`
	AverageRating        float64       `json:"average_rating,omitempty"`

	// Descriptive metadata carried through to the upsert.
	Description string   `json:"description,omitempty"`
	CoverURL    string   `json:"cover_url,omitempty"`
	ISBN13      string   `json:"isbn13,omitempty"`
	Genres      []string `json:"genres,omitempty"`
}

// ScoringStatus is the terminal state of a scoring attempt.
type ScoringStatus string

const (
	ScoringOK          ScoringStatus = "ok"
	ScoringUnavailable ScoringStatus = "temporarily_unavailable"
	ScoringError       ScoringStatus = "error"
)

// DimensionScores holds the five independent 0-100 rubric dimensions.
type DimensionScores struct {
	Readability int `json:"readability"`
	Grammar     int `json:"grammar"`
	Polish      int `json:"polish"`
	Prose       int `json:"prose"`
	Pacing      int `json:"pacing"`
}

// ScoreResult is the structured outcome of one scoring run. The engine
// always returns one; failures are expressed through Status and Flags,
// never as errors crossing the component boundary.
type ScoreResult struct {
	Dimensions  DimensionScores `json:"scores"`
	Overall     int             `json:"overall_score"`
	Confidence  int             `json:"confidence"`
	Flags       []string        `json:"flags,omitempty"`
	Status      ScoringStatus   `json:"scoring_status"`
	ReviewCount int             `json:"review_count"`
}

// ConfidenceLabel buckets the numeric confidence the way the books table
// stores it.
func (r *ScoreResult) ConfidenceLabel() string {
	switch {
	case r.Confidence >= 70:
		return "high"
	case r.Confidence >= 40:
		return "medium"
	default:
		return "low"
	}
}

// CachedBook is the persistent record keyed by the exact (title, author)
// pair. Scoring fields are refreshed on every upsert; curated fields are
// filled only when empty.
type CachedBook struct {
	ID             int64           `json:"id"`
	Title          string          `json:"title"`
	Author         string          `json:"author"`
	ISBN           string          `json:"isbn,omitempty"`
	ISBN13         string          `json:"isbn13,omitempty"`
	Synopsis       string          `json:"synopsis,omitempty"`
	CoverURL       string          `json:"cover_url,omitempty"`
	Dimensions     DimensionScores `json:"scores"`
	Overall        int             `json:"overall_score"`
	Confidence     string          `json:"confidence_level"`
	VoteCount      int             `json:"vote_count"`
	SpiceLevel     int             `json:"spice_level"`
	Warnings       string          `json:"official_warnings,omitempty"`
	ScoringStatus  ScoringStatus   `json:"scoring_status"`
	ContextSource  ContextSource   `json:"context_source"`
	FirstScoredAt  time.Time       `json:"first_scored_at"`
	LastScoredAt   time.Time       `json:"last_scored_at"`
	TimesRequested int             `json:"times_requested"`
}
