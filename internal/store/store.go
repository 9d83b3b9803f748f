package store

import (
	"context"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/BeyondDrewTV/stylescope/internal/config"
	"github.com/BeyondDrewTV/stylescope/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// UpsertParams carries everything a completed scoring run persists.
type UpsertParams struct {
	Query   model.BookQuery
	Result  *model.ScoreResult
	Context *model.Context

	// OfficialWarnings is an optional JSON document of content warnings.
	OfficialWarnings string
	SpiceLevel       int

	// IncrementRequested is true only for genuine user-triggered requests,
	// never for batch rescoring.
	IncrementRequested bool
}

// Store defines the persistence interface for the scoring pipeline.
type Store interface {
	// Books
	UpsertScoredBook(ctx context.Context, p UpsertParams) (int64, error)
	GetBook(ctx context.Context, title, author string) (*model.CachedBook, error)

	// Jobs
	CreateJob(ctx context.Context, q model.BookQuery, identity string) (*model.Job, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus, result *model.JobResult, errorMessage string) error

	// Usage counters
	CheckAndIncrementUsage(ctx context.Context, identity, month string, cap int) (bool, int, error)
	GetUsage(ctx context.Context, identity, month string) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// New opens the store named by the config, wrapped in the in-process read
// cache when a cache size is configured.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		inner Store
		err   error
	)
	switch cfg.Driver {
	case "postgres":
		inner, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	case "", "sqlite":
		inner, err = NewSQLite(cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		return NewCached(inner, cfg.CacheSize)
	}
	return inner, nil
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// searchKey produces a lowercase, whitespace-collapsed key for fuzzy
// lookup. It is stored alongside but is not the unique key; that stays
// the exact (title, author) pair.
func searchKey(title, author string) string {
	combined := strings.ToLower(strings.TrimSpace(title)) + " " + strings.ToLower(strings.TrimSpace(author))
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(combined, " "))
}

// persistedStatus derives the stored scoring_status label. A technically
// successful score with very low confidence is labeled low_confidence.
func persistedStatus(r *model.ScoreResult) string {
	status := string(r.Status)
	if r.Status == model.ScoringOK && r.Confidence < 40 {
		status = "low_confidence"
	}
	return status
}

// voteCountProxy prefers the provider ratings count, falling back to the
// review count when no rating signal exists.
func voteCountProxy(c *model.Context) int {
	if c == nil {
		return 0
	}
	if c.RatingsCountEstimate > 0 {
		return c.RatingsCountEstimate
	}
	return c.ReviewCount
}

const maxSynopsisChars = 4000

func synopsisFor(c *model.Context) string {
	if c == nil {
		return ""
	}
	s := c.Description
	if len(s) > maxSynopsisChars {
		s = s[:maxSynopsisChars]
	}
	return s
}
