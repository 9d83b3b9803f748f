package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BeyondDrewTV/stylescope/internal/config"
	"github.com/BeyondDrewTV/stylescope/internal/model"
)

// OpenLibraryAdapter is the tertiary source: broad coverage, descriptions
// via the works endpoint, no reviews.
type OpenLibraryAdapter struct {
	cfg     config.OpenLibraryConfig
	http    *http.Client
	limiter *rate.Limiter
}

// OpenLibraryOption configures the adapter.
type OpenLibraryOption func(*OpenLibraryAdapter)

// WithOpenLibraryHTTPClient sets a custom HTTP client (for testing).
func WithOpenLibraryHTTPClient(hc *http.Client) OpenLibraryOption {
	return func(a *OpenLibraryAdapter) {
		a.http = hc
	}
}

// NewOpenLibrary creates the Open Library adapter.
func NewOpenLibrary(cfg config.OpenLibraryConfig, opts ...OpenLibraryOption) *OpenLibraryAdapter {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	a := &OpenLibraryAdapter{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(3, 3),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *OpenLibraryAdapter) Name() string { return "open_library" }

// Resolve searches Open Library and fetches the winning work's description.
func (a *OpenLibraryAdapter) Resolve(ctx context.Context, q model.BookQuery) (*model.SourceRecord, error) {
	var docs []openLibraryDoc

	if q.ISBN != "" {
		isbn := strings.ReplaceAll(strings.TrimSpace(q.ISBN), "-", "")
		docs = a.search(ctx, url.Values{"isbn": {isbn}})
	}
	if len(docs) == 0 && q.Title != "" {
		v := url.Values{"title": {strings.TrimSpace(q.Title)}}
		if q.Author != "" {
			v.Set("author", strings.TrimSpace(q.Author))
		}
		docs = a.search(ctx, v)
	}
	if len(docs) == 0 && q.Title != "" && q.Author == "" {
		docs = a.search(ctx, url.Values{"q": {strings.TrimSpace(q.Title)}})
	}
	if len(docs) == 0 {
		return nil, nil
	}

	candidates := make([]*model.SourceRecord, 0, len(docs))
	for i := range docs {
		candidates = append(candidates, docs[i].record())
	}

	best := PickBest(q, candidates)
	if best == nil {
		return nil, nil
	}

	if best.Description == "" && best.ID != "" {
		best.Description = a.workDescription(ctx, best.ID)
	}

	zap.L().Info("open_library: matched",
		zap.String("query_title", q.Title),
		zap.String("matched_title", best.Title),
	)
	return best, nil
}

func (a *OpenLibraryAdapter) search(ctx context.Context, params url.Values) []openLibraryDoc {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil
	}

	params.Set("limit", "5")
	params.Set("fields", "key,title,author_name,isbn,cover_i,ratings_count,ratings_average,subject")
	u := fmt.Sprintf("%s/search.json?%s", a.cfg.BaseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil
	}

	resp, err := a.http.Do(req)
	if err != nil {
		zap.L().Warn("open_library: search failed", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil || resp.StatusCode != http.StatusOK {
		return nil
	}

	var payload struct {
		Docs []openLibraryDoc `json:"docs"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}
	return payload.Docs
}

// workDescription fetches /works/<id>.json. The description field is
// either a plain string or {"type": ..., "value": ...}.
func (a *OpenLibraryAdapter) workDescription(ctx context.Context, workKey string) string {
	if err := a.limiter.Wait(ctx); err != nil {
		return ""
	}

	u := fmt.Sprintf("%s%s.json", a.cfg.BaseURL, workKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return ""
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || resp.StatusCode != http.StatusOK {
		return ""
	}

	var payload struct {
		Description json.RawMessage `json:"description"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || len(payload.Description) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(payload.Description, &asString); err == nil {
		return strings.TrimSpace(asString)
	}
	var asObject struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(payload.Description, &asObject); err == nil {
		return strings.TrimSpace(asObject.Value)
	}
	return ""
}

// openLibraryDoc is the search.json document shape.
type openLibraryDoc struct {
	Key           string   `json:"key"`
	Title         string   `json:"title"`
	AuthorName    []string `json:"author_name"`
	ISBN          []string `json:"isbn"`
	CoverID       int      `json:"cover_i"`
	RatingsCount  int      `json:"ratings_count"`
	RatingsAvg    float64  `json:"ratings_average"`
	Subject       []string `json:"subject"`
}

func (d *openLibraryDoc) record() *model.SourceRecord {
	var isbn10, isbn13 string
	for _, raw := range d.ISBN {
		s := strings.ReplaceAll(strings.TrimSpace(raw), "-", "")
		switch {
		case len(s) == 13 && isbn13 == "":
			isbn13 = s
		case len(s) == 10 && isbn10 == "":
			isbn10 = s
		}
	}

	var cover string
	if d.CoverID > 0 {
		cover = fmt.Sprintf("https://covers.openlibrary.org/b/id/%d-L.jpg", d.CoverID)
	}

	genres := d.Subject
	if len(genres) > 10 {
		genres = genres[:10]
	}

	return &model.SourceRecord{
		ID:            d.Key,
		Title:         d.Title,
		Authors:       d.AuthorName,
		Genres:        genres,
		ISBN10:        isbn10,
		ISBN13:        isbn13,
		CoverURL:      cover,
		AverageRating: d.RatingsAvg,
		RatingsCount:  d.RatingsCount,
		Source:        "open_library",
	}
}
