package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BeyondDrewTV/stylescope/internal/config"
	"github.com/BeyondDrewTV/stylescope/internal/model"
)

// Hardcover GraphQL queries. The public API only permits the Typesense
// search and books_by_pk lookups, not _ilike table scans.
const (
	hardcoverSearchQuery = `
query SearchBooks($query: String!) {
  search(query: $query, query_type: "books", per_page: 5, page: 1) {
    results
  }
}`

	hardcoverDetailQuery = `
query BookDetail($id: Int!) {
  books_by_pk(id: $id) {
    id
    title
    description
    rating
    ratings_count
    cached_tags
    image { url }
    contributions { author { name } }
    editions { isbn_10 isbn_13 }
  }
}`

	hardcoverReviewsQuery = `
query BookReviews($book_id: Int!) {
  user_books(
    where: {_and: [{book_id: {_eq: $book_id}}, {has_review: {_eq: true}}]}
    limit: 30
    order_by: {reviewed_at: desc}
  ) {
    review_raw
  }
}`
)

// minReviewChars drops trivially short reviews at the adapter boundary.
const minReviewChars = 30

// HardcoverAdapter is the primary source: community metadata plus reader
// reviews via Hardcover's GraphQL API.
type HardcoverAdapter struct {
	cfg     config.HardcoverConfig
	http    *http.Client
	limiter *rate.Limiter
}

// HardcoverOption configures the adapter.
type HardcoverOption func(*HardcoverAdapter)

// WithHardcoverHTTPClient sets a custom HTTP client (for testing).
func WithHardcoverHTTPClient(hc *http.Client) HardcoverOption {
	return func(a *HardcoverAdapter) {
		a.http = hc
	}
}

// NewHardcover creates the Hardcover adapter.
func NewHardcover(cfg config.HardcoverConfig, opts ...HardcoverOption) *HardcoverAdapter {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	a := &HardcoverAdapter{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(2, 2),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *HardcoverAdapter) Name() string { return "hardcover" }

// Resolve searches Hardcover, picks the best candidate, then enriches it
// with detail fields and community reviews. Missing API key means the
// adapter skips itself.
func (a *HardcoverAdapter) Resolve(ctx context.Context, q model.BookQuery) (*model.SourceRecord, error) {
	if strings.TrimSpace(a.cfg.Key) == "" {
		zap.L().Debug("hardcover: no API key configured, skipping")
		return nil, nil
	}
	if q.Title == "" && q.ISBN == "" {
		return nil, nil
	}

	// The Typesense search handles ISBN, title, and author terms in one
	// query string; ISBN first for precision.
	term := strings.TrimSpace(q.Title + " " + q.Author)
	if q.ISBN != "" {
		term = strings.ReplaceAll(strings.TrimSpace(q.ISBN), "-", "")
	}

	candidates := a.search(ctx, term)
	if len(candidates) == 0 && q.ISBN != "" {
		// ISBN miss: fall back to title+author.
		candidates = a.search(ctx, strings.TrimSpace(q.Title+" "+q.Author))
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	best := PickBest(q, candidates)
	if best == nil {
		zap.L().Info("hardcover: discarding candidates with no author overlap",
			zap.String("title", q.Title),
			zap.String("author", q.Author),
		)
		return nil, nil
	}

	a.enrich(ctx, best)

	zap.L().Info("hardcover: matched",
		zap.String("query_title", q.Title),
		zap.String("matched_title", best.Title),
		zap.Int("reviews", len(best.Reviews)),
		zap.Int("ratings_count", best.RatingsCount),
	)
	return best, nil
}

// search executes the Typesense search and normalizes hit documents.
func (a *HardcoverAdapter) search(ctx context.Context, term string) []*model.SourceRecord {
	data, err := a.request(ctx, hardcoverSearchQuery, map[string]any{"query": term})
	if err != nil {
		zap.L().Warn("hardcover: search failed", zap.String("term", term), zap.Error(err))
		return nil
	}

	var payload struct {
		Search struct {
			Results struct {
				Hits []struct {
					Document hardcoverSearchDoc `json:"document"`
				} `json:"hits"`
			} `json:"results"`
		} `json:"search"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		zap.L().Warn("hardcover: unexpected search shape", zap.Error(err))
		return nil
	}

	records := make([]*model.SourceRecord, 0, len(payload.Search.Results.Hits))
	for _, hit := range payload.Search.Results.Hits {
		records = append(records, hit.Document.record())
	}
	return records
}

// enrich merges books_by_pk detail fields over the search document and
// attaches reviews. Detail failures leave the search-derived record as-is.
func (a *HardcoverAdapter) enrich(ctx context.Context, rec *model.SourceRecord) {
	id, err := strconv.Atoi(rec.ID)
	if err != nil {
		return
	}

	data, err := a.request(ctx, hardcoverDetailQuery, map[string]any{"id": id})
	if err != nil {
		zap.L().Warn("hardcover: detail fetch failed", zap.String("id", rec.ID), zap.Error(err))
	} else {
		var payload struct {
			Book *hardcoverDetail `json:"books_by_pk"`
		}
		if err := json.Unmarshal(data, &payload); err == nil && payload.Book != nil {
			payload.Book.mergeInto(rec)
		}
	}

	data, err = a.request(ctx, hardcoverReviewsQuery, map[string]any{"book_id": id})
	if err != nil {
		zap.L().Warn("hardcover: reviews fetch failed", zap.String("id", rec.ID), zap.Error(err))
		return
	}
	var payload struct {
		UserBooks []struct {
			ReviewRaw string `json:"review_raw"`
		} `json:"user_books"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	for _, ub := range payload.UserBooks {
		text := strings.TrimSpace(ub.ReviewRaw)
		if len(text) > minReviewChars {
			rec.Reviews = append(rec.Reviews, model.ReviewExcerpt{Text: text})
		}
	}
}

// request executes a GraphQL request with bearer auth. Partial data
// alongside GraphQL errors is still returned.
func (a *HardcoverAdapter) request(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "hardcover: rate limit wait")
	}

	body, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return nil, eris.Wrap(err, "hardcover: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "hardcover: build request")
	}
	// Strip any "Bearer " prefix the operator may have included so we
	// never send "Bearer Bearer <token>".
	key := strings.TrimSpace(strings.TrimPrefix(a.cfg.Key, "Bearer "))
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "hardcover: execute request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, eris.Wrap(err, "hardcover: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.New(fmt.Sprintf("hardcover: status %d", resp.StatusCode))
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, eris.Wrap(err, "hardcover: decode response")
	}
	if len(envelope.Errors) > 0 {
		if len(envelope.Data) > 0 && string(envelope.Data) != "null" {
			zap.L().Warn("hardcover: partial data with GraphQL errors",
				zap.String("first_error", envelope.Errors[0].Message),
			)
			return envelope.Data, nil
		}
		return nil, eris.New("hardcover: " + envelope.Errors[0].Message)
	}

	return envelope.Data, nil
}

// hardcoverSearchDoc is the Typesense hit document shape.
type hardcoverSearchDoc struct {
	ID            json.Number `json:"id"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	AuthorNames   []string    `json:"author_names"`
	Genres        []string    `json:"genres"`
	ISBNs         []string    `json:"isbns"`
	Rating        float64     `json:"rating"`
	RatingsCount  int         `json:"ratings_count"`
	Image         struct {
		URL string `json:"url"`
	} `json:"image"`
	Contributions []struct {
		Author struct {
			Name string `json:"name"`
		} `json:"author"`
	} `json:"contributions"`
}

func (d *hardcoverSearchDoc) record() *model.SourceRecord {
	authors := make([]string, 0, len(d.Contributions))
	for _, c := range d.Contributions {
		if c.Author.Name != "" {
			authors = append(authors, c.Author.Name)
		}
	}
	if len(authors) == 0 {
		for _, a := range d.AuthorNames {
			if a != "" {
				authors = append(authors, a)
			}
		}
	}

	var isbn10, isbn13 string
	for _, raw := range d.ISBNs {
		s := strings.ReplaceAll(strings.TrimSpace(raw), "-", "")
		switch {
		case len(s) == 13 && isbn13 == "":
			isbn13 = s
		case len(s) == 10 && isbn10 == "":
			isbn10 = s
		}
	}

	genres := make([]string, 0, len(d.Genres))
	for _, g := range d.Genres {
		if g != "" {
			genres = append(genres, g)
		}
	}
	if len(genres) > 10 {
		genres = genres[:10]
	}

	return &model.SourceRecord{
		ID:            d.ID.String(),
		Title:         d.Title,
		Authors:       authors,
		Description:   d.Description,
		Genres:        genres,
		ISBN10:        isbn10,
		ISBN13:        isbn13,
		CoverURL:      d.Image.URL,
		AverageRating: d.Rating,
		RatingsCount:  d.RatingsCount,
		Source:        "hardcover",
	}
}

// hardcoverDetail is the books_by_pk shape. Detail values win over
// search-document values where present.
type hardcoverDetail struct {
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Rating       float64         `json:"rating"`
	RatingsCount int             `json:"ratings_count"`
	CachedTags   json.RawMessage `json:"cached_tags"`
	Image        struct {
		URL string `json:"url"`
	} `json:"image"`
	Contributions []struct {
		Author struct {
			Name string `json:"name"`
		} `json:"author"`
	} `json:"contributions"`
	Editions []struct {
		ISBN10 string `json:"isbn_10"`
		ISBN13 string `json:"isbn_13"`
	} `json:"editions"`
}

func (d *hardcoverDetail) mergeInto(rec *model.SourceRecord) {
	if d.Description != "" {
		rec.Description = d.Description
	}
	if d.Rating > 0 {
		rec.AverageRating = d.Rating
	}
	if d.RatingsCount > 0 {
		rec.RatingsCount = d.RatingsCount
	}
	if d.Image.URL != "" {
		rec.CoverURL = d.Image.URL
	}
	if len(d.Contributions) > 0 {
		authors := make([]string, 0, len(d.Contributions))
		for _, c := range d.Contributions {
			if c.Author.Name != "" {
				authors = append(authors, c.Author.Name)
			}
		}
		if len(authors) > 0 {
			rec.Authors = authors
		}
	}
	for _, ed := range d.Editions {
		if ed.ISBN13 != "" && rec.ISBN13 == "" {
			rec.ISBN13 = ed.ISBN13
		}
		if ed.ISBN10 != "" && rec.ISBN10 == "" {
			rec.ISBN10 = ed.ISBN10
		}
	}
	if genres := parseCachedTags(d.CachedTags); len(genres) > 0 {
		rec.Genres = genres
	}
}

// parseCachedTags handles the loose cached_tags shapes Hardcover returns:
// a list of strings, a list of objects with tag/name keys, or a map of
// category -> tag objects.
func parseCachedTags(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var out []string
	appendTag := func(v any) {
		switch t := v.(type) {
		case string:
			if t != "" {
				out = append(out, t)
			}
		case map[string]any:
			for _, k := range []string{"tag", "name", "genre"} {
				if s, ok := t[k].(string); ok && s != "" {
					out = append(out, s)
					return
				}
			}
		}
	}

	var asList []any
	if err := json.Unmarshal(raw, &asList); err == nil {
		for _, v := range asList {
			appendTag(v)
		}
	} else {
		var asMap map[string][]any
		if err := json.Unmarshal(raw, &asMap); err == nil {
			if genre, ok := asMap["Genre"]; ok {
				for _, v := range genre {
					appendTag(v)
				}
			}
		}
	}

	if len(out) > 10 {
		out = out[:10]
	}
	return out
}
