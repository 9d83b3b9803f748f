package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BeyondDrewTV/stylescope/internal/config"
	"github.com/BeyondDrewTV/stylescope/internal/model"
)

var (
	htmlTag    = regexp.MustCompile(`<[^>]+>`)
	htmlSpaces = regexp.MustCompile(`\s+`)
)

// stripHTML removes tags that leak into Google Books descriptions.
func stripHTML(s string) string {
	if s == "" {
		return ""
	}
	clean := htmlTag.ReplaceAllString(s, "")
	return strings.TrimSpace(htmlSpaces.ReplaceAllString(clean, " "))
}

// GoogleBooksAdapter is the secondary source: descriptions and metadata
// from the free volumes API. No reviews.
type GoogleBooksAdapter struct {
	cfg     config.GoogleBooksConfig
	http    *http.Client
	limiter *rate.Limiter
}

// GoogleBooksOption configures the adapter.
type GoogleBooksOption func(*GoogleBooksAdapter)

// WithGoogleBooksHTTPClient sets a custom HTTP client (for testing).
func WithGoogleBooksHTTPClient(hc *http.Client) GoogleBooksOption {
	return func(a *GoogleBooksAdapter) {
		a.http = hc
	}
}

// NewGoogleBooks creates the Google Books adapter.
func NewGoogleBooks(cfg config.GoogleBooksConfig, opts ...GoogleBooksOption) *GoogleBooksAdapter {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	a := &GoogleBooksAdapter{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(5, 5),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *GoogleBooksAdapter) Name() string { return "google_books" }

// Resolve searches by ISBN first, then title+author, then title alone
// when no author is known, and picks the best candidate.
func (a *GoogleBooksAdapter) Resolve(ctx context.Context, q model.BookQuery) (*model.SourceRecord, error) {
	var items []googleVolume

	if q.ISBN != "" {
		isbn := strings.ReplaceAll(strings.TrimSpace(q.ISBN), "-", "")
		items = a.search(ctx, "isbn:"+isbn, 1)
	}

	if len(items) == 0 && q.Title != "" {
		parts := []string{"intitle:" + strings.TrimSpace(q.Title)}
		if q.Author != "" {
			parts = append(parts, "inauthor:"+strings.TrimSpace(q.Author))
		}
		items = a.search(ctx, strings.Join(parts, "+"), 5)
	}

	// Broadened title-only search, only when no author was supplied.
	if len(items) == 0 && q.Title != "" && q.Author == "" {
		items = a.search(ctx, strings.TrimSpace(q.Title), 5)
	}

	if len(items) == 0 {
		return nil, nil
	}

	candidates := make([]*model.SourceRecord, 0, len(items))
	for i := range items {
		candidates = append(candidates, items[i].record())
	}

	best := PickBest(q, candidates)
	if best == nil {
		zap.L().Info("google_books: discarding candidates with no author overlap",
			zap.String("title", q.Title),
			zap.String("author", q.Author),
		)
		return nil, nil
	}

	zap.L().Info("google_books: matched",
		zap.String("query_title", q.Title),
		zap.String("matched_title", best.Title),
	)
	return best, nil
}

func (a *GoogleBooksAdapter) search(ctx context.Context, query string, maxResults int) []googleVolume {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil
	}

	u := fmt.Sprintf("%s?q=%s&maxResults=%d&printType=books",
		a.cfg.BaseURL, url.QueryEscape(query), maxResults)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil
	}

	resp, err := a.http.Do(req)
	if err != nil {
		zap.L().Warn("google_books: request failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil || resp.StatusCode != http.StatusOK {
		zap.L().Warn("google_books: bad response",
			zap.String("query", query),
			zap.Int("status", resp.StatusCode),
			zap.Error(err),
		)
		return nil
	}

	var payload struct {
		Items []googleVolume `json:"items"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		zap.L().Warn("google_books: decode failed", zap.Error(eris.Wrap(err, "google_books: decode search")))
		return nil
	}
	return payload.Items
}

// googleVolume is the volumes API item shape.
type googleVolume struct {
	ID         string `json:"id"`
	VolumeInfo struct {
		Title               string   `json:"title"`
		Authors             []string `json:"authors"`
		Description         string   `json:"description"`
		Categories          []string `json:"categories"`
		AverageRating       float64  `json:"averageRating"`
		RatingsCount        int      `json:"ratingsCount"`
		IndustryIdentifiers []struct {
			Type       string `json:"type"`
			Identifier string `json:"identifier"`
		} `json:"industryIdentifiers"`
		ImageLinks struct {
			Thumbnail string `json:"thumbnail"`
		} `json:"imageLinks"`
	} `json:"volumeInfo"`
}

func (v *googleVolume) record() *model.SourceRecord {
	var isbn10, isbn13 string
	for _, ident := range v.VolumeInfo.IndustryIdentifiers {
		switch ident.Type {
		case "ISBN_13":
			isbn13 = ident.Identifier
		case "ISBN_10":
			isbn10 = ident.Identifier
		}
	}

	return &model.SourceRecord{
		ID:            v.ID,
		Title:         v.VolumeInfo.Title,
		Authors:       v.VolumeInfo.Authors,
		Description:   stripHTML(v.VolumeInfo.Description),
		Genres:        v.VolumeInfo.Categories,
		ISBN10:        isbn10,
		ISBN13:        isbn13,
		CoverURL:      v.VolumeInfo.ImageLinks.Thumbnail,
		AverageRating: v.VolumeInfo.AverageRating,
		RatingsCount:  v.VolumeInfo.RatingsCount,
		Source:        "google_books",
	}
}
