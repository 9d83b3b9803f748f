package source

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BeyondDrewTV/stylescope/internal/config"
	"github.com/BeyondDrewTV/stylescope/internal/model"
)

const googleVolumesBody = `{
	"items": [
		{
			"id": "vol1",
			"volumeInfo": {
				"title": "Dune",
				"authors": ["Frank Herbert"],
				"description": "<p>Set on the desert planet <b>Arrakis</b>.</p>",
				"categories": ["Fiction"],
				"averageRating": 4.5,
				"ratingsCount": 3000,
				"industryIdentifiers": [
					{"type": "ISBN_13", "identifier": "9780441172719"},
					{"type": "ISBN_10", "identifier": "0441172717"}
				],
				"imageLinks": {"thumbnail": "https://books.example.com/dune.jpg"}
			}
		}
	]
}`

func TestGoogleBooksResolve(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, googleVolumesBody)
	}))
	defer srv.Close()

	a := NewGoogleBooks(config.GoogleBooksConfig{BaseURL: srv.URL},
		WithGoogleBooksHTTPClient(srv.Client()))

	rec, err := a.Resolve(context.Background(), model.BookQuery{Title: "Dune", Author: "Frank Herbert"})
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "google_books", rec.Source)
	assert.Equal(t, "Set on the desert planet Arrakis.", rec.Description, "HTML stripped")
	assert.Equal(t, "9780441172719", rec.ISBN13)
	assert.Equal(t, "0441172717", rec.ISBN10)
	assert.Equal(t, 3000, rec.RatingsCount)
	assert.Empty(t, rec.Reviews, "volumes API carries no reviews")

	require.Len(t, queries, 1)
	assert.Contains(t, queries[0], "intitle:Dune")
	assert.Contains(t, queries[0], "inauthor:Frank Herbert")
}

func TestGoogleBooksResolveISBNFirst(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		if strings.HasPrefix(r.URL.Query().Get("q"), "isbn:") {
			io.WriteString(w, googleVolumesBody)
			return
		}
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	a := NewGoogleBooks(config.GoogleBooksConfig{BaseURL: srv.URL},
		WithGoogleBooksHTTPClient(srv.Client()))

	rec, err := a.Resolve(context.Background(), model.BookQuery{
		Title: "Dune", Author: "Frank Herbert", ISBN: "978-0-441-17271-9",
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.NotEmpty(t, queries)
	assert.Equal(t, "isbn:9780441172719", queries[0], "hyphens stripped, ISBN tried first")
}

func TestGoogleBooksResolveMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	a := NewGoogleBooks(config.GoogleBooksConfig{BaseURL: srv.URL},
		WithGoogleBooksHTTPClient(srv.Client()))

	rec, err := a.Resolve(context.Background(), model.BookQuery{Title: "Unknown", Author: "Nobody"})
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "plain", stripHTML("plain"))
	assert.Equal(t, "a b", stripHTML("<i>a</i>\n<br/> b"))
	assert.Empty(t, stripHTML(""))
}
