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

const openLibrarySearchBody = `{
	"docs": [
		{
			"key": "/works/OL893415W",
			"title": "Dune",
			"author_name": ["Frank Herbert"],
			"isbn": ["9780441172719", "0441172717"],
			"cover_i": 12345,
			"ratings_count": 800,
			"ratings_average": 4.2,
			"subject": ["Science fiction", "Deserts"]
		}
	]
}`

func newOpenLibraryServer(t *testing.T, description string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/search.json"):
			io.WriteString(w, openLibrarySearchBody)
		case strings.HasPrefix(r.URL.Path, "/works/"):
			io.WriteString(w, description)
		default:
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
	}))
}

func newOpenLibraryAdapter(srv *httptest.Server) *OpenLibraryAdapter {
	return NewOpenLibrary(config.OpenLibraryConfig{BaseURL: srv.URL},
		WithOpenLibraryHTTPClient(srv.Client()))
}

func TestOpenLibraryResolve(t *testing.T) {
	srv := newOpenLibraryServer(t, `{"description": "Melange is everything."}`)
	defer srv.Close()

	a := newOpenLibraryAdapter(srv)
	rec, err := a.Resolve(context.Background(), model.BookQuery{Title: "Dune", Author: "Frank Herbert"})
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "open_library", rec.Source)
	assert.Equal(t, "Melange is everything.", rec.Description)
	assert.Equal(t, "9780441172719", rec.ISBN13)
	assert.Equal(t, "0441172717", rec.ISBN10)
	assert.Equal(t, "https://covers.openlibrary.org/b/id/12345-L.jpg", rec.CoverURL)
	assert.Equal(t, 800, rec.RatingsCount)
	assert.InDelta(t, 4.2, rec.AverageRating, 0.001)
}

func TestOpenLibraryResolveObjectDescription(t *testing.T) {
	srv := newOpenLibraryServer(t, `{"description": {"type": "/type/text", "value": "Wrapped value."}}`)
	defer srv.Close()

	a := newOpenLibraryAdapter(srv)
	rec, err := a.Resolve(context.Background(), model.BookQuery{Title: "Dune", Author: "Frank Herbert"})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Wrapped value.", rec.Description)
}

func TestOpenLibraryResolveMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"docs": []}`)
	}))
	defer srv.Close()

	a := newOpenLibraryAdapter(srv)
	rec, err := a.Resolve(context.Background(), model.BookQuery{Title: "Unknown", Author: "Nobody"})
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestOpenLibraryResolveAuthorMismatchDiscards(t *testing.T) {
	srv := newOpenLibraryServer(t, `{"description": "unused"}`)
	defer srv.Close()

	a := newOpenLibraryAdapter(srv)
	rec, err := a.Resolve(context.Background(), model.BookQuery{Title: "Dune", Author: "Jane Smith"})
	require.NoError(t, err)
	assert.Nil(t, rec)
}
