package store

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/BeyondDrewTV/stylescope/internal/model"
)

// CachedStore layers an in-process LRU over GetBook so repeated lookups
// for popular titles skip the database. Writes invalidate the entry; the
// underlying upsert remains the source of truth.
type CachedStore struct {
	Store
	books *lru.Cache[string, *model.CachedBook]
}

// NewCached wraps inner with an LRU read cache of the given size.
func NewCached(inner Store, size int) (*CachedStore, error) {
	cache, err := lru.New[string, *model.CachedBook](size)
	if err != nil {
		return nil, eris.Wrap(err, "store: create book cache")
	}
	return &CachedStore{Store: inner, books: cache}, nil
}

// bookKey caches on the exact natural key. Normalized matching belongs to
// the search_normalized column, not the cache: a fuzzy key here could serve
// a record the database does not hold for the requested pair.
func bookKey(title, author string) string {
	return title + "\x00" + author
}

func (c *CachedStore) GetBook(ctx context.Context, title, author string) (*model.CachedBook, error) {
	key := bookKey(title, author)
	if book, ok := c.books.Get(key); ok {
		zap.L().Debug("store: book cache hit", zap.String("key", key))
		return book, nil
	}

	book, err := c.Store.GetBook(ctx, title, author)
	if err != nil {
		return nil, err
	}
	c.books.Add(key, book)
	return book, nil
}

func (c *CachedStore) UpsertScoredBook(ctx context.Context, p UpsertParams) (int64, error) {
	id, err := c.Store.UpsertScoredBook(ctx, p)
	if err == nil {
		c.books.Remove(bookKey(p.Query.Title, p.Query.Author))
	}
	return id, err
}
