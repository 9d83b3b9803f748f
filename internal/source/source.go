// Package source resolves a book identity against external data providers.
//
// Each provider is wrapped in an Adapter that normalizes its shape into a
// model.SourceRecord and applies the candidate matcher to its own hit
// list. Adapters swallow ordinary not-found and network failures and
// return (nil, nil); the fallback order is a fixed business rule owned by
// the Chain.
package source

import (
	"context"

	"go.uber.org/zap"

	"github.com/BeyondDrewTV/stylescope/internal/model"
)

// Adapter resolves one provider's view of a book.
type Adapter interface {
	// Name identifies the provider ("hardcover", "google_books", ...).
	Name() string
	// Resolve looks the query up against the provider. It returns
	// (nil, nil) for ordinary not-found/network conditions; a non-nil
	// error indicates a programming or configuration fault only.
	Resolve(ctx context.Context, q model.BookQuery) (*model.SourceRecord, error)
}

// Chain tries adapters in a fixed priority order. It advances to the
// next adapter only while the current one yielded neither description
// nor reviews, and collects every record gathered along the way so the
// assembler can merge metadata across providers.
type Chain struct {
	adapters []Adapter
}

// NewChain creates a chain with the given priority order.
func NewChain(adapters ...Adapter) *Chain {
	return &Chain{adapters: adapters}
}

// Resolve runs the chain for the query. The returned slice is in
// priority order and may be empty when no provider knew the book.
func (c *Chain) Resolve(ctx context.Context, q model.BookQuery) []*model.SourceRecord {
	var records []*model.SourceRecord

	for _, a := range c.adapters {
		rec, err := a.Resolve(ctx, q)
		if err != nil {
			// Adapters are expected to swallow ordinary failures; an
			// error here is logged and treated as a miss.
			zap.L().Warn("source: adapter error",
				zap.String("adapter", a.Name()),
				zap.String("title", q.Title),
				zap.Error(err),
			)
			continue
		}
		if rec == nil {
			zap.L().Debug("source: adapter miss",
				zap.String("adapter", a.Name()),
				zap.String("title", q.Title),
			)
			continue
		}

		records = append(records, rec)
		if rec.HasSignal() {
			break
		}
	}

	return records
}
