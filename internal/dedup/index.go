package dedup

import (
	"context"
	"fmt"
	"log/slog"

	"sciencefeed/internal/apperr"
)

const DefaultPageSize = 1000

// PageReader returns known URLs in a stable order, limit at a time.
type PageReader interface {
	ListURLs(ctx context.Context, offset, limit int) ([]string, error)
}

// Index is an advisory set of known URLs. It can be stale; the store's
// unique constraint remains authoritative.
type Index struct {
	urls map[string]struct{}
}

func New(urls ...string) *Index {
	idx := &Index{urls: make(map[string]struct{}, len(urls))}
	for _, u := range urls {
		idx.Add(u)
	}
	return idx
}

// Load reads every known URL page by page until a short page comes back.
// Any read error fails the whole load.
func Load(ctx context.Context, r PageReader, pageSize int) (*Index, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	idx := New()
	offset := 0
	pages := 0
	for {
		page, err := r.ListURLs(ctx, offset, pageSize)
		if err != nil {
			return nil, apperr.E(apperr.KindStorage, "dedup.Load", fmt.Errorf("read page at offset %d: %w", offset, err))
		}
		pages++
		for _, u := range page {
			idx.Add(u)
		}
		if len(page) < pageSize {
			break
		}
		offset += len(page)
	}

	slog.DebugContext(ctx, "dedup index loaded", "urls", idx.Len(), "pages", pages)
	return idx, nil
}

func (i *Index) Contains(u string) bool {
	_, ok := i.urls[u]
	return ok
}

func (i *Index) Add(u string) {
	if u != "" {
		i.urls[u] = struct{}{}
	}
}

func (i *Index) Len() int {
	return len(i.urls)
}
