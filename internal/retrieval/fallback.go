package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"sort"
)

// Fallbacks queries every source and merges the results newest first. A
// source that fails is skipped unless all of them fail.
type Fallbacks []FallbackSource

func (f Fallbacks) MatchAny(ctx context.Context, tokens []string, limit int) ([]Item, error) {
	return f.merge(ctx, limit, func(src FallbackSource) ([]Item, error) {
		return src.MatchAny(ctx, tokens, limit)
	})
}

func (f Fallbacks) Recent(ctx context.Context, limit int) ([]Item, error) {
	return f.merge(ctx, limit, func(src FallbackSource) ([]Item, error) {
		return src.Recent(ctx, limit)
	})
}

func (f Fallbacks) merge(ctx context.Context, limit int, fetch func(FallbackSource) ([]Item, error)) ([]Item, error) {
	out := []Item{}
	var errs []error
	for _, src := range f {
		items, err := fetch(src)
		if err != nil {
			slog.WarnContext(ctx, "fallback source failed", "error", err)
			errs = append(errs, err)
			continue
		}
		out = append(out, items...)
	}
	if len(f) > 0 && len(errs) == len(f) {
		return nil, errors.Join(errs...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ProcessedAt.After(out[j].ProcessedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
