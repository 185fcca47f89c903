package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"sciencefeed/internal/apperr"
	"sciencefeed/internal/metrics"
	"sciencefeed/internal/middleware"
	"sciencefeed/internal/settings"
)

const (
	DefaultTopK          = 7
	DefaultThreshold     = 0.7
	DefaultFallbackLimit = 10
)

var tracer = otel.Tracer("sciencefeed/retrieval")

type Kind string

const (
	KindArticle  Kind = "article"
	KindDocument Kind = "document"
	KindChunk    Kind = "chunk"
)

// Tier names the step that produced a result set.
type Tier string

const (
	TierSemantic Tier = "semantic"
	TierLexical  Tier = "lexical"
	TierRecent   Tier = "recent"
)

// Item is what callers get back. It carries no score or embedding.
type Item struct {
	Kind        Kind      `json:"kind"`
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
	URL         string    `json:"url,omitempty"`
	ImageRef    string    `json:"image_ref,omitempty"`
	DocumentID  int64     `json:"document_id,omitempty"`
	ChunkIndex  int       `json:"chunk_index,omitempty"`
	AccessLevel string    `json:"access_level,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Candidate is a scored view over an Item, used only while ranking.
type Candidate struct {
	Item      Item
	Embedding []float32
	Score     float64
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddedSource returns items that carry an embedding of the given dimension.
type EmbeddedSource interface {
	Embedded(ctx context.Context, dimension int) ([]Candidate, error)
}

// FallbackSource answers the lexical and recency tiers.
type FallbackSource interface {
	MatchAny(ctx context.Context, tokens []string, limit int) ([]Item, error)
	Recent(ctx context.Context, limit int) ([]Item, error)
}

type SettingsProvider interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

// Defaults apply when neither the request nor the settings row provide a value.
type Defaults struct {
	TopK          int
	Threshold     float64
	FallbackLimit int
	// Dimension, when set, rejects query embeddings of any other length.
	Dimension int
}

type SearchOptions struct {
	TopK      *int
	Threshold *float64
	Limit     *int
}

type Result struct {
	Items []Item `json:"items"`
	Tier  Tier   `json:"tier"`
}

type Service struct {
	embedder Embedder
	sources  []EmbeddedSource
	fallback FallbackSource
	settings SettingsProvider
	logger   *QueryLogger
	defaults Defaults
}

func NewService(e Embedder, fallback FallbackSource, sources []EmbeddedSource, set SettingsProvider, l *QueryLogger, d Defaults) *Service {
	if d.TopK <= 0 {
		d.TopK = DefaultTopK
	}
	if d.FallbackLimit <= 0 {
		d.FallbackLimit = DefaultFallbackLimit
	}
	return &Service{embedder: e, sources: sources, fallback: fallback, settings: set, logger: l, defaults: d}
}

type params struct {
	topK      int
	threshold float64
	limit     int
}

// Search ranks the corpus against query by cosine similarity. When the query
// cannot be embedded or nothing clears the threshold it falls back to a
// lexical match on title and summary, then to the most recent items.
func (s *Service) Search(ctx context.Context, query string, opts *SearchOptions) (*Result, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Search")
	defer span.End()

	start := time.Now()
	p := s.resolveParams(ctx, opts)
	var res *Result
	var err error

	defer func() {
		entry := QueryLogEntry{
			CorrelationID: middleware.GetCorrelationID(ctx),
			Query:         query,
			TopK:          p.topK,
			Threshold:     p.threshold,
			LatencyMs:     time.Since(start).Milliseconds(),
		}
		if res != nil {
			entry.Tier = res.Tier
			entry.Results = len(res.Items)
			entry.ByKind = countKinds(res.Items)
			metrics.SearchTiers.WithLabelValues(string(res.Tier)).Inc()
			span.SetAttributes(attribute.String("retrieval.tier", string(res.Tier)), attribute.Int("retrieval.results", len(res.Items)))
		}
		if err != nil {
			entry.Error = err.Error()
			span.RecordError(err)
		}
		if s.logger != nil {
			s.logger.Log(entry)
		}
	}()

	if items := s.semantic(ctx, query, p); len(items) > 0 {
		res = &Result{Items: items, Tier: TierSemantic}
		return res, nil
	}

	if tokens := Tokenize(query); len(tokens) > 0 {
		items, lerr := s.fallback.MatchAny(ctx, tokens, p.limit)
		if lerr != nil {
			slog.WarnContext(ctx, "lexical fallback failed", "error", lerr)
		} else if len(items) > 0 {
			res = &Result{Items: items, Tier: TierLexical}
			return res, nil
		}
	}

	items, rerr := s.fallback.Recent(ctx, p.limit)
	if rerr != nil {
		err = apperr.E(apperr.KindStorage, "retrieval.Search", rerr)
		return nil, err
	}
	if items == nil {
		items = []Item{}
	}
	res = &Result{Items: items, Tier: TierRecent}
	return res, nil
}

func (s *Service) semantic(ctx context.Context, query string, p params) []Item {
	if strings.TrimSpace(query) == "" || s.embedder == nil {
		return nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil || len(vec) == 0 {
		slog.WarnContext(ctx, "query embedding unavailable, degrading search",
			"error", apperr.E(apperr.KindEmbeddingUnavailable, "retrieval.Search", err))
		return nil
	}
	if s.defaults.Dimension > 0 && len(vec) != s.defaults.Dimension {
		slog.WarnContext(ctx, "query embedding has unexpected dimension", "got", len(vec), "want", s.defaults.Dimension)
		return nil
	}

	var candidates []Candidate
	for _, src := range s.sources {
		c, err := src.Embedded(ctx, len(vec))
		if err != nil {
			slog.WarnContext(ctx, "failed to load embedded items", "error", err)
			continue
		}
		candidates = append(candidates, c...)
	}

	ranked := Rank(vec, candidates, p.topK, p.threshold)
	items := make([]Item, 0, len(ranked))
	for _, c := range ranked {
		items = append(items, c.Item)
	}
	return items
}

func (s *Service) resolveParams(ctx context.Context, opts *SearchOptions) params {
	p := params{topK: s.defaults.TopK, threshold: s.defaults.Threshold, limit: s.defaults.FallbackLimit}

	if s.settings != nil {
		set, err := s.settings.Get(ctx)
		if err != nil {
			slog.WarnContext(ctx, "failed to read search settings, using defaults", "error", err)
		} else if set != nil {
			if set.TopK > 0 {
				p.topK = set.TopK
			}
			if set.FallbackLimit > 0 {
				p.limit = set.FallbackLimit
			}
			p.threshold = set.SimilarityThreshold
		}
	}

	if opts != nil {
		if opts.TopK != nil && *opts.TopK > 0 {
			p.topK = *opts.TopK
		}
		if opts.Threshold != nil {
			p.threshold = *opts.Threshold
		}
		if opts.Limit != nil && *opts.Limit > 0 {
			p.limit = *opts.Limit
		}
	}
	return p
}
