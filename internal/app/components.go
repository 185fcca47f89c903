package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"sciencefeed/internal/adapter/customsearch"
	"sciencefeed/internal/config"
	"sciencefeed/internal/extract"
	"sciencefeed/internal/resolver"
	"sciencefeed/internal/rules"
	"sciencefeed/internal/text"
)

// LoadRules returns the rules file named by RULES_PATH, or the embedded default.
func LoadRules(cfg *config.Config) (*rules.Rules, error) {
	if cfg.RulesPath == "" {
		return rules.Default(), nil
	}
	r, err := rules.Load(cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return r, nil
}

func NewResolver(cfg *config.Config, r *rules.Rules) *resolver.Resolver {
	return resolver.New(r,
		resolver.WithTimeout(cfg.ResolverTimeout),
		resolver.WithMaxRedirects(cfg.ResolverRedirects),
	)
}

// NewSearcher returns nil when no search provider is configured.
func NewSearcher(ctx context.Context, cfg *config.Config) (extract.Searcher, error) {
	if cfg.SearchAPIKey == "" {
		slog.Info("search provider not configured, search fallback tiers disabled")
		return nil, nil
	}
	c, err := customsearch.New(ctx, cfg.SearchAPIKey, cfg.SearchEngine)
	if err != nil {
		return nil, fmt.Errorf("custom search client: %w", err)
	}
	return c, nil
}

func NewExtractor(cfg *config.Config, r *rules.Rules, s extract.Searcher) *extract.Extractor {
	opts := []extract.Option{
		extract.WithMinLengths(cfg.MinTitleLength, cfg.MinSnippetLength),
		extract.WithSearchResults(cfg.SearchResults),
	}
	if cfg.ExtractorTimeout > 0 {
		opts = append(opts, extract.WithHTTPClient(&http.Client{Timeout: cfg.ExtractorTimeout}))
	}
	return extract.New(s, r, opts...)
}

func NewChunker(cfg *config.Config) *text.Chunker {
	return text.NewChunker(text.WithMaxChunkSize(cfg.ChunkSize), text.WithOverlap(cfg.ChunkOverlap))
}
