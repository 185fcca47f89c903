package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"sciencefeed/internal/apperr"
	"sciencefeed/internal/metrics"
	"sciencefeed/internal/rules"
)

const (
	DefaultTimeout       = 20 * time.Second
	DefaultMinTitle      = 3
	DefaultMinSnippet    = 5
	DefaultSearchResults = 5

	maxBodyBytes = 4 << 20
)

var ErrNoMetadata = errors.New("no usable title and snippet")

// Tier records which step of the extraction chain produced the metadata.
type Tier string

const (
	TierDirect      Tier = "direct"
	TierSearchExact Tier = "search_exact"
	TierSearchPath  Tier = "search_path"
	TierSearchSite  Tier = "search_site"
)

type Metadata struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Tier    Tier   `json:"tier"`
}

type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Searcher is the external search provider. A quota failure must be
// reported as an apperr.KindRateLimit error.
type Searcher interface {
	Search(ctx context.Context, query string, n int) ([]SearchResult, error)
}

type Extractor struct {
	client        *http.Client
	searcher      Searcher
	rules         *rules.Rules
	minTitle      int
	minSnippet    int
	searchResults int
}

type Option func(*Extractor)

func WithHTTPClient(c *http.Client) Option {
	return func(e *Extractor) {
		e.client = c
	}
}

func WithMinLengths(title, snippet int) Option {
	return func(e *Extractor) {
		if title > 0 {
			e.minTitle = title
		}
		if snippet > 0 {
			e.minSnippet = snippet
		}
	}
}

func WithSearchResults(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.searchResults = n
		}
	}
}

func New(searcher Searcher, r *rules.Rules, opts ...Option) *Extractor {
	if r == nil {
		r = rules.Default()
	}
	e := &Extractor{
		client:        &http.Client{Timeout: DefaultTimeout},
		searcher:      searcher,
		rules:         r,
		minTitle:      DefaultMinTitle,
		minSnippet:    DefaultMinSnippet,
		searchResults: DefaultSearchResults,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns a validated title and snippet for rawURL.
//
// The page is fetched directly first. If it is blocked, unreachable or yields
// nothing usable, the search provider is asked for the exact URL, then for
// site:<domain> plus the last two path segments, then for site:<domain> alone.
// Rate-limit errors from the provider are returned immediately.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (Metadata, error) {
	const op = "extract.Extract"

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Metadata{}, apperr.E(apperr.KindValidation, op, fmt.Errorf("invalid url %q", rawURL))
	}

	page, err := e.fetch(ctx, rawURL)
	switch {
	case err == nil:
		verr := e.Validate(page.Title, page.Snippet)
		if verr == nil {
			metrics.ExtractTiers.WithLabelValues(string(TierDirect)).Inc()
			return Metadata{Title: page.Title, Snippet: page.Snippet, Tier: TierDirect}, nil
		}
		slog.DebugContext(ctx, "direct fetch gave unusable metadata", "url", rawURL, "reason", verr)
	case apperr.Is(err, apperr.KindBlockedContent):
		slog.InfoContext(ctx, "page is blocked, falling back to search", "url", rawURL, "error", err)
	default:
		slog.WarnContext(ctx, "direct fetch failed, falling back to search", "url", rawURL, "error", err)
	}

	if e.searcher == nil {
		metrics.ExtractTiers.WithLabelValues("none").Inc()
		return Metadata{}, apperr.E(apperr.KindValidation, op, ErrNoMetadata)
	}

	for _, q := range searchQueries(rawURL, u) {
		if err := ctx.Err(); err != nil {
			return Metadata{}, apperr.E(apperr.KindTransientNetwork, op, err)
		}

		results, err := e.searcher.Search(ctx, q.query, e.searchResults)
		if err != nil {
			if apperr.Is(err, apperr.KindRateLimit) {
				return Metadata{}, err
			}
			slog.WarnContext(ctx, "search tier failed", "tier", q.tier, "query", q.query, "error", err)
			continue
		}

		if md, ok := e.pick(rawURL, results); ok {
			md.Tier = q.tier
			metrics.ExtractTiers.WithLabelValues(string(q.tier)).Inc()
			return md, nil
		}
		slog.DebugContext(ctx, "search tier gave no usable results", "tier", q.tier, "query", q.query, "results", len(results))
	}

	metrics.ExtractTiers.WithLabelValues("none").Inc()
	return Metadata{}, apperr.E(apperr.KindValidation, op, ErrNoMetadata)
}

// Validate rejects not-found sentinels and values shorter than the configured minimums.
func (e *Extractor) Validate(title, snippet string) error {
	const op = "extract.Validate"
	title = strings.TrimSpace(title)
	snippet = strings.TrimSpace(snippet)

	switch {
	case e.rules.IsNotFound(title):
		return apperr.E(apperr.KindValidation, op, fmt.Errorf("title %q is a not-found sentinel", title))
	case e.rules.IsNotFound(snippet):
		return apperr.E(apperr.KindValidation, op, fmt.Errorf("snippet %q is a not-found sentinel", snippet))
	case utf8.RuneCountInString(title) < e.minTitle:
		return apperr.E(apperr.KindValidation, op, fmt.Errorf("title shorter than %d characters", e.minTitle))
	case utf8.RuneCountInString(snippet) < e.minSnippet:
		return apperr.E(apperr.KindValidation, op, fmt.Errorf("snippet shorter than %d characters", e.minSnippet))
	}
	return nil
}

func (e *Extractor) fetch(ctx context.Context, rawURL string) (Page, error) {
	const op = "extract.fetch"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, apperr.E(apperr.KindValidation, op, err)
	}
	setBrowserHeaders(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return Page{}, apperr.E(apperr.KindTransientNetwork, op, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Debug("failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{}, apperr.E(apperr.KindTransientNetwork, op, err)
	}

	page, perr := ParseHTML(bytes.NewReader(body))

	// Block markers only decide pages that gave nothing usable.
	ok := resp.StatusCode < http.StatusMultipleChoices
	if ok && perr == nil && e.Validate(page.Title, page.Snippet) == nil {
		return page, nil
	}

	if cat := Classify(string(body), e.rules.BlockMarkers); cat != CategoryNone {
		return Page{}, apperr.E(apperr.KindBlockedContent, op, fmt.Errorf("%s page (status %d)", cat, resp.StatusCode))
	}
	switch {
	case resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusServiceUnavailable:
		return Page{}, apperr.E(apperr.KindBlockedContent, op, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		return Page{}, apperr.E(apperr.KindTransientNetwork, op, fmt.Errorf("status %d", resp.StatusCode))
	}

	if perr != nil {
		return Page{}, apperr.E(apperr.KindValidation, op, perr)
	}
	return page, nil
}

// pick prefers a usable result that links to the target itself.
func (e *Extractor) pick(target string, results []SearchResult) (Metadata, bool) {
	var first *Metadata
	want := comparableURL(target)
	for _, r := range results {
		md := Metadata{Title: CleanText(r.Title), Snippet: CleanText(r.Snippet)}
		if e.Validate(md.Title, md.Snippet) != nil {
			continue
		}
		if comparableURL(r.Link) == want {
			return md, true
		}
		if first == nil {
			first = &md
		}
	}
	if first != nil {
		return *first, true
	}
	return Metadata{}, false
}

type tierQuery struct {
	tier  Tier
	query string
}

func searchQueries(rawURL string, u *url.URL) []tierQuery {
	domain := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	queries := []tierQuery{{TierSearchExact, rawURL}}
	if segs := lastPathSegments(u.Path, 2); len(segs) > 0 {
		queries = append(queries, tierQuery{TierSearchPath, "site:" + domain + " " + strings.Join(segs, " ")})
	}
	return append(queries, tierQuery{TierSearchSite, "site:" + domain})
}

func lastPathSegments(p string, n int) []string {
	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	if len(segs) > n {
		segs = segs[len(segs)-n:]
	}
	return segs
}

func comparableURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.") + strings.TrimSuffix(u.EscapedPath(), "/")
}

func setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}
