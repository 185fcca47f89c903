package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sciencefeed/features/article"
	"sciencefeed/internal/apperr"
	"sciencefeed/internal/dedup"
	"sciencefeed/internal/extract"
	"sciencefeed/internal/metrics"
	"sciencefeed/internal/ratelimit"
)

const (
	DefaultItemTimeout      = 2 * time.Minute
	DefaultSummaryMaxTokens = 300
	DefaultBackfillPageSize = 50
)

var tracer = otel.Tracer("sciencefeed/ingest")

// Deps are the collaborators of the orchestrator. Completer, Embedder,
// Images, ImageStore, Searcher and Failures may be nil.
type Deps struct {
	Resolver   Resolver
	Extractor  Extractor
	Searcher   extract.Searcher
	Store      Store
	Completer  Completer
	Embedder   Embedder
	Images     ImageGenerator
	ImageStore ImageStore
	Failures   FailureRecorder
}

type Options struct {
	// AICallInterval spaces consecutive calls to AI collaborators within one batch.
	AICallInterval   time.Duration
	ItemTimeout      time.Duration
	BatchTimeout     time.Duration
	DedupPageSize    int
	SummaryMaxTokens int
	BackfillPageSize int
}

type Service struct {
	deps Deps
	opts Options
}

func NewService(d Deps, o Options) *Service {
	if o.ItemTimeout <= 0 {
		o.ItemTimeout = DefaultItemTimeout
	}
	if o.DedupPageSize <= 0 {
		o.DedupPageSize = dedup.DefaultPageSize
	}
	if o.SummaryMaxTokens <= 0 {
		o.SummaryMaxTokens = DefaultSummaryMaxTokens
	}
	if o.BackfillPageSize <= 0 {
		o.BackfillPageSize = DefaultBackfillPageSize
	}
	return &Service{deps: d, opts: o}
}

func (s *Service) Resolve(ctx context.Context, raw string) string {
	return s.deps.Resolver.Resolve(ctx, raw)
}

func (s *Service) Extract(ctx context.Context, raw string) (extract.Metadata, error) {
	return s.deps.Extractor.Extract(ctx, raw)
}

// IngestQuery asks the search provider for n candidates and ingests them.
func (s *Service) IngestQuery(ctx context.Context, query string, n int, opts BatchOptions) (*BatchResult, error) {
	const op = "ingest.IngestQuery"
	if s.deps.Searcher == nil {
		return nil, apperr.E(apperr.KindValidation, op, errors.New("no search provider configured"))
	}

	results, err := s.deps.Searcher.Search(ctx, query, n)
	if err != nil {
		if apperr.Is(err, apperr.KindRateLimit) {
			metrics.IngestBatches.WithLabelValues(string(StatusRateLimited)).Inc()
			return &BatchResult{Items: []ItemResult{}, Status: StatusRateLimited, Continuation: opts.After}, err
		}
		return nil, apperr.E(apperr.KindTransientNetwork, op, err)
	}

	candidates := make([]Candidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, Candidate{URL: r.Link, Title: r.Title, Snippet: r.Snippet})
	}
	return s.IngestBatch(ctx, candidates, opts)
}

// IngestURL ingests one submitted URL.
func (s *Service) IngestURL(ctx context.Context, raw string) (*BatchResult, error) {
	return s.IngestBatch(ctx, []Candidate{{URL: strings.TrimSpace(raw)}}, BatchOptions{})
}

// IngestBatch processes candidates sequentially against a private snapshot of
// known URLs. Per-item problems end up in the result; only a rate limit, a
// timeout or cancellation, or a failed dedup read return an error, together
// with the partial result.
func (s *Service) IngestBatch(ctx context.Context, candidates []Candidate, opts BatchOptions) (res *BatchResult, err error) {
	const op = "ingest.IngestBatch"

	ctx, span := tracer.Start(ctx, "ingest.IngestBatch", trace.WithAttributes(attribute.Int("ingest.candidates", len(candidates))))
	defer span.End()

	if s.opts.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.BatchTimeout)
		defer cancel()
	}

	start := time.Now()
	res = &BatchResult{Items: []ItemResult{}, Status: StatusCompleted, Continuation: opts.After}
	defer func() {
		metrics.IngestBatches.WithLabelValues(string(res.Status)).Inc()
		metrics.IngestBatchDuration.Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.Int("ingest.added", res.Added), attribute.String("ingest.status", string(res.Status)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		slog.InfoContext(ctx, "ingest batch finished", "status", res.Status, "added", res.Added, "items", len(res.Items), "duration", time.Since(start))
	}()

	idx, err := dedup.Load(ctx, s.deps.Store, s.opts.DedupPageSize)
	if err != nil {
		res.Status = StatusAborted
		return res, err
	}

	runner := ratelimit.NewRunner(s.opts.AICallInterval)
	for _, c := range remaining(candidates, opts.After) {
		if cerr := ctx.Err(); cerr != nil {
			res.Status = StatusInterrupted
			return res, apperr.E(apperr.KindTransientNetwork, op, cerr)
		}

		item, ierr := s.ingestOne(ctx, idx, runner, c)
		if ierr != nil {
			if item.Status == ItemAdded || item.Status == ItemDuplicate {
				res.record(item, c.URL)
			}
			res.Status = StatusRateLimited
			return res, ierr
		}
		if cerr := ctx.Err(); cerr != nil {
			res.Status = StatusInterrupted
			return res, apperr.E(apperr.KindTransientNetwork, op, cerr)
		}

		res.record(item, c.URL)
	}
	return res, nil
}

func (b *BatchResult) record(item ItemResult, candidateURL string) {
	metrics.IngestItems.WithLabelValues(string(item.Status)).Inc()
	b.Items = append(b.Items, item)
	if item.Status == ItemAdded {
		b.Added++
	}
	b.Continuation = candidateURL
}

// remaining drops every candidate up to and including after. An unknown
// after keeps the whole list.
func remaining(candidates []Candidate, after string) []Candidate {
	if after == "" {
		return candidates
	}
	for i, c := range candidates {
		if c.URL == after {
			return candidates[i+1:]
		}
	}
	return candidates
}

// ingestOne returns an error only for a rate limit, which ends the batch. An
// item that was stored or found duplicate before the limit hit keeps that status.
func (s *Service) ingestOne(ctx context.Context, idx *dedup.Index, runner *ratelimit.Runner, c Candidate) (ItemResult, error) {
	ctx, span := tracer.Start(ctx, "ingest.item", trace.WithAttributes(attribute.String("ingest.url", c.URL)))
	defer span.End()

	r := ItemResult{URL: c.URL}

	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		r.Status, r.Reason = ItemRejected, "unsupported url scheme"
		return r, nil
	}
	if idx.Contains(c.URL) {
		r.Status, r.Reason = ItemDuplicate, "already known"
		return r, nil
	}

	itemCtx, cancel := context.WithTimeout(ctx, s.opts.ItemTimeout)
	defer cancel()

	resolved := s.deps.Resolver.Resolve(itemCtx, c.URL)
	r.ResolvedURL = resolved
	if resolved != c.URL && idx.Contains(resolved) {
		idx.Add(c.URL)
		r.Status, r.Reason = ItemDuplicate, "resolved url already known"
		return r, nil
	}

	md, err := s.deps.Extractor.Extract(itemCtx, resolved)
	if err != nil {
		switch {
		case apperr.Is(err, apperr.KindRateLimit):
			r.Status, r.Reason = ItemFailed, err.Error()
			return r, err
		case apperr.Is(err, apperr.KindValidation):
			fallback, ok := s.candidateMetadata(c)
			if !ok {
				r.Status, r.Reason = ItemRejected, err.Error()
				return r, nil
			}
			md = fallback
		default:
			s.fail(ctx, &r, err)
			return r, nil
		}
	}
	r.Tier = md.Tier

	a := &article.Article{
		URL:          resolved,
		Title:        md.Title,
		Snippet:      md.Snippet,
		SourceDomain: domainOf(resolved),
	}
	_, enrichErr := s.enrich(itemCtx, runner, a)
	if enrichErr != nil {
		slog.WarnContext(ctx, "enrichment stopped early", "url", resolved, "error", enrichErr)
	}

	if err := s.deps.Store.Insert(itemCtx, a); err != nil {
		if apperr.Is(err, apperr.KindDuplicate) || errors.Is(err, article.ErrDuplicate) {
			r.Status, r.Reason = ItemDuplicate, "inserted concurrently"
			idx.Add(c.URL)
			idx.Add(resolved)
			return r, rateLimited(enrichErr)
		}
		s.fail(ctx, &r, apperr.E(apperr.KindStorage, "ingest.insert", err))
		return r, rateLimited(enrichErr)
	}

	idx.Add(c.URL)
	idx.Add(resolved)
	r.Status, r.ArticleID = ItemAdded, a.ID
	slog.InfoContext(ctx, "article ingested", "url", resolved, "id", a.ID, "tier", md.Tier)
	return r, rateLimited(enrichErr)
}

// rateLimited passes err through only when it is a rate limit.
func rateLimited(err error) error {
	if apperr.Is(err, apperr.KindRateLimit) {
		return err
	}
	return nil
}

// candidateMetadata uses the search provider's own title and snippet when
// they pass the validation gate.
func (s *Service) candidateMetadata(c Candidate) (extract.Metadata, bool) {
	title, snippet := extract.CleanText(c.Title), extract.CleanText(c.Snippet)
	if title == "" || s.deps.Extractor.Validate(title, snippet) != nil {
		return extract.Metadata{}, false
	}
	return extract.Metadata{Title: title, Snippet: snippet, Tier: TierCandidate}, true
}

func (s *Service) fail(ctx context.Context, r *ItemResult, cause error) {
	r.Status, r.Reason = ItemFailed, cause.Error()
	slog.WarnContext(ctx, "ingest item failed", "url", r.URL, "error", cause)

	if s.deps.Failures == nil || ctx.Err() != nil {
		return
	}
	kind := apperr.KindOf(cause)
	if kind != apperr.KindTransientNetwork && kind != apperr.KindStorage && !errors.Is(cause, context.DeadlineExceeded) {
		return
	}
	if err := s.deps.Failures.RecordFailure(ctx, r.URL, cause); err != nil {
		slog.ErrorContext(ctx, "failed to record failed item", "url", r.URL, "error", err)
	}
}

// Backfill fills missing summaries, embeddings and images for articles with
// id greater than after, visiting at most limit articles.
func (s *Service) Backfill(ctx context.Context, after int64, limit int) (*BackfillResult, error) {
	const op = "ingest.Backfill"

	ctx, span := tracer.Start(ctx, "ingest.Backfill")
	defer span.End()

	if s.opts.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.BatchTimeout)
		defer cancel()
	}

	res := &BackfillResult{Continuation: after}
	runner := ratelimit.NewRunner(s.opts.AICallInterval)

	for limit <= 0 || res.Processed < limit {
		pageSize := s.opts.BackfillPageSize
		if limit > 0 && limit-res.Processed < pageSize {
			pageSize = limit - res.Processed
		}

		page, err := s.deps.Store.ListNeedingEnrichment(ctx, res.Continuation, pageSize)
		if err != nil {
			return res, apperr.E(apperr.KindStorage, op, err)
		}

		for i := range page {
			if cerr := ctx.Err(); cerr != nil {
				return res, apperr.E(apperr.KindTransientNetwork, op, cerr)
			}

			a := &page[i]
			changed, err := s.enrich(ctx, runner, a)
			if err != nil {
				return res, err
			}
			if changed {
				if err := s.deps.Store.UpdateEnrichment(ctx, a); err != nil {
					slog.WarnContext(ctx, "failed to store enrichment", "id", a.ID, "error", err)
				} else {
					res.Updated++
				}
			}
			res.Processed++
			res.Continuation = a.ID
		}

		if len(page) < pageSize {
			res.Done = true
			break
		}
	}

	span.SetAttributes(attribute.Int("backfill.processed", res.Processed), attribute.Int("backfill.updated", res.Updated))
	slog.InfoContext(ctx, "backfill finished", "processed", res.Processed, "updated", res.Updated, "continuation", res.Continuation, "done", res.Done)
	return res, nil
}

// enrich fills whichever of summary, embedding and image are missing, and
// recomputes the embedding when a new summary was written. Each
// step is optional and a failure only leaves its field empty. A rate limit or
// an ended context stops the remaining steps and is returned.
func (s *Service) enrich(ctx context.Context, runner *ratelimit.Runner, a *article.Article) (bool, error) {
	changed, resummarized := false, false

	stop := func(step string, err error) error {
		if apperr.Is(err, apperr.KindRateLimit) || ctx.Err() != nil {
			return fmt.Errorf("%s: %w", step, err)
		}
		slog.WarnContext(ctx, "enrichment step failed", "step", step, "url", a.URL, "error", err)
		return nil
	}

	if a.Summary == "" && s.deps.Completer != nil {
		err := runner.Do(ctx, func(ctx context.Context) error {
			text, err := s.deps.Completer.Complete(ctx, summaryPrompt(a), s.opts.SummaryMaxTokens)
			if err == nil {
				a.Summary = text
			}
			return err
		})
		if err == nil {
			changed, resummarized = true, true
		} else if serr := stop("summary", err); serr != nil {
			return changed, serr
		}
	}

	// An embedding built from the snippet is stale once a summary exists.
	if (len(a.Embedding) == 0 || resummarized) && s.deps.Embedder != nil && strings.TrimSpace(a.Text()) != "" {
		err := runner.Do(ctx, func(ctx context.Context) error {
			v, err := s.deps.Embedder.Embed(ctx, a.Text())
			if err == nil {
				a.Embedding = v
			}
			return err
		})
		if err == nil {
			changed = true
		} else if serr := stop("embedding", err); serr != nil {
			return changed, serr
		}
	}

	if a.ImageRef == "" && s.deps.Images != nil && s.deps.ImageStore != nil {
		err := runner.Do(ctx, func(ctx context.Context) error {
			png, err := s.deps.Images.Generate(ctx, imagePrompt(a))
			if err != nil {
				return err
			}
			ref, err := s.deps.ImageStore.PutImage(ctx, a.URL, png)
			if err == nil {
				a.ImageRef = ref
			}
			return err
		})
		if err == nil {
			changed = true
		} else if serr := stop("image", err); serr != nil {
			return changed, serr
		}
	}

	return changed, nil
}

func summaryPrompt(a *article.Article) string {
	return fmt.Sprintf("Summarize this research news item in two or three plain sentences for a general audience.\n\nTitle: %s\n\n%s", a.Title, a.Snippet)
}

func imagePrompt(a *article.Article) string {
	return fmt.Sprintf("An editorial illustration for a science news story titled %q. No text in the image.", a.Title)
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
