package ingest

import (
	"context"

	"sciencefeed/features/article"
	"sciencefeed/internal/extract"
)

// BatchStatus is the outcome of a whole batch.
type BatchStatus string

const (
	StatusCompleted   BatchStatus = "completed"
	StatusRateLimited BatchStatus = "rate_limited"
	StatusInterrupted BatchStatus = "interrupted"
	StatusAborted     BatchStatus = "aborted"
)

// ItemStatus is the outcome of one candidate.
type ItemStatus string

const (
	ItemAdded     ItemStatus = "added"
	ItemDuplicate ItemStatus = "duplicate"
	ItemRejected  ItemStatus = "rejected"
	ItemFailed    ItemStatus = "failed"
)

// TierCandidate marks metadata taken from the search provider's own
// title and snippet after extraction was rejected.
const TierCandidate extract.Tier = "candidate"

// Candidate is an unresolved (url, title, snippet) tuple, usually from a search provider.
type Candidate struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

type ItemResult struct {
	URL         string       `json:"url"`
	ResolvedURL string       `json:"resolved_url,omitempty"`
	Status      ItemStatus   `json:"status"`
	Reason      string       `json:"reason,omitempty"`
	ArticleID   int64        `json:"article_id,omitempty"`
	Tier        extract.Tier `json:"tier,omitempty"`
}

type BatchResult struct {
	Added int          `json:"added"`
	Items []ItemResult `json:"items"`
	// Continuation is the URL of the last fully processed candidate. Passing it
	// back as BatchOptions.After resumes after that candidate.
	Continuation string      `json:"continuation,omitempty"`
	Status       BatchStatus `json:"status"`
}

type BatchOptions struct {
	After string `json:"after,omitempty"`
}

type BackfillResult struct {
	Processed    int   `json:"processed"`
	Updated      int   `json:"updated"`
	Continuation int64 `json:"continuation"`
	Done         bool  `json:"done"`
}

type Resolver interface {
	Resolve(ctx context.Context, url string) string
}

type Extractor interface {
	Extract(ctx context.Context, url string) (extract.Metadata, error)
	Validate(title, snippet string) error
}

// Store is the article persistence the orchestrator needs.
type Store interface {
	ListURLs(ctx context.Context, offset, limit int) ([]string, error)
	Insert(ctx context.Context, a *article.Article) error
	ListNeedingEnrichment(ctx context.Context, afterID int64, limit int) ([]article.Article, error)
	UpdateEnrichment(ctx context.Context, a *article.Article) error
}

type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

type ImageStore interface {
	PutImage(ctx context.Context, articleURL string, png []byte) (string, error)
}

// FailureRecorder keeps retryable per-item failures for a later retry.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, url string, cause error) error
}
