package article

import (
	"errors"
	"time"

	"sciencefeed/internal/retrieval"
)

var (
	ErrDuplicate = errors.New("article already exists")
	ErrNotFound  = errors.New("article not found")
)

type Article struct {
	ID           int64     `json:"id"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Snippet      string    `json:"snippet"`
	Summary      string    `json:"summary"`
	Embedding    []float32 `json:"-"`
	ImageRef     string    `json:"image_ref,omitempty"`
	SourceDomain string    `json:"source_domain"`
	ProcessedAt  time.Time `json:"processed_at"`
	Posted       bool      `json:"posted"`
}

// Text is the body used for ranking: the summary when present, else the snippet.
func (a *Article) Text() string {
	if a.Summary != "" {
		return a.Summary
	}
	return a.Snippet
}

// NeedsEnrichment reports whether a backfill pass has anything to fill.
func (a *Article) NeedsEnrichment() bool {
	return a.Summary == "" || len(a.Embedding) == 0 || a.ImageRef == ""
}

func (a *Article) Item() retrieval.Item {
	return retrieval.Item{
		Kind:        retrieval.KindArticle,
		ID:          a.ID,
		Title:       a.Title,
		Text:        a.Text(),
		URL:         a.URL,
		ImageRef:    a.ImageRef,
		ProcessedAt: a.ProcessedAt,
	}
}
