package worker

import (
	"context"

	"sciencefeed/internal/ingest"
)

// URLIngester ingests one submitted URL as a batch of one.
type URLIngester interface {
	IngestURL(ctx context.Context, url string) (*ingest.BatchResult, error)
}

// DocumentIndexer chunks and embeds one document.
type DocumentIndexer interface {
	Index(ctx context.Context, documentID int64) (int, error)
}
