package document

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"sciencefeed/internal/metrics"
	"sciencefeed/internal/ratelimit"
)

type Repository interface {
	Get(ctx context.Context, id int64) (*Document, error)
	HasChunks(ctx context.Context, documentID int64) (bool, error)
	InsertChunks(ctx context.Context, documentID int64, chunks []Chunk) error
	UpdateEmbedding(ctx context.Context, id int64, embedding []float32) error
}

type Chunker interface {
	Chunk(text string) []string
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Indexer struct {
	repo     Repository
	chunker  Chunker
	embedder Embedder
	runner   *ratelimit.Runner
	logger   *slog.Logger
}

// NewIndexer builds an indexer. embedder may be nil, in which case chunks are
// stored without embeddings.
func NewIndexer(repo Repository, c Chunker, e Embedder, runner *ratelimit.Runner, logger *slog.Logger) *Indexer {
	if runner == nil {
		runner = ratelimit.NewRunner(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{repo: repo, chunker: c, embedder: e, runner: runner, logger: logger}
}

// Index chunks and embeds one active document and returns the number of
// chunks written. Documents that already have chunks are left untouched.
func (ix *Indexer) Index(ctx context.Context, documentID int64) (int, error) {
	doc, err := ix.repo.Get(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if !doc.Active {
		return 0, ErrInactive
	}

	exists, err := ix.repo.HasChunks(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("check chunks: %w", err)
	}
	if exists {
		ix.logger.InfoContext(ctx, "document already chunked", "document_id", documentID)
		return 0, nil
	}

	if strings.TrimSpace(doc.Content) == "" {
		ix.logger.InfoContext(ctx, "document has no content to index", "document_id", documentID)
		return 0, nil
	}

	pieces := ix.chunker.Chunk(doc.Content)
	chunks := make([]Chunk, 0, len(pieces))
	for i, p := range pieces {
		chunks = append(chunks, Chunk{DocumentID: documentID, Index: i, Text: p, Embedding: ix.embed(ctx, p)})
	}

	if err := ix.repo.InsertChunks(ctx, documentID, chunks); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}
	metrics.ChunksIndexed.Add(float64(len(chunks)))

	if len(doc.Embedding) == 0 {
		if emb := ix.embed(ctx, doc.Content); emb != nil {
			if err := ix.repo.UpdateEmbedding(ctx, documentID, emb); err != nil {
				ix.logger.WarnContext(ctx, "failed to store document embedding", "document_id", documentID, "error", err)
			}
		}
	}

	ix.logger.InfoContext(ctx, "document indexed", "document_id", documentID, "chunks", len(chunks))
	return len(chunks), nil
}

// embed returns nil when no embedder is configured or the call fails.
func (ix *Indexer) embed(ctx context.Context, text string) []float32 {
	if ix.embedder == nil || strings.TrimSpace(text) == "" {
		return nil
	}

	var out []float32
	err := ix.runner.Do(ctx, func(ctx context.Context) error {
		v, err := ix.embedder.Embed(ctx, text)
		out = v
		return err
	})
	if err != nil {
		ix.logger.WarnContext(ctx, "embedding failed, leaving field empty", "error", err)
		return nil
	}
	return out
}
