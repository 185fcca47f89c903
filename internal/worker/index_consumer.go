package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"sciencefeed/features/document"
	"sciencefeed/internal/middleware"
	"sciencefeed/internal/queue"
)

const defaultIndexTimeout = 5 * time.Minute

// IndexConsumer handles document.index messages.
type IndexConsumer struct {
	indexer DocumentIndexer
	timeout time.Duration
}

func NewIndexConsumer(i DocumentIndexer, timeout time.Duration) *IndexConsumer {
	if timeout <= 0 {
		timeout = defaultIndexTimeout
	}
	return &IndexConsumer{indexer: i, timeout: timeout}
}

func (h *IndexConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload queue.IndexDocumentMessage
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}
	if payload.DocumentID <= 0 {
		slog.ErrorContext(ctx, "invalid document id, dropping", "document_id", payload.DocumentID)
		return nil
	}

	indexCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	n, err := h.indexer.Index(indexCtx, payload.DocumentID)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) || errors.Is(err, document.ErrInactive) {
			slog.WarnContext(ctx, "document not indexable, dropping", "document_id", payload.DocumentID, "error", err)
			return nil
		}
		slog.ErrorContext(ctx, "document indexing failed", "document_id", payload.DocumentID, "error", err)
		return err // Retry
	}

	slog.InfoContext(ctx, "document indexed", "document_id", payload.DocumentID, "chunks", n)
	return nil
}
