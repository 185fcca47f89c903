package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"sciencefeed/internal/middleware"
	"sciencefeed/internal/queue"
)

// SubmissionConsumer handles ingest.url messages.
type SubmissionConsumer struct {
	ingester URLIngester
}

func NewSubmissionConsumer(i URLIngester) *SubmissionConsumer {
	return &SubmissionConsumer{ingester: i}
}

// HandleMessage acks malformed messages and per-item outcomes. A batch-level
// error (rate limit, timeout, dedup read failure) is returned so nsq requeues
// the message with backoff.
func (h *SubmissionConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload queue.IngestURLMessage
	err := json.Unmarshal(m.Body, &payload)

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if err != nil {
		slog.ErrorContext(ctx, "poison pill: invalid json", "error", err)
		return nil
	}
	payload.URL = strings.TrimSpace(payload.URL)
	if payload.URL == "" {
		slog.ErrorContext(ctx, "missing url, dropping")
		return nil
	}

	res, err := h.ingester.IngestURL(ctx, payload.URL)
	if err != nil {
		slog.WarnContext(ctx, "url submission will be retried", "url", payload.URL, "attempts", m.Attempts, "error", err)
		return err
	}

	for _, item := range res.Items {
		slog.InfoContext(ctx, "url submission processed", "url", item.URL, "status", item.Status, "reason", item.Reason, "article_id", item.ArticleID)
	}
	return nil
}
