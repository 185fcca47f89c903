package document

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"sciencefeed/internal/config"
	"sciencefeed/internal/middleware"
	"sciencefeed/internal/queue"
	"sciencefeed/internal/text"
)

type Getter interface {
	Get(ctx context.Context, id int64) (*Document, error)
}

type Handler struct {
	repo    Getter
	pub     queue.Publisher
	chunker *text.Chunker
}

func NewHandler(repo Getter, pub queue.Publisher, chunker *text.Chunker) *Handler {
	return &Handler{repo: repo, pub: pub, chunker: chunker}
}

// Index serves POST /documents/{id}/index. The work happens asynchronously
// in the index consumer.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid document id", http.StatusBadRequest)
		return
	}

	doc, err := h.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(ctx, w, "NOT_FOUND", "Document not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to load document", "id", id, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if !doc.Active {
		h.writeError(ctx, w, "VALIDATION_ERROR", ErrInactive.Error(), http.StatusConflict)
		return
	}

	msg := queue.IndexDocumentMessage{DocumentID: id, CorrelationID: correlationID}
	if err := queue.PublishJSON(h.pub, config.TopicDocumentIndex, msg); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue document index", "id", id, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	slog.InfoContext(ctx, "document index queued", "id", id)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{"document_id": id, "status": "queued"}}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

type chunkRequest struct {
	Text         string `json:"text"`
	MaxChunkSize int    `json:"max_chunk_size"`
	Overlap      *int   `json:"overlap"`
}

// Chunk serves POST /chunk and returns the pieces the indexer would store.
func (h *Handler) Chunk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req chunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid request body", http.StatusBadRequest)
		return
	}

	c := h.chunker
	if req.MaxChunkSize > 0 || req.Overlap != nil {
		maxSize, overlap := c.MaxChunkSize(), c.Overlap()
		if req.MaxChunkSize > 0 {
			maxSize = req.MaxChunkSize
		}
		if req.Overlap != nil {
			overlap = *req.Overlap
		}
		if overlap < 0 || overlap >= maxSize {
			h.writeError(ctx, w, "VALIDATION_ERROR", "overlap must be non-negative and smaller than max_chunk_size", http.StatusBadRequest)
			return
		}
		c = text.NewChunker(text.WithMaxChunkSize(maxSize), text.WithOverlap(overlap))
	}

	chunks := c.Chunk(req.Text)
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": chunks,
		"meta": map[string]int{"count": len(chunks), "max_chunk_size": c.MaxChunkSize(), "overlap": c.Overlap()},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
