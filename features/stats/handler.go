package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"sciencefeed/internal/middleware"
)

type Counter interface {
	Count(ctx context.Context) (int, error)
}

type DocumentRepo interface {
	Count(ctx context.Context) (int, error)
	CountChunks(ctx context.Context) (int, error)
}

type Handler struct {
	articles  Counter
	documents DocumentRepo
	jobs      Counter
}

func NewHandler(a Counter, d DocumentRepo, j Counter) *Handler {
	return &Handler{articles: a, documents: d, jobs: j}
}

type StatsResponse struct {
	Articles   int `json:"articles"`
	Documents  int `json:"documents"`
	Chunks     int `json:"chunks"`
	FailedJobs int `json:"failed_jobs"`
}

// GetStats serves GET /stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var resp StatsResponse
	counts := []struct {
		name string
		fn   func(context.Context) (int, error)
		dst  *int
	}{
		{"articles", h.articles.Count, &resp.Articles},
		{"documents", h.documents.Count, &resp.Documents},
		{"chunks", h.documents.CountChunks, &resp.Chunks},
		{"failed jobs", h.jobs.Count, &resp.FailedJobs},
	}

	for _, c := range counts {
		n, err := c.fn(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to count "+c.name, "error", err)
			h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count "+c.name, http.StatusInternalServerError)
			return
		}
		*c.dst = n
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
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
