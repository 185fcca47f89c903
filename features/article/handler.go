package article

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"sciencefeed/internal/middleware"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 200
)

type Lister interface {
	List(ctx context.Context, offset, limit int) ([]Article, error)
}

type Handler struct {
	repo Lister
}

func NewHandler(repo Lister) *Handler {
	return &Handler{repo: repo}
}

// List serves GET /articles?offset=&limit=, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		h.writeError(ctx, w, "VALIDATION_ERROR", "offset must be a non-negative integer", http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", defaultPageLimit)
	if err != nil || limit <= 0 {
		h.writeError(ctx, w, "VALIDATION_ERROR", "limit must be a positive integer", http.StatusBadRequest)
		return
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	articles, err := h.repo.List(ctx, offset, limit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list articles", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if articles == nil {
		articles = []Article{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": articles,
		"meta": map[string]int{"count": len(articles), "offset": offset, "limit": limit},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
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
