package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"sciencefeed/internal/apperr"
	"sciencefeed/internal/config"
	"sciencefeed/internal/extract"
	"sciencefeed/internal/middleware"
	"sciencefeed/internal/queue"
)

const (
	defaultQueryResults = 10
	maxBatchSize        = 100
)

// Ingester is the part of Service the HTTP surface drives.
type Ingester interface {
	IngestBatch(ctx context.Context, candidates []Candidate, opts BatchOptions) (*BatchResult, error)
	IngestQuery(ctx context.Context, query string, n int, opts BatchOptions) (*BatchResult, error)
	Backfill(ctx context.Context, after int64, limit int) (*BackfillResult, error)
	Resolve(ctx context.Context, raw string) string
	Extract(ctx context.Context, raw string) (extract.Metadata, error)
}

type Handler struct {
	svc Ingester
	pub queue.Publisher
}

func NewHandler(svc Ingester, pub queue.Publisher) *Handler {
	return &Handler{svc: svc, pub: pub}
}

type batchRequest struct {
	Candidates []Candidate `json:"candidates"`
	After      string      `json:"after"`
}

// Batch serves POST /ingest.
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if len(req.Candidates) == 0 {
		h.writeError(ctx, w, "VALIDATION_ERROR", "candidates are required", http.StatusBadRequest)
		return
	}
	if len(req.Candidates) > maxBatchSize {
		h.writeError(ctx, w, "VALIDATION_ERROR", "too many candidates", http.StatusBadRequest)
		return
	}

	res, err := h.svc.IngestBatch(ctx, req.Candidates, BatchOptions{After: req.After})
	h.writeBatch(ctx, w, res, err)
}

type queryRequest struct {
	Query string `json:"query"`
	N     int    `json:"n"`
	After string `json:"after"`
}

// Query serves POST /ingest/query.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid JSON body", http.StatusBadRequest)
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "query is required", http.StatusBadRequest)
		return
	}
	if req.N <= 0 {
		req.N = defaultQueryResults
	}

	res, err := h.svc.IngestQuery(ctx, req.Query, req.N, BatchOptions{After: req.After})
	h.writeBatch(ctx, w, res, err)
}

type urlRequest struct {
	URL string `json:"url"`
}

// Submit serves POST /ingest/url. The URL is queued for the submission consumer.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	raw, ok := h.decodeURL(w, r)
	if !ok {
		return
	}

	msg := queue.IngestURLMessage{URL: raw, CorrelationID: correlationID}
	if err := queue.PublishJSON(h.pub, config.TopicIngestURL, msg); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue url", "url", raw, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	slog.InfoContext(ctx, "url submission queued", "url", raw)
	h.writeJSON(ctx, w, http.StatusAccepted, map[string]interface{}{"url": raw, "status": "queued"})
}

type backfillRequest struct {
	After int64 `json:"after"`
	Limit int   `json:"limit"`
}

// Backfill serves POST /backfill.
func (h *Handler) Backfill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req backfillRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid JSON body", http.StatusBadRequest)
			return
		}
	}
	if req.After < 0 || req.Limit < 0 {
		h.writeError(ctx, w, "VALIDATION_ERROR", "after and limit must be non-negative", http.StatusBadRequest)
		return
	}

	res, err := h.svc.Backfill(ctx, req.After, req.Limit)
	if err != nil {
		slog.WarnContext(ctx, "backfill ended early", "error", err)
		h.writePartial(ctx, w, statusFor(err), err, res)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, res)
}

// Resolve serves POST /resolve.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw, ok := h.decodeURL(w, r)
	if !ok {
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]string{"url": raw, "resolved_url": h.svc.Resolve(ctx, raw)})
}

// Extract serves POST /extract.
func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw, ok := h.decodeURL(w, r)
	if !ok {
		return
	}

	md, err := h.svc.Extract(ctx, raw)
	if err != nil {
		if apperr.Is(err, apperr.KindValidation) {
			h.writeError(ctx, w, "UNPROCESSABLE", err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.writeError(ctx, w, codeFor(err), err.Error(), statusFor(err))
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]string{"url": raw, "title": md.Title, "snippet": md.Snippet, "tier": string(md.Tier)})
}

func (h *Handler) decodeURL(w http.ResponseWriter, r *http.Request) (string, bool) {
	ctx := r.Context()

	var req urlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid JSON body", http.StatusBadRequest)
		return "", false
	}
	raw := strings.TrimSpace(req.URL)
	u, err := url.Parse(raw)
	if raw == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "url must be an absolute http(s) URL", http.StatusBadRequest)
		return "", false
	}
	return raw, true
}

func (h *Handler) writeBatch(ctx context.Context, w http.ResponseWriter, res *BatchResult, err error) {
	if err != nil {
		slog.WarnContext(ctx, "ingest batch ended early", "error", err)
		if res == nil {
			h.writeError(ctx, w, codeFor(err), err.Error(), statusFor(err))
			return
		}
		h.writePartial(ctx, w, statusFor(err), err, res)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, res)
}

// statusFor maps a batch-level error to the HTTP status of the response.
func statusFor(err error) int {
	switch {
	case apperr.Is(err, apperr.KindRateLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case apperr.Is(err, apperr.KindValidation):
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

func codeFor(err error) string {
	switch {
	case apperr.Is(err, apperr.KindRateLimit):
		return "RATE_LIMITED"
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	case apperr.Is(err, apperr.KindValidation):
		return "VALIDATION_ERROR"
	default:
		return "UNAVAILABLE"
	}
}

func (h *Handler) writePartial(ctx context.Context, w http.ResponseWriter, status int, err error, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"data": data,
		"error": map[string]string{
			"code":    codeFor(err),
			"message": err.Error(),
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": data}); err != nil {
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
