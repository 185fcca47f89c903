package settings

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"sciencefeed/internal/apperr"
	"sciencefeed/internal/middleware"
)

const maxPatchBytes = 4 << 10

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// GetSettings serves GET /settings. The API key is masked.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Get(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to read settings", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "failed to read settings", http.StatusInternalServerError)
		return
	}
	h.writeData(r.Context(), w, s.Masked())
}

// UpdateSettings serves PUT /settings with a partial body.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var p Patch
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPatchBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "invalid settings body: "+err.Error(), http.StatusBadRequest)
		return
	}

	s, err := h.svc.Update(r.Context(), p)
	if err != nil {
		if apperr.Is(err, apperr.KindValidation) {
			h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
		slog.ErrorContext(r.Context(), "failed to update settings", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "failed to update settings", http.StatusInternalServerError)
		return
	}
	slog.InfoContext(r.Context(), "settings updated", "top_k", s.TopK, "similarity_threshold", s.SimilarityThreshold, "fallback_limit", s.FallbackLimit)
	h.writeData(r.Context(), w, s.Masked())
}

func (h *Handler) writeData(ctx context.Context, w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
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
		slog.ErrorContext(ctx, "failed to encode error response", "error", err)
	}
}
