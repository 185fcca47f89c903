package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sciencefeed/internal/apperr"
)

// MaskedKey replaces the stored API key in responses. Sending it back in a
// patch leaves the key unchanged.
const MaskedKey = "********"

var ErrInvalid = errors.New("invalid settings")

// Settings holds the runtime-tunable knobs stored in the single settings row.
type Settings struct {
	ID                  int       `json:"-"`
	GeminiAPIKey        string    `json:"gemini_api_key"`
	SimilarityThreshold float64   `json:"similarity_threshold"`
	TopK                int       `json:"top_k"`
	FallbackLimit       int       `json:"fallback_limit"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (s Settings) Masked() Settings {
	if s.GeminiAPIKey != "" {
		s.GeminiAPIKey = MaskedKey
	}
	return s
}

func (s *Settings) Validate() error {
	if s.SimilarityThreshold < -1 || s.SimilarityThreshold > 1 {
		return apperr.E(apperr.KindValidation, "settings", fmt.Errorf("%w: similarity_threshold must be within [-1, 1]", ErrInvalid))
	}
	if s.TopK <= 0 {
		return apperr.E(apperr.KindValidation, "settings", fmt.Errorf("%w: top_k must be positive", ErrInvalid))
	}
	if s.FallbackLimit <= 0 {
		return apperr.E(apperr.KindValidation, "settings", fmt.Errorf("%w: fallback_limit must be positive", ErrInvalid))
	}
	return nil
}

// Patch is a partial update. Nil fields keep their stored value.
type Patch struct {
	GeminiAPIKey        *string  `json:"gemini_api_key"`
	SimilarityThreshold *float64 `json:"similarity_threshold"`
	TopK                *int     `json:"top_k"`
	FallbackLimit       *int     `json:"fallback_limit"`
}

func (p Patch) apply(s *Settings) {
	if p.GeminiAPIKey != nil && *p.GeminiAPIKey != MaskedKey {
		s.GeminiAPIKey = *p.GeminiAPIKey
	}
	if p.SimilarityThreshold != nil {
		s.SimilarityThreshold = *p.SimilarityThreshold
	}
	if p.TopK != nil {
		s.TopK = *p.TopK
	}
	if p.FallbackLimit != nil {
		s.FallbackLimit = *p.FallbackLimit
	}
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	return s.repo.Get(ctx)
}

// Update applies p to the stored row and returns the result.
func (s *Service) Update(ctx context.Context, p Patch) (*Settings, error) {
	set, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	p.apply(set)
	if err := set.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, set); err != nil {
		return nil, err
	}
	return set, nil
}

// SeedAPIKey stores key when the settings row has none yet.
func (s *Service) SeedAPIKey(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	set, err := s.repo.Get(ctx)
	if err != nil {
		return false, err
	}
	if set.GeminiAPIKey != "" {
		return false, nil
	}
	set.GeminiAPIKey = key
	return true, s.repo.Update(ctx, set)
}
