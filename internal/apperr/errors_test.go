package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"sciencefeed/internal/apperr"
)

func TestKindOf(t *testing.T) {
	base := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"Nil", nil, ""},
		{"Plain", base, ""},
		{"Direct", apperr.E(apperr.KindTransientNetwork, "fetch", base), apperr.KindTransientNetwork},
		{"Wrapped", fmt.Errorf("item failed: %w", apperr.E(apperr.KindRateLimit, "search", base)), apperr.KindRateLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperr.KindOf(tt.err))
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	base := errors.New("boom")
	err := apperr.E(apperr.KindStorage, "article.Insert", base)

	assert.ErrorIs(t, err, base)
	assert.True(t, apperr.Is(err, apperr.KindStorage))
	assert.False(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, "article.Insert: storage: boom", err.Error())
}
