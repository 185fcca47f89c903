package settings_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sciencefeed/internal/apperr"
	"sciencefeed/internal/settings"
)

const selectSettings = "SELECT id, gemini_api_key, similarity_threshold, top_k, fallback_limit, updated_at FROM settings WHERE id = $1"

func TestPostgresRepo_Get(t *testing.T) {
	updated := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		setup   func(sqlmock.Sqlmock)
		want    *settings.Settings
		wantErr bool
	}{
		{
			name: "Success",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(regexp.QuoteMeta(selectSettings)).
					WithArgs(1).
					WillReturnRows(sqlmock.NewRows([]string{"id", "gemini_api_key", "similarity_threshold", "top_k", "fallback_limit", "updated_at"}).
						AddRow(1, "key", 0.7, 7, 10, updated))
			},
			want: &settings.Settings{ID: 1, GeminiAPIKey: "key", SimilarityThreshold: 0.7, TopK: 7, FallbackLimit: 10, UpdatedAt: updated},
		},
		{
			name: "Storage Error",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(regexp.QuoteMeta(selectSettings)).WillReturnError(sqlmock.ErrCancelled)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			tt.setup(mock)

			got, err := settings.NewPostgresRepo(db).Get(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.Is(err, apperr.KindStorage))
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresRepo_Update(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := &settings.Settings{
		GeminiAPIKey:        "k2",
		SimilarityThreshold: 0.65,
		TopK:                9,
		FallbackLimit:       20,
	}
	stamp := time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE settings SET gemini_api_key = \$1, similarity_threshold = \$2, top_k = \$3, fallback_limit = \$4, updated_at = NOW\(\) WHERE id = \$5 RETURNING updated_at`).
		WithArgs("k2", 0.65, 9, 20, 1).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(stamp))

	require.NoError(t, settings.NewPostgresRepo(db).Update(context.Background(), s))
	assert.Equal(t, stamp, s.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
