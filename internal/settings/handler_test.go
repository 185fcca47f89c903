package settings_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"sciencefeed/internal/settings"
)

// MockRepository is a mock implementation of settings.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Get(ctx context.Context) (*settings.Settings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settings.Settings), args.Error(1)
}

func (m *MockRepository) Update(ctx context.Context, s *settings.Settings) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func TestHandler_GetSettings(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockRepo := new(MockRepository)
		handler := settings.NewHandler(settings.NewService(mockRepo))

		mockRepo.On("Get", mock.Anything).Return(&settings.Settings{
			GeminiAPIKey:        "secret",
			SimilarityThreshold: 0.7,
			TopK:                7,
			FallbackLimit:       10,
		}, nil)

		req := httptest.NewRequest("GET", "/settings", nil)
		w := httptest.NewRecorder()
		handler.GetSettings(w, req)

		resp := w.Result()
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		data := body["data"].(map[string]interface{})
		assert.Equal(t, 0.7, data["similarity_threshold"])
		assert.EqualValues(t, 7, data["top_k"])
		assert.Equal(t, "********", data["gemini_api_key"])

		mockRepo.AssertExpectations(t)
	})

	t.Run("InternalError", func(t *testing.T) {
		mockRepo := new(MockRepository)
		handler := settings.NewHandler(settings.NewService(mockRepo))

		mockRepo.On("Get", mock.Anything).Return(nil, errors.New("db error"))

		req := httptest.NewRequest("GET", "/settings", nil)
		w := httptest.NewRecorder()
		handler.GetSettings(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Result().StatusCode)
	})
}

func TestHandler_UpdateSettings(t *testing.T) {
	stored := func() *settings.Settings {
		return &settings.Settings{GeminiAPIKey: "db-key", SimilarityThreshold: 0.7, TopK: 7, FallbackLimit: 10}
	}

	tests := []struct {
		name       string
		body       string
		setup      func(*MockRepository)
		wantStatus int
		wantTopK   float64
	}{
		{
			name: "Partial Update Keeps Other Fields",
			body: `{"top_k":5}`,
			setup: func(m *MockRepository) {
				m.On("Get", mock.Anything).Return(stored(), nil)
				m.On("Update", mock.Anything, mock.MatchedBy(func(s *settings.Settings) bool {
					return s.TopK == 5 && s.SimilarityThreshold == 0.7 && s.FallbackLimit == 10 && s.GeminiAPIKey == "db-key"
				})).Return(nil)
			},
			wantStatus: http.StatusOK,
			wantTopK:   5,
		},
		{
			name: "Masked Key Is Ignored",
			body: `{"gemini_api_key":"********","similarity_threshold":0.75,"top_k":7,"fallback_limit":10}`,
			setup: func(m *MockRepository) {
				m.On("Get", mock.Anything).Return(stored(), nil)
				m.On("Update", mock.Anything, mock.MatchedBy(func(s *settings.Settings) bool {
					return s.GeminiAPIKey == "db-key" && s.SimilarityThreshold == 0.75
				})).Return(nil)
			},
			wantStatus: http.StatusOK,
			wantTopK:   7,
		},
		{
			name: "New Key Is Stored",
			body: `{"gemini_api_key":"fresh"}`,
			setup: func(m *MockRepository) {
				m.On("Get", mock.Anything).Return(stored(), nil)
				m.On("Update", mock.Anything, mock.MatchedBy(func(s *settings.Settings) bool {
					return s.GeminiAPIKey == "fresh"
				})).Return(nil)
			},
			wantStatus: http.StatusOK,
			wantTopK:   7,
		},
		{
			name:       "Invalid JSON",
			body:       "invalid json",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Unknown Field",
			body:       `{"top_n":3}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "Threshold Out Of Range",
			body: `{"similarity_threshold":1.5}`,
			setup: func(m *MockRepository) {
				m.On("Get", mock.Anything).Return(stored(), nil)
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "Zero TopK",
			body: `{"top_k":0}`,
			setup: func(m *MockRepository) {
				m.On("Get", mock.Anything).Return(stored(), nil)
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "Repo Error",
			body: `{"top_k":3}`,
			setup: func(m *MockRepository) {
				m.On("Get", mock.Anything).Return(stored(), nil)
				m.On("Update", mock.Anything, mock.Anything).Return(errors.New("db down"))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockRepository)
			if tt.setup != nil {
				tt.setup(mockRepo)
			}
			handler := settings.NewHandler(settings.NewService(mockRepo))

			req := httptest.NewRequest("PUT", "/settings", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			handler.UpdateSettings(w, req)

			assert.Equal(t, tt.wantStatus, w.Result().StatusCode)
			if tt.wantStatus == http.StatusOK {
				var body map[string]map[string]interface{}
				assert.NoError(t, json.NewDecoder(w.Body).Decode(&body))
				assert.Equal(t, tt.wantTopK, body["data"]["top_k"])
				assert.Equal(t, settings.MaskedKey, body["data"]["gemini_api_key"])
			}
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestService_SeedAPIKey(t *testing.T) {
	t.Run("Seeds Empty Key", func(t *testing.T) {
		m := new(MockRepository)
		m.On("Get", mock.Anything).Return(&settings.Settings{TopK: 7}, nil)
		m.On("Update", mock.Anything, mock.MatchedBy(func(s *settings.Settings) bool {
			return s.GeminiAPIKey == "env-key"
		})).Return(nil)

		seeded, err := settings.NewService(m).SeedAPIKey(context.Background(), "env-key")
		assert.NoError(t, err)
		assert.True(t, seeded)
		m.AssertExpectations(t)
	})

	t.Run("Keeps Existing Key", func(t *testing.T) {
		m := new(MockRepository)
		m.On("Get", mock.Anything).Return(&settings.Settings{GeminiAPIKey: "db-key"}, nil)

		seeded, err := settings.NewService(m).SeedAPIKey(context.Background(), "env-key")
		assert.NoError(t, err)
		assert.False(t, seeded)
		m.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("No Key Given", func(t *testing.T) {
		m := new(MockRepository)
		seeded, err := settings.NewService(m).SeedAPIKey(context.Background(), "")
		assert.NoError(t, err)
		assert.False(t, seeded)
	})
}
