package app_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sciencefeed/internal/app"
	"sciencefeed/internal/config"
)

type nopPublisher struct{ topics []string }

func (p *nopPublisher) Publish(topic string, body []byte) error {
	p.topics = append(p.topics, topic)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		ServerPort:         0,
		QueryLogPath:       filepath.Join(t.TempDir(), "query.log"),
		EmbeddingDimension: 768,
		ChunkSize:          1000,
		ChunkOverlap:       200,
		SearchTopK:         7,
		SearchThreshold:    0.7,
		SearchFallbackSize: 10,
		DedupPageSize:      1000,
		MinTitleLength:     3,
		MinSnippetLength:   5,
	}
}

func newTestApp(t *testing.T) (*app.App, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.New(context.Background(), testConfig(t), &app.Dependencies{DB: db, Publisher: &nopPublisher{}}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, mock
}

func TestNew(t *testing.T) {
	a, _ := newTestApp(t)

	assert.NotNil(t, a.Handler)
	assert.NotNil(t, a.Ingest)
	assert.NotNil(t, a.Retrieval)
	assert.NotNil(t, a.Indexer)
	assert.NotNil(t, a.SubmissionConsumer)
	assert.NotNil(t, a.IndexConsumer)
	assert.Equal(t, 1000, a.Chunker.MaxChunkSize())
}

func TestRoutes(t *testing.T) {
	t.Run("Health", func(t *testing.T) {
		a, _ := newTestApp(t)

		w := httptest.NewRecorder()
		a.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})

	t.Run("Metrics", func(t *testing.T) {
		a, _ := newTestApp(t)

		w := httptest.NewRecorder()
		a.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "sciencefeed_ingest_batch_duration_seconds")
	})

	t.Run("CORS Preflight", func(t *testing.T) {
		a, _ := newTestApp(t)

		w := httptest.NewRecorder()
		a.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/stats", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("Chunk Uses Configured Chunker", func(t *testing.T) {
		a, _ := newTestApp(t)

		body := `{"text":"` + strings.Repeat("A", 1500) + `"}`
		w := httptest.NewRecorder()
		a.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/chunk", strings.NewReader(body)))

		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Data []string `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Data, 2)
		assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
	})

	t.Run("Stats Reads Every Count", func(t *testing.T) {
		a, mock := newTestApp(t)
		mock.ExpectQuery(`FROM articles`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
		mock.ExpectQuery(`FROM documents`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectQuery(`FROM document_chunks`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(9))
		mock.ExpectQuery(`FROM failed_jobs`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		w := httptest.NewRecorder()
		a.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"data":{"articles":3,"documents":2,"chunks":9,"failed_jobs":1}}`, w.Body.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unknown Route", func(t *testing.T) {
		a, _ := newTestApp(t)

		w := httptest.NewRecorder()
		a.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sources", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
