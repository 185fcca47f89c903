package ingest_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"sciencefeed/features/article"
	"sciencefeed/internal/extract"
)

type MockResolver struct{ mock.Mock }

func (m *MockResolver) Resolve(ctx context.Context, url string) string {
	args := m.Called(ctx, url)
	if fn, ok := args.Get(0).(func(context.Context, string) string); ok {
		return fn(ctx, url)
	}
	return args.String(0)
}

type MockExtractor struct{ mock.Mock }

func (m *MockExtractor) Extract(ctx context.Context, url string) (extract.Metadata, error) {
	args := m.Called(ctx, url)
	return args.Get(0).(extract.Metadata), args.Error(1)
}

func (m *MockExtractor) Validate(title, snippet string) error {
	args := m.Called(title, snippet)
	return args.Error(0)
}

type MockSearcher struct{ mock.Mock }

func (m *MockSearcher) Search(ctx context.Context, q string, n int) ([]extract.SearchResult, error) {
	args := m.Called(ctx, q, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]extract.SearchResult), args.Error(1)
}

type MockStore struct{ mock.Mock }

func (m *MockStore) ListURLs(ctx context.Context, offset, limit int) ([]string, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStore) Insert(ctx context.Context, a *article.Article) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockStore) ListNeedingEnrichment(ctx context.Context, afterID int64, limit int) ([]article.Article, error) {
	args := m.Called(ctx, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]article.Article), args.Error(1)
}

func (m *MockStore) UpdateEnrichment(ctx context.Context, a *article.Article) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

type MockCompleter struct{ mock.Mock }

func (m *MockCompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	args := m.Called(ctx, prompt, maxTokens)
	return args.String(0), args.Error(1)
}

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockImages struct{ mock.Mock }

func (m *MockImages) Generate(ctx context.Context, prompt string) ([]byte, error) {
	args := m.Called(ctx, prompt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockImageStore struct{ mock.Mock }

func (m *MockImageStore) PutImage(ctx context.Context, articleURL string, png []byte) (string, error) {
	args := m.Called(ctx, articleURL, png)
	return args.String(0), args.Error(1)
}

type MockFailures struct{ mock.Mock }

func (m *MockFailures) RecordFailure(ctx context.Context, url string, cause error) error {
	args := m.Called(ctx, url, cause)
	return args.Error(0)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}
