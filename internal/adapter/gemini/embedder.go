package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"sciencefeed/internal/apperr"
	"sciencefeed/internal/settings"
)

const (
	DefaultEmbeddingModel  = "text-embedding-004"
	DefaultCompletionModel = "gemini-1.5-flash"
)

var ErrNoAPIKey = errors.New("gemini api key not configured")

type SettingsSource interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

// keyedClient caches one genai client per API key. The key is read from the
// settings row on every call so that updates take effect without a restart.
type keyedClient struct {
	settings    SettingsSource
	fallbackKey string
	clientOpts  []option.ClientOption

	mu         sync.RWMutex
	client     *genai.Client
	currentKey string
}

func (k *keyedClient) key(ctx context.Context) (string, error) {
	if k.settings == nil {
		if k.fallbackKey == "" {
			return "", ErrNoAPIKey
		}
		return k.fallbackKey, nil
	}

	s, err := k.settings.Get(ctx)
	if err != nil {
		if k.fallbackKey != "" {
			return k.fallbackKey, nil
		}
		return "", fmt.Errorf("failed to get settings: %w", err)
	}
	if s.GeminiAPIKey != "" {
		return s.GeminiAPIKey, nil
	}
	if k.fallbackKey != "" {
		return k.fallbackKey, nil
	}
	return "", ErrNoAPIKey
}

func (k *keyedClient) get(ctx context.Context) (*genai.Client, error) {
	key, err := k.key(ctx)
	if err != nil {
		return nil, err
	}
	return k.clientFor(ctx, key)
}

func (k *keyedClient) clientFor(ctx context.Context, key string) (*genai.Client, error) {
	k.mu.RLock()
	if k.client != nil && k.currentKey == key {
		defer k.mu.RUnlock()
		return k.client, nil
	}
	k.mu.RUnlock()

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.client != nil && k.currentKey == key {
		return k.client, nil
	}

	if k.client != nil {
		if err := k.client.Close(); err != nil {
			slog.Warn("failed to close previous genai client", "error", err)
		}
	}

	opts := append(append([]option.ClientOption{}, k.clientOpts...), option.WithAPIKey(key))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	k.client = client
	k.currentKey = key
	return client, nil
}

func (k *keyedClient) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.client == nil {
		return nil
	}
	err := k.client.Close()
	k.client = nil
	k.currentKey = ""
	return err
}

// Options configure the Gemini adapters. FallbackKey is used when the
// settings row has no key.
type Options struct {
	Model       string
	FallbackKey string
}

type DynamicEmbedder struct {
	*keyedClient
	model string
}

func NewDynamicEmbedder(svc SettingsSource, o Options, opts ...option.ClientOption) *DynamicEmbedder {
	if o.Model == "" {
		o.Model = DefaultEmbeddingModel
	}
	return &DynamicEmbedder{
		keyedClient: &keyedClient{settings: svc, fallbackKey: o.FallbackKey, clientOpts: opts},
		model:       o.Model,
	}
}

func (e *DynamicEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.E(apperr.KindValidation, "gemini.Embed", errors.New("empty text"))
	}

	client, err := e.get(ctx)
	if err != nil {
		return nil, apperr.E(apperr.KindEmbeddingUnavailable, "gemini.Embed", err)
	}

	res, err := client.EmbeddingModel(e.model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, classify("gemini.Embed", apperr.KindEmbeddingUnavailable, err)
	}

	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, apperr.E(apperr.KindEmbeddingUnavailable, "gemini.Embed", errors.New("empty embedding received"))
	}

	return res.Embedding.Values, nil
}

// classify keeps 429 distinguishable from other upstream failures.
// classify tags err from a genai call. Errors that are neither a 429 nor a
// context error get the fallback kind.
func classify(op string, fallback apperr.Kind, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == 429 {
		return apperr.E(apperr.KindRateLimit, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.E(apperr.KindTransientNetwork, op, err)
	}
	return apperr.E(fallback, op, err)
}
