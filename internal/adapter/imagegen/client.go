package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sciencefeed/internal/apperr"
)

const (
	DefaultModel   = "dall-e-3"
	DefaultSize    = "1024x1024"
	DefaultTimeout = 90 * time.Second
)

// Client talks to an OpenAI-compatible /v1/images/generations endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	size    string
	http    *http.Client
}

type Option func(*Client)

func WithModel(m string) Option {
	return func(c *Client) {
		if m != "" {
			c.model = m
		}
	}
}

func WithSize(s string) Option {
	return func(c *Client) {
		if s != "" {
			c.size = s
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   DefaultModel,
		size:    DefaultSize,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generateRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

type generateResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate returns the PNG bytes of one image for prompt.
func (c *Client) Generate(ctx context.Context, prompt string) ([]byte, error) {
	const op = "imagegen.Generate"

	body, err := json.Marshal(generateRequest{
		Model:          c.model,
		Prompt:         prompt,
		N:              1,
		Size:           c.size,
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return nil, apperr.E(apperr.KindValidation, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.E(apperr.KindValidation, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.E(apperr.KindTransientNetwork, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, apperr.E(apperr.KindTransientNetwork, op, err)
	}

	var out generateResponse
	_ = json.Unmarshal(raw, &out)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperr.E(apperr.KindRateLimit, op, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if out.Error != nil && out.Error.Message != "" {
			msg += ": " + out.Error.Message
		}
		return nil, apperr.E(apperr.KindTransientNetwork, op, errors.New(msg))
	}

	if len(out.Data) == 0 || out.Data[0].B64JSON == "" {
		return nil, apperr.E(apperr.KindValidation, op, errors.New("response contained no image"))
	}

	img, err := base64.StdEncoding.DecodeString(out.Data[0].B64JSON)
	if err != nil {
		return nil, apperr.E(apperr.KindValidation, op, fmt.Errorf("decode image: %w", err))
	}
	return img, nil
}
