package customsearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"sciencefeed/internal/apperr"
	"sciencefeed/internal/extract"
)

// maxResults is the provider's per-request cap.
const maxResults = 10

// Client queries a Google Programmable Search engine.
type Client struct {
	svc      *customsearch.Service
	engineID string
}

func New(ctx context.Context, apiKey, engineID string, opts ...option.ClientOption) (*Client, error) {
	if apiKey == "" || engineID == "" {
		return nil, errors.New("customsearch: api key and engine id are required")
	}

	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("customsearch: create service: %w", err)
	}
	return &Client{svc: svc, engineID: engineID}, nil
}

// Search returns up to n results. A 429 from the provider is reported as
// apperr.KindRateLimit, everything else as a transient network error.
func (c *Client) Search(ctx context.Context, query string, n int) ([]extract.SearchResult, error) {
	const op = "customsearch.Search"

	if n <= 0 || n > maxResults {
		n = maxResults
	}

	res, err := c.svc.Cse.List().Cx(c.engineID).Q(query).Num(int64(n)).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
			return nil, apperr.E(apperr.KindRateLimit, op, err)
		}
		return nil, apperr.E(apperr.KindTransientNetwork, op, err)
	}

	out := make([]extract.SearchResult, 0, len(res.Items))
	for _, item := range res.Items {
		if item == nil {
			continue
		}
		out = append(out, extract.SearchResult{Title: item.Title, Link: item.Link, Snippet: item.Snippet})
	}
	return out, nil
}
