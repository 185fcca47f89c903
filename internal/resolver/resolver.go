package resolver

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"sciencefeed/internal/metrics"
	"sciencefeed/internal/rules"
)

const (
	DefaultTimeout      = 15 * time.Second
	DefaultMaxRedirects = 10

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// Matcher decides which URLs are worth resolving.
type Matcher interface {
	IsShortened(raw string) bool
}

type Resolver struct {
	matcher      Matcher
	transport    http.RoundTripper
	timeout      time.Duration
	maxRedirects int
}

type Option func(*Resolver)

func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithMaxRedirects(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxRedirects = n
		}
	}
}

func WithTransport(rt http.RoundTripper) Option {
	return func(r *Resolver) {
		r.transport = rt
	}
}

func New(m Matcher, opts ...Option) *Resolver {
	if m == nil {
		m = rules.Default()
	}
	r := &Resolver{
		matcher:      m,
		timeout:      DefaultTimeout,
		maxRedirects: DefaultMaxRedirects,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve follows redirects for shortened or share-style links and returns the final URL.
// URLs that are not shortened are returned unchanged without any network call.
// Any failure, including a redirect chain that never leaves the original host, yields raw.
func (r *Resolver) Resolve(ctx context.Context, raw string) string {
	if !r.matcher.IsShortened(raw) {
		return raw
	}

	orig, err := url.Parse(raw)
	if err != nil {
		metrics.Resolutions.WithLabelValues("invalid").Inc()
		return raw
	}

	for _, method := range []string{http.MethodHead, http.MethodGet} {
		final, err := r.follow(ctx, method, raw)
		if err != nil {
			slog.DebugContext(ctx, "resolve attempt failed", "url", raw, "method", method, "error", err)
			continue
		}
		if final.Hostname() != "" && final.Hostname() != orig.Hostname() {
			slog.DebugContext(ctx, "resolved url", "url", raw, "resolved", final.String(), "method", method)
			metrics.Resolutions.WithLabelValues("resolved").Inc()
			return final.String()
		}
	}

	metrics.Resolutions.WithLabelValues("unchanged").Inc()
	return raw
}

func (r *Resolver) follow(ctx context.Context, method, raw string) (*url.URL, error) {
	client := &http.Client{
		Timeout:   r.timeout,
		Transport: r.transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= r.maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, method, raw, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		if err := resp.Body.Close(); err != nil {
			slog.Debug("failed to close resolve response body", "error", err)
		}
	}()

	// non-2xx responses still identify the landing URL
	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL, nil
	}
	return req.URL, nil
}
