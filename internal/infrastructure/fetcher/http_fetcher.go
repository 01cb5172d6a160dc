package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"NewsHarvester/internal/domain"
	"NewsHarvester/internal/ports"
)

// maxBodyBytes caps a single page; news articles sit far below it.
const maxBodyBytes = 16 << 20

// Options tunes HTTPFetcher.
type Options struct {
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	FailOnHTTPError   bool
}

// HTTPFetcher implements ports.PageFetcher over net/http.
type HTTPFetcher struct {
	client        *http.Client
	userAgent     string
	limiter       *rate.Limiter
	failOnHTTPErr bool
}

var _ ports.PageFetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher wires an HTTP client; a nil client gets one with opts.Timeout.
func NewHTTPFetcher(client *http.Client, opts Options) *HTTPFetcher {
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &HTTPFetcher{
		client:        client,
		userAgent:     opts.UserAgent,
		limiter:       rate.NewLimiter(limit, 1),
		failOnHTTPErr: opts.FailOnHTTPError,
	}
}

// Fetch GETs url and returns the body. Non-2xx responses are returned as-is
// unless the fetcher was built with FailOnHTTPError.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &domain.FetchError{URL: url, Err: fmt.Errorf("rate limit: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &domain.FetchError{URL: url, Err: fmt.Errorf("build request: %w", err)}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &domain.FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if f.failOnHTTPErr && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return nil, &domain.FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &domain.FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	return body, nil
}
