package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"RefurbTracker/internal/domain"
	"RefurbTracker/internal/ports"
)

const (
	acceptHeader         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptLanguageHeader = "en-US,en;q=0.9"
	defaultMaxBodyBytes  = 16 << 20
)

// Options tunes the fetcher; zero values fall back to sane defaults.
type Options struct {
	Timeout           time.Duration
	UserAgent         string
	RequestsPerSecond float64
	MaxBodyBytes      int64
}

// HTTPFetcher downloads listing pages with a browser-like header set.
type HTTPFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	maxBody   int64
	logger    *slog.Logger
}

var _ ports.PageFetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher wires an HTTP client; a nil client gets one with opts.Timeout.
func NewHTTPFetcher(client *http.Client, opts Options, log *slog.Logger) *HTTPFetcher {
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	return &HTTPFetcher{
		client:    client,
		limiter:   rate.NewLimiter(limit, 1),
		userAgent: opts.UserAgent,
		maxBody:   maxBody,
		logger:    log,
	}
}

// Fetch returns the response body. Transport failures and non-2xx statuses
// wrap domain.ErrFetch; a body over the size cap wraps domain.ErrNoDocument.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: wait for limiter: %v", domain.ErrFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", domain.ErrFetch, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLanguageHeader)

	started := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: request %s: %v", domain.ErrFetch, pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %s returned %s", domain.ErrFetch, pageURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", domain.ErrNoDocument, err)
	}
	if int64(len(body)) > f.maxBody {
		return "", fmt.Errorf("%w: %s body exceeds %d bytes", domain.ErrNoDocument, pageURL, f.maxBody)
	}

	if f.logger != nil {
		f.logger.Debug("listing fetched", "url", pageURL, "status", resp.StatusCode, "bytes", len(body), "elapsed", time.Since(started))
	}
	return string(body), nil
}
