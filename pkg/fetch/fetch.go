// Package fetch downloads binary assets over HTTP with progress reporting.
package fetch

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Minute

// Client downloads assets into memory, reporting integer progress
// percentages as the transfer advances. The zero value is not usable; create
// clients with [New].
type Client struct {
	httpClient *http.Client
}

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Useful for tests and
// for callers that need custom transport settings.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a fetch client. The default HTTP client allows large model
// transfers to run for up to 30 minutes.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FetchOption customizes a single [Client.Fetch] call.
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	expectedSize int64
	onProgress   func(pct int)
}

// WithExpectedSize supplies a fallback transfer total for progress reporting,
// used when the server does not send Content-Length.
func WithExpectedSize(n int64) FetchOption {
	return func(fc *fetchConfig) { fc.expectedSize = n }
}

// WithProgress registers a callback fired every time the completed
// percentage changes. pct is in the range 0-100.
func WithProgress(fn func(pct int)) FetchOption {
	return func(fc *fetchConfig) { fc.onProgress = fn }
}

// Fetch downloads locator fully into memory. Progress percentages are
// derived from the response's Content-Length when the server reports one and
// from [WithExpectedSize] otherwise. Cancelling ctx aborts the transfer; the
// returned error then wraps [context.Canceled].
func (c *Client) Fetch(ctx context.Context, locator string, opts ...FetchOption) ([]byte, error) {
	var fc fetchConfig
	for _, o := range opts {
		o(&fc)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: download failed: HTTP %d", resp.StatusCode)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = fc.expectedSize
	}

	var buf []byte
	if total > 0 {
		buf = make([]byte, 0, total)
	}
	w := &progressWriter{
		total:      total,
		lastPct:    -1,
		onProgress: fc.onProgress,
		sink:       buf,
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	return w.sink, nil
}

// progressWriter accumulates the body and reports integer percentages as
// they change.
type progressWriter struct {
	sink       []byte
	total      int64
	written    int64
	lastPct    int
	onProgress func(pct int)
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	pw.sink = append(pw.sink, p...)
	pw.written += int64(len(p))

	if pw.total > 0 && pw.onProgress != nil {
		pct := int(math.Round(float64(pw.written) / float64(pw.total) * 100))
		if pct > 100 {
			pct = 100
		}
		if pct != pw.lastPct {
			pw.lastPct = pct
			pw.onProgress(pct)
		}
	}
	return len(p), nil
}
