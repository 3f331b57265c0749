// File: internal/mapping/http.go
package mapping

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/xkilldash9x/stepwise/internal/browser/network"
)

// HTTPSource fetches a mapping document from a URL on every lookup. Requests
// are rate limited and bounded by a per-lookup timeout; a slow or failing
// endpoint degrades to a LookupError rather than stalling resolution.
type HTTPSource struct {
	url     string
	fetcher *network.Fetcher
	limiter *rate.Limiter
	timeout time.Duration
}

// HTTPOptions tunes an HTTPSource.
type HTTPOptions struct {
	// RateLimit is the sustained requests per second; zero disables limiting.
	RateLimit float64
	// Timeout bounds a single lookup including the wait for the limiter.
	Timeout time.Duration
}

// NewHTTPSource creates an HTTPSource for url.
func NewHTTPSource(url string, fetcher *network.Fetcher, opts HTTPOptions) *HTTPSource {
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	if fetcher == nil {
		fetcher = network.NewFetcher(nil, nil)
	}
	return &HTTPSource{
		url:     url,
		fetcher: fetcher,
		limiter: rate.NewLimiter(limit, 1),
		timeout: opts.Timeout,
	}
}

func (h *HTTPSource) Lookup(ctx context.Context, targetText string) Result {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	if err := h.limiter.Wait(ctx); err != nil {
		return ErrorResult(fmt.Errorf("mapping lookup rate limited: %w", err))
	}
	data, err := h.fetcher.Fetch(ctx, h.url)
	if err != nil {
		return ErrorResult(err)
	}
	mappings, err := ParseDocument(data)
	if err != nil {
		return ErrorResult(err)
	}
	return find(mappings, targetText)
}
