// Package probe runs single DPI reachability probes: fetch a URL, race the body
// against a deadline and classify what arrived.
package probe

import (
	"context"
	"io"

	"github.com/hamed0406/dpiprobe/internal/domain"
)

// Response is what a Fetcher hands to the race. Body is nil when the response
// carries no streamable body.
type Response struct {
	StatusCode int
	Body       io.ReadCloser
}

// Fetcher issues one request. It must return as soon as the response headers
// arrive and must abort when ctx is cancelled.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// Checker classifies one probe instance. Implementations must always return a
// terminal result.
type Checker interface {
	Check(ctx context.Context, inst domain.ProbeInstance) domain.ProbeResult
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) (*Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (*Response, error) { return f(ctx, url) }
