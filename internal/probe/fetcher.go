package probe

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

const defaultUserAgent = "Mozilla/5.0 (compatible; dpiprobe/1.0)"

// HTTPFetcher is the net/http Fetcher: no cookies, no caches, no redirects.
// A 3xx comes back as a terminal response so it still proves the connection.
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
}

func NewHTTPFetcher() *HTTPFetcher {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		// count bytes as they come off the wire
		DisableCompression: true,
	}
	return &HTTPFetcher{
		Client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		UserAgent: defaultUserAgent,
	}
}

func (h *HTTPFetcher) Fetch(ctx context.Context, target string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-store, no-cache")
	req.Header.Set("Pragma", "no-cache")
	if h.UserAgent != "" {
		req.Header.Set("User-Agent", h.UserAgent)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, err
	}

	out := &Response{StatusCode: resp.StatusCode, Body: resp.Body}
	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		out.Body = nil
	}
	return out, nil
}
