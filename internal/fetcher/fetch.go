package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// ErrFetch is matched by every FetchError.
var ErrFetch = errors.New("fetch failed")

// FetchErrorKind classifies network-layer failures.
type FetchErrorKind int

const (
	FetchConnectionFailed FetchErrorKind = iota
	FetchTimeout
	FetchHTTPStatus
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchTimeout:
		return "timeout"
	case FetchHTTPStatus:
		return "http_status"
	default:
		return "connection_failed"
	}
}

// FetchError describes why a playlist document could not be downloaded.
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int // set for FetchHTTPStatus
	URL        string
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchHTTPStatus:
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	case FetchTimeout:
		return fmt.Sprintf("fetch %s: timeout: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// Fetcher downloads raw playlist bytes. Implementations must honour ctx for
// an in-flight download to be cancellable.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches playlists over HTTP(S).
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher returns a fetcher with the given User-Agent and timeout.
// Pass a nil client to use a fresh one.
func NewHTTPFetcher(client *http.Client, userAgent string, timeout time.Duration) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	if timeout > 0 {
		c := *client
		c.Timeout = timeout
		client = &c
	}
	return &HTTPFetcher{client: client, userAgent: userAgent}
}

// Fetch GETs url and returns the body of a 2xx response.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchConnectionFailed, URL: url, Err: fmt.Errorf("NewRequest: %w", err)}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fetchFailure(url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{Kind: FetchHTTPStatus, StatusCode: resp.StatusCode, URL: url, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fetchFailure(url, fmt.Errorf("ReadAll: %w", err))
	}
	return body, nil
}

func fetchFailure(url string, err error) *FetchError {
	kind := FetchConnectionFailed
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = FetchTimeout
	}
	return &FetchError{Kind: kind, URL: url, Err: err}
}
