package store

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPStore reads keys relative to a base URL, e.g. a public S3 bucket served
// over HTTPS. The bucket must allow cross-origin GETs when used from browsers;
// the server has no such requirement.
type HTTPStore struct {
	baseURL string
	client  *http.Client
}

// NewHTTPStore creates a store rooted at baseURL. A nil client uses http.DefaultClient.
func NewHTTPStore(baseURL string, client *http.Client) *HTTPStore {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Get issues GET <base>/<key>.
func (s *HTTPStore) Get(ctx context.Context, key string) ([]byte, error) {
	target := s.baseURL + "/" + strings.TrimLeft(key, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("store: build request for %s: %w", key, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", key, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		// S3 answers 403 for missing keys when listing is not allowed.
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("store: get %s: unexpected status %s", key, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("store: read body of %s: %w", key, err)
	}
	return data, nil
}

// Close is a no-op; the HTTP client is shared.
func (s *HTTPStore) Close() error {
	return nil
}
