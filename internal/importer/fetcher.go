package importer

import (
	"context"
	"io"
	"net/http"
	"time"

	pkgerrors "github.com/angelmondragon/orderdesk-backend/pkg/errors"
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultMaxBytes     = 10 << 20
)

// Fetcher downloads partner feeds.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewFetcher builds a fetcher bounded by timeout and maxBytes. Non-positive
// values fall back to defaults.
func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// Fetch GETs url and returns the body.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid feed url").
			WithDetails(map[string]string{"url": "must be a valid URL"})
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "fetch feed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, pkgerrors.Newf(pkgerrors.CodeUpstream, "feed server responded %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "read feed body")
	}
	if int64(len(body)) > f.maxBytes {
		return nil, pkgerrors.Newf(pkgerrors.CodeUpstream, "feed exceeds %d bytes", f.maxBytes)
	}
	return body, nil
}
