// Package fetch performs bounded remote retrieval of stylesheets and source
// documents.
package fetch

import (
	"context"
	"io"
	"net/http"
	"time"

	svcerrors "github.com/dans-labs/transformer/internal/errors"
)

// Result is a fetched remote document.
type Result struct {
	Body        []byte
	ContentType string
}

// Fetcher retrieves remote documents over HTTP GET with a fixed timeout.
type Fetcher struct {
	client *http.Client
}

// New creates a Fetcher whose requests are bounded by timeout.
func New(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
	}
}

// Get retrieves url. A transport failure or timeout yields a fetch error;
// a non-200 response yields a fetch error carrying the upstream status.
func (f *Fetcher) Get(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, svcerrors.NewFetch(url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, svcerrors.NewFetch(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, svcerrors.NewFetch(url, nil).WithStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, svcerrors.NewFetch(url, err)
	}
	return &Result{Body: body, ContentType: resp.Header.Get("Content-Type")}, nil
}
