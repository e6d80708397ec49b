// Package engine acquires page snapshots. Engines range from a plain HTTP
// client to a full browser; the Dispatcher races them and keeps the first
// usable snapshot.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBodyBytes caps the size of a snapshot.
var maxBodyBytes int64 = 10 << 20

// ErrBodyTooLarge is returned for pages above the snapshot size cap. A cut
// page could hold a partial plugin table, so it is never used.
var ErrBodyTooLarge = errors.New("page exceeds size limit")

// readPage reads r whole, failing with ErrBodyTooLarge instead of truncating.
func readPage(r io.Reader) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxBodyBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(body)) > maxBodyBytes {
		return "", fmt.Errorf("%w of %d bytes", ErrBodyTooLarge, maxBodyBytes)
	}
	return string(body), nil
}

// Engine fetches one page.
type Engine interface {
	// Name returns the engine identifier (e.g. "http", "rod", "file").
	Name() string

	// Fetch returns a snapshot of the page the request points to.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// FetchRequest describes the page to snapshot. Headers and cookies are
// forwarded as-is, which is how callers reach pages behind a site login.
type FetchRequest struct {
	URL     string
	Headers map[string]string
	Cookies []http.Cookie
	Timeout time.Duration
	Stealth bool
}

// FetchResult is a page snapshot.
type FetchResult struct {
	HTML       string
	Title      string
	StatusCode int
	// FinalURL is the document location after redirects.
	FinalURL   string
	EngineName string
}

// StatusError reports a non-success HTTP status.
type StatusError struct {
	Engine string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Engine, e.Code)
}
