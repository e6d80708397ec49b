package engine

import (
	"context"
	"fmt"
)

// BrowserFetchFunc snapshots a page in a real browser. It is supplied by the
// scraper package at wiring time so engine does not import it.
type BrowserFetchFunc func(ctx context.Context, req *FetchRequest) (*FetchResult, error)

// BrowserEngine renders the admin page in Chromium. It is the fallback for
// sites whose plugin table only appears after scripts run or that reject
// plain clients. Rendered documents get the same size cap as fetched ones.
type BrowserEngine struct {
	snapshot BrowserFetchFunc
	stealth  bool
}

// NewBrowserEngine wraps snapshot. With stealth set, every snapshot is taken
// with the stealth script injected, and the engine reports as "rod-stealth".
func NewBrowserEngine(snapshot BrowserFetchFunc, stealth bool) *BrowserEngine {
	return &BrowserEngine{snapshot: snapshot, stealth: stealth}
}

func (e *BrowserEngine) Name() string {
	if e.stealth {
		return "rod-stealth"
	}
	return "rod"
}

func (e *BrowserEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if e.snapshot == nil {
		return nil, fmt.Errorf("%s: no browser configured", e.Name())
	}
	r := *req
	r.Stealth = r.Stealth || e.stealth

	result, err := e.snapshot(ctx, &r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Name(), err)
	}
	if result == nil {
		return nil, fmt.Errorf("%s: empty snapshot", e.Name())
	}
	if int64(len(result.HTML)) > maxBodyBytes {
		return nil, fmt.Errorf("%s: %w of %d bytes", e.Name(), ErrBodyTooLarge, maxBodyBytes)
	}
	if result.FinalURL == "" {
		result.FinalURL = req.URL
	}
	result.EngineName = e.Name()
	return result, nil
}
