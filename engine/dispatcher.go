package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"
)

// AcceptFunc decides whether a snapshot is good enough to stop the race.
// A rejected snapshot counts as a failure of that engine.
type AcceptFunc func(*FetchResult) bool

// Dispatcher races engines with staged start delays and returns the first
// accepted snapshot. It implements Engine, so callers do not care whether
// they hold one engine or a race of several.
type Dispatcher struct {
	engines []Engine
	delays  []time.Duration
	memory  *DomainMemory
	accept  AcceptFunc
}

// NewDispatcher creates a Dispatcher. engines[i] starts delays[i] after the
// race begins; missing delays are zero. memory may be nil.
func NewDispatcher(engines []Engine, delays []time.Duration, memory *DomainMemory) *Dispatcher {
	d := make([]time.Duration, len(engines))
	copy(d, delays)
	return &Dispatcher{engines: engines, delays: d, memory: memory}
}

// SetAccept installs the snapshot check. Without one, any successful fetch wins.
func (d *Dispatcher) SetAccept(fn AcceptFunc) {
	d.accept = fn
}

func (d *Dispatcher) Name() string { return "dispatcher" }

// Fetch implements Engine.
func (d *Dispatcher) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	return d.Dispatch(ctx, req)
}

func (d *Dispatcher) accepted(r *FetchResult) bool {
	return d.accept == nil || d.accept(r)
}

// Dispatch tries the engine remembered for the URL's host first, then races
// all engines. When every engine fetched a page but none was accepted, the
// last fetched page is returned so the caller can report on its content.
func (d *Dispatcher) Dispatch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	domain := extractDomain(req.URL)

	if d.memory != nil {
		if remembered := d.memory.Get(domain); remembered != "" {
			for _, eng := range d.engines {
				if eng.Name() != remembered {
					continue
				}
				slog.Debug("domain memory hit", "domain", domain, "engine", remembered)
				result, err := eng.Fetch(ctx, req)
				if err == nil && d.accepted(result) {
					return result, nil
				}
				slog.Info("remembered engine failed, running full race",
					"domain", domain, "engine", remembered, "error", err)
				d.memory.Delete(domain)
				break
			}
		}
	}

	return d.race(ctx, req, domain)
}

type raceResult struct {
	result *FetchResult
	err    error
}

func (d *Dispatcher) race(ctx context.Context, req *FetchRequest, domain string) (*FetchResult, error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan raceResult, len(d.engines))
	var wg sync.WaitGroup

	for i, eng := range d.engines {
		wg.Add(1)
		go func(e Engine, delay time.Duration) {
			defer wg.Done()
			if delay > 0 {
				t := time.NewTimer(delay)
				defer t.Stop()
				select {
				case <-raceCtx.Done():
					return
				case <-t.C:
				}
			}
			if raceCtx.Err() != nil {
				return
			}
			slog.Debug("engine starting", "engine", e.Name(), "url", req.URL)
			result, err := e.Fetch(raceCtx, req)
			if err != nil {
				slog.Debug("engine failed", "engine", e.Name(), "url", req.URL, "error", err)
			}
			results <- raceResult{result: result, err: err}
		}(eng, d.delays[i])
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var (
		lastErr  error
		rejected *FetchResult
	)
	for rr := range results {
		if rr.err != nil {
			lastErr = rr.err
			continue
		}
		if !d.accepted(rr.result) {
			slog.Debug("engine result rejected", "engine", rr.result.EngineName, "url", req.URL)
			rejected = rr.result
			continue
		}
		cancel()
		slog.Info("engine won race", "engine", rr.result.EngineName, "url", req.URL)
		if d.memory != nil {
			d.memory.Set(domain, rr.result.EngineName)
		}
		return rr.result, nil
	}

	if rejected != nil {
		return rejected, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("dispatcher: no engine could fetch %s", req.URL)
	}
	return nil, lastErr
}

func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
