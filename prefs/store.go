// Package prefs is a small key-value preference store with named areas and
// change notifications, shared by every open session.
package prefs

import (
	"context"
	"log/slog"
	"sync"
)

// AreaSync is the area user-facing preferences live in.
const AreaSync = "sync"

// KeyLanguage stores the selected locale code.
const KeyLanguage = "moodle_plugin_scrapper_language"

// Change describes one updated key. Rev numbers the changes of one area in
// the order the store applied them, starting at 1.
type Change struct {
	Area     string
	Key      string
	OldValue string
	NewValue string
	Rev      uint64
}

// Store reads, writes and watches preferences.
type Store interface {
	// Get returns the value and whether the key is set.
	Get(ctx context.Context, area, key string) (string, bool, error)
	// Set stores value and returns the area revision that holds it. Writing
	// the current value again is a no-op that notifies nobody and returns
	// the current revision.
	Set(ctx context.Context, area, key, value string) (uint64, error)
	// Subscribe delivers every change in area after the returned revision,
	// in revision order, until cancel is called. The writer's own
	// subscriptions receive its changes too.
	Subscribe(area string) (<-chan Change, uint64, func())
	// Close ends every subscription and releases the backend.
	Close() error
}

const subscriberBuffer = 16

// hub numbers changes and fans them out to subscribers, per area.
type hub struct {
	mu     sync.Mutex
	subs   map[string]map[chan Change]struct{}
	revs   map[string]uint64
	logger *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &hub{
		subs:   make(map[string]map[chan Change]struct{}),
		revs:   make(map[string]uint64),
		logger: logger,
	}
}

func (h *hub) subscribe(area string) (<-chan Change, uint64, func()) {
	ch := make(chan Change, subscriberBuffer)

	h.mu.Lock()
	if h.subs[area] == nil {
		h.subs[area] = make(map[chan Change]struct{})
	}
	h.subs[area][ch] = struct{}{}
	rev := h.revs[area]
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[area][ch]; ok {
			delete(h.subs[area], ch)
			close(ch)
		}
	}
	return ch, rev, cancel
}

func (h *hub) revision(area string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.revs[area]
}

// publish stamps c with the next revision of its area and delivers it. The
// caller must hold its store's write lock so revisions follow write order.
// Delivery never blocks; a subscriber whose buffer is full misses the change.
func (h *hub) publish(c Change) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.revs[c.Area]++
	c.Rev = h.revs[c.Area]
	for ch := range h.subs[c.Area] {
		select {
		case ch <- c:
		default:
			h.logger.Warn("preference change dropped for slow subscriber",
				"area", c.Area, "key", c.Key, "rev", c.Rev)
		}
	}
	return c.Rev
}

// closeAll ends every subscription.
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for area, set := range h.subs {
		for ch := range set {
			close(ch)
		}
		delete(h.subs, area)
	}
}
