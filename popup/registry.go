package popup

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/use-agent/plugscrape/models"
)

const sweepEvery = time.Minute

// ErrTooManySessions is returned by Registry.Open at the session cap.
var ErrTooManySessions = models.NewScrapeError(models.ErrCodeSessionLimit, "too many open sessions", nil)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithIdleTTL closes sessions nobody has used for d. A session with a
// running export or an open watch is in use. Zero keeps sessions until
// they are closed.
func WithIdleTTL(d time.Duration) RegistryOption {
	return func(r *Registry) { r.idleTTL = d }
}

// WithMaxSessions caps the number of open sessions. Zero means no cap.
func WithMaxSessions(n int) RegistryOption {
	return func(r *Registry) { r.maxSessions = n }
}

type entry struct {
	session  *Session
	owner    string
	lastUsed time.Time
}

// Registry keeps the open sessions of the HTTP surface, by ID. Each session
// belongs to the identity that opened it; lookups by anyone else miss.
// Idle sessions are swept during lookups, at most once per sweepEvery.
type Registry struct {
	deps        Deps
	idleTTL     time.Duration
	maxSessions int
	now         func() time.Time

	mu        sync.Mutex
	sessions  map[string]*entry
	lastSweep time.Time
}

// NewRegistry returns a registry opening sessions with deps.
func NewRegistry(deps Deps, opts ...RegistryOption) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := &Registry{deps: deps, sessions: make(map[string]*entry), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// sweep unregisters idle sessions and returns them for closing. force skips
// the sweep interval. r.mu must be held.
func (r *Registry) sweep(now time.Time, force bool) []*Session {
	if r.idleTTL <= 0 || (!force && now.Sub(r.lastSweep) < sweepEvery) {
		return nil
	}
	r.lastSweep = now
	var idle []*Session
	for id, e := range r.sessions {
		if e.session.inUse() {
			e.lastUsed = now
			continue
		}
		if now.Sub(e.lastUsed) > r.idleTTL {
			delete(r.sessions, id)
			idle = append(idle, e.session)
		}
	}
	return idle
}

func (r *Registry) closeIdle(idle []*Session) {
	for _, s := range idle {
		r.deps.Logger.Info("closing idle session", "session", s.ID())
		s.Close()
	}
}

// Open starts a session owned by owner and registers it. owner is the
// caller's API key, or empty on an open server.
func (r *Registry) Open(ctx context.Context, owner string) (*Session, error) {
	r.mu.Lock()
	idle := r.sweep(r.now(), false)
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		idle = append(idle, r.sweep(r.now(), true)...)
	}
	full := r.maxSessions > 0 && len(r.sessions) >= r.maxSessions
	r.mu.Unlock()
	r.closeIdle(idle)
	if full {
		return nil, ErrTooManySessions
	}

	s, err := Open(ctx, r.deps)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		r.mu.Unlock()
		s.Close()
		return nil, ErrTooManySessions
	}
	r.sessions[s.ID()] = &entry{session: s, owner: owner, lastUsed: r.now()}
	r.mu.Unlock()
	return s, nil
}

// Get looks up a session of owner and marks it used.
func (r *Registry) Get(id, owner string) (*Session, bool) {
	r.mu.Lock()
	now := r.now()
	idle := r.sweep(now, false)
	e, ok := r.sessions[id]
	if ok && e.owner != owner {
		ok = false
	}
	if ok {
		e.lastUsed = now
	}
	r.mu.Unlock()
	r.closeIdle(idle)
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Close closes and forgets a session of owner. It reports whether the
// session existed.
func (r *Registry) Close(id, owner string) bool {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok && e.owner == owner {
		delete(r.sessions, id)
	} else {
		ok = false
	}
	r.mu.Unlock()
	if ok {
		e.session.Close()
	}
	return ok
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	idle := r.sweep(r.now(), false)
	n := len(r.sessions)
	r.mu.Unlock()
	r.closeIdle(idle)
	return n
}

// IDs returns the open session IDs, sorted.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseAll closes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()
	for _, e := range sessions {
		e.session.Close()
	}
}
