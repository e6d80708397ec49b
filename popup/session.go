// Package popup models one open instance of the exporter's control panel:
// a language selector, a status line and the export triggers. Sessions share
// the preference store, so a language picked in one is seen by the others.
package popup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/plugscrape/engine"
	"github.com/use-agent/plugscrape/exporter"
	"github.com/use-agent/plugscrape/i18n"
	"github.com/use-agent/plugscrape/models"
	"github.com/use-agent/plugscrape/prefs"
)

// ErrBusy is returned when an export is started while another one of the
// same session is still running.
var ErrBusy = models.NewScrapeError(models.ErrCodeBusy, "an export is already running", nil)

// Builder serializes export jobs; *exporter.Exporter implements it.
type Builder interface {
	Build(ctx context.Context, job *models.ExportJob, s *i18n.Strings) (*exporter.Artifact, error)
}

// Deps are the collaborators of a session.
type Deps struct {
	Store    prefs.Store
	Catalog  *i18n.Catalog
	Fetcher  engine.Engine
	Builder  Builder
	Notifier Notifier
	Logger   *slog.Logger
	// Timeout bounds one export; zero means no limit beyond the caller's ctx.
	Timeout time.Duration
	Now     func() time.Time
}

// Target is what an export trigger acts on.
type Target struct {
	URL     string
	Kind    models.ExportKind
	Headers map[string]string
	Cookies []http.Cookie
}

// Result describes a finished export.
type Result struct {
	Filename string `json:"filename"`
	Location string `json:"location"`
	Count    int    `json:"count"`
	Engine   string `json:"engine"`
}

// languageSyncTimeout bounds how long SetLanguage waits for its own write to
// come back through the store's change stream.
const languageSyncTimeout = 5 * time.Second

// Session is one open control panel. It is safe for concurrent use.
type Session struct {
	id   string
	deps Deps

	// lang is written by follow only. rev is the last store revision
	// follow applied; advanced is closed and replaced whenever it moves.
	mu       sync.RWMutex
	lang     string
	rev      uint64
	advanced chan struct{}

	busy   atomic.Bool
	relay  *StatusRelay
	unsub  func()
	closed sync.Once
	done   chan struct{}
}

// Open reads the stored language, persisting the default when none is set,
// and starts following language changes made elsewhere.
func Open(ctx context.Context, deps Deps) (*Session, error) {
	if deps.Store == nil || deps.Catalog == nil || deps.Fetcher == nil || deps.Builder == nil {
		return nil, errors.New("popup: store, catalog, fetcher and builder are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	// Subscribing first means no change made after the read below is missed.
	changes, rev, unsub := deps.Store.Subscribe(prefs.AreaSync)
	lang, ok, err := deps.Store.Get(ctx, prefs.AreaSync, prefs.KeyLanguage)
	if err != nil {
		unsub()
		return nil, fmt.Errorf("popup: read language: %w", err)
	}
	if !ok || lang == "" {
		lang = i18n.DefaultLocale
		if _, err := deps.Store.Set(ctx, prefs.AreaSync, prefs.KeyLanguage, lang); err != nil {
			unsub()
			return nil, fmt.Errorf("popup: store default language: %w", err)
		}
	}

	id := uuid.NewString()
	var notifier Notifier
	if deps.Notifier != nil {
		notifier = NotifierFunc(func(e Event) {
			e.Session = id
			deps.Notifier.Notify(e)
		})
	}
	s := &Session{
		id:       id,
		deps:     deps,
		lang:     lang,
		rev:      rev,
		advanced: make(chan struct{}),
		relay:    NewStatusRelay(notifier),
		unsub:    unsub,
		done:     make(chan struct{}),
	}
	go s.follow(changes)
	return s, nil
}

// follow applies language changes from the store until the session closes.
func (s *Session) follow(changes <-chan prefs.Change) {
	for {
		select {
		case <-s.done:
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			s.apply(c)
		}
	}
}

func (s *Session) apply(c prefs.Change) {
	s.mu.Lock()
	changed := c.Key == prefs.KeyLanguage && s.lang != c.NewValue
	if c.Key == prefs.KeyLanguage {
		s.lang = c.NewValue
	}
	if c.Rev > s.rev {
		s.rev = c.Rev
		close(s.advanced)
		s.advanced = make(chan struct{})
	}
	s.mu.Unlock()
	if changed {
		s.relay.emit(Event{Type: EventLanguage, Language: c.NewValue})
	}
}

// awaitRevision blocks until follow has applied rev.
func (s *Session) awaitRevision(ctx context.Context, rev uint64) error {
	timer := time.NewTimer(languageSyncTimeout)
	defer timer.Stop()
	for {
		s.mu.RLock()
		applied, advanced := s.rev, s.advanced
		s.mu.RUnlock()
		if applied >= rev {
			return nil
		}
		select {
		case <-advanced:
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return models.NewScrapeError(models.ErrCodeSessionNotFound, "session closed", nil)
		case <-timer.C:
			return fmt.Errorf("popup: language change %d not observed after %s", rev, languageSyncTimeout)
		}
	}
}

// ID identifies the session.
func (s *Session) ID() string { return s.id }

// Language returns the current locale code.
func (s *Session) Language() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lang
}

// Strings returns the string table of the current language.
func (s *Session) Strings() *i18n.Strings {
	return s.deps.Catalog.Lookup(s.Language())
}

// Status returns the current status line.
func (s *Session) Status() Notice {
	return s.relay.Current()
}

// Watch streams language and status events until cancel is called or the
// session closes.
func (s *Session) Watch() (<-chan Event, func()) {
	return s.relay.Watch()
}

// SetLanguage selects and persists a locale. Every open session, this one
// included, picks it up through the store's change stream; SetLanguage
// returns once this session has caught up with the write. A concurrent
// write from elsewhere may win, in which case Language reports that value.
func (s *Session) SetLanguage(ctx context.Context, lang string) error {
	lang = strings.TrimSpace(lang)
	if !s.deps.Catalog.Has(lang) {
		return models.NewScrapeError(models.ErrCodeInvalidInput, fmt.Sprintf("unsupported language %q", lang), nil)
	}
	rev, err := s.deps.Store.Set(ctx, prefs.AreaSync, prefs.KeyLanguage, lang)
	if err != nil {
		return fmt.Errorf("popup: store language: %w", err)
	}
	return s.awaitRevision(ctx, rev)
}

// Busy reports whether an export is running.
func (s *Session) Busy() bool { return s.busy.Load() }

func (s *Session) inUse() bool { return s.Busy() || s.relay.watching() > 0 }

// Close stops following preference changes and ends all watches.
func (s *Session) Close() {
	s.closed.Do(func() {
		close(s.done)
		s.unsub()
		s.relay.closeAll()
	})
}
