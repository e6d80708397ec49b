package popup

import "sync"

// Outcome is the state the status line reports.
type Outcome string

const (
	OutcomeIdle         Outcome = "idle"
	OutcomeRunning      Outcome = "running"
	OutcomeDone         Outcome = "done"
	OutcomeError        Outcome = "error"
	OutcomeNothingFound Outcome = "nothing-found"
)

// Level is the status line colour.
type Level string

const (
	LevelNormal Level = "normal"
	LevelError  Level = "error"
)

// Notice is one status line update.
type Notice struct {
	Outcome Outcome `json:"outcome"`
	Level   Level   `json:"level"`
	Message string  `json:"message"`
}

// EventType tells listeners what changed.
type EventType string

const (
	EventStatus   EventType = "status"
	EventLanguage EventType = "language"
)

// Event is delivered to watchers of a session.
type Event struct {
	Type     EventType `json:"type"`
	Language string    `json:"language,omitempty"`
	Notice   *Notice   `json:"notice,omitempty"`

	// Session is set on events handed to a Deps.Notifier.
	Session string `json:"session,omitempty"`
}

// Notifier receives every event of a session, synchronously.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

const watcherBuffer = 16

// StatusRelay keeps the current notice and fans events out to a notifier and
// to any number of watchers. Slow watchers miss events rather than block.
type StatusRelay struct {
	mu       sync.Mutex
	current  Notice
	notifier Notifier
	watchers map[chan Event]struct{}
}

// NewStatusRelay returns an idle relay. notifier may be nil.
func NewStatusRelay(notifier Notifier) *StatusRelay {
	return &StatusRelay{
		current:  Notice{Outcome: OutcomeIdle, Level: LevelNormal},
		notifier: notifier,
		watchers: make(map[chan Event]struct{}),
	}
}

// Current returns the latest notice.
func (r *StatusRelay) Current() Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Show replaces the current notice and announces it.
func (r *StatusRelay) Show(n Notice) {
	r.mu.Lock()
	r.current = n
	r.mu.Unlock()
	r.emit(Event{Type: EventStatus, Notice: &n})
}

func (r *StatusRelay) emit(e Event) {
	if r.notifier != nil {
		r.notifier.Notify(e)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := range r.watchers {
		select {
		case ch <- e:
		default:
		}
	}
}

// Watch subscribes to events until cancel is called.
func (r *StatusRelay) Watch() (<-chan Event, func()) {
	ch := make(chan Event, watcherBuffer)
	r.mu.Lock()
	r.watchers[ch] = struct{}{}
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.watchers[ch]; ok {
			delete(r.watchers, ch)
			close(ch)
		}
	}
	return ch, cancel
}

func (r *StatusRelay) watching() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watchers)
}

func (r *StatusRelay) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := range r.watchers {
		delete(r.watchers, ch)
		close(ch)
	}
}
