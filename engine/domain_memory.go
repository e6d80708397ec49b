package engine

import (
	"sync"
	"time"
)

type domainEntry struct {
	engineName string
	expiresAt  time.Time
}

// DomainMemory remembers which engine last produced an accepted snapshot for
// each host, for ttl. Expired entries are pruned hourly.
type DomainMemory struct {
	store sync.Map // host -> *domainEntry
	ttl   time.Duration
	now   func() time.Time
	done  chan struct{}
	stop  sync.Once
}

// NewDomainMemory starts the pruning goroutine; call Stop to end it.
func NewDomainMemory(ttl time.Duration) *DomainMemory {
	dm := &DomainMemory{ttl: ttl, now: time.Now, done: make(chan struct{})}
	go dm.pruneLoop(time.Hour)
	return dm
}

// Get returns the remembered engine for host, or "".
func (dm *DomainMemory) Get(host string) string {
	val, ok := dm.store.Load(host)
	if !ok {
		return ""
	}
	entry := val.(*domainEntry)
	if dm.now().After(entry.expiresAt) {
		dm.store.Delete(host)
		return ""
	}
	return entry.engineName
}

// Set remembers engineName for host.
func (dm *DomainMemory) Set(host, engineName string) {
	dm.store.Store(host, &domainEntry{engineName: engineName, expiresAt: dm.now().Add(dm.ttl)})
}

// Delete forgets host.
func (dm *DomainMemory) Delete(host string) {
	dm.store.Delete(host)
}

// Len counts the live entries.
func (dm *DomainMemory) Len() int {
	n := 0
	now := dm.now()
	dm.store.Range(func(_, v any) bool {
		if !now.After(v.(*domainEntry).expiresAt) {
			n++
		}
		return true
	})
	return n
}

// Stop ends the pruning goroutine. It is safe to call more than once.
func (dm *DomainMemory) Stop() {
	dm.stop.Do(func() { close(dm.done) })
}

func (dm *DomainMemory) pruneLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-dm.done:
			return
		case <-ticker.C:
			now := dm.now()
			dm.store.Range(func(key, value any) bool {
				if now.After(value.(*domainEntry).expiresAt) {
					dm.store.Delete(key)
				}
				return true
			})
		}
	}
}
