package prefs

import (
	"context"
	"log/slog"
	"sync"
)

// Memory is a process-local Store.
type Memory struct {
	mu     sync.RWMutex
	values map[string]map[string]string
	hub    *hub
}

// NewMemory returns an empty in-memory store.
func NewMemory(logger *slog.Logger) *Memory {
	return &Memory{
		values: make(map[string]map[string]string),
		hub:    newHub(logger),
	}
}

func (m *Memory) Get(_ context.Context, area, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[area][key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, area, key, value string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.values[area][key]
	if ok && old == value {
		return m.hub.revision(area), nil
	}
	if m.values[area] == nil {
		m.values[area] = make(map[string]string)
	}
	m.values[area][key] = value
	return m.hub.publish(Change{Area: area, Key: key, OldValue: old, NewValue: value}), nil
}

func (m *Memory) Subscribe(area string) (<-chan Change, uint64, func()) {
	return m.hub.subscribe(area)
}

// Close ends all subscriptions.
func (m *Memory) Close() error {
	m.hub.closeAll()
	return nil
}
