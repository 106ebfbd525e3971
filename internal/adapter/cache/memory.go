// Package cache provides the TTL key-value store used for price quotes,
// analysis results and admin sessions, with a Redis backend and an
// in-process fallback.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/goldnightmare/analysis-api/internal/domain"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is an in-process TTL store. It is the fallback when Redis is not
// reachable at startup, and the default store in tests.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	done    chan struct{}
	once    sync.Once
}

// NewMemory creates an in-process store and starts a janitor goroutine that
// sweeps expired entries every sweepInterval. Call Stop to release it.
func NewMemory(sweepInterval time.Duration) *Memory {
	m := &Memory{
		entries: make(map[string]memoryEntry),
		done:    make(chan struct{}),
	}
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}
	go m.janitor(sweepInterval)
	return m
}

func (m *Memory) janitor(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-m.done:
			return
		case now := <-t.C:
			m.mu.Lock()
			for k, e := range m.entries {
				if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
					delete(m.entries, k)
				}
			}
			m.mu.Unlock()
		}
	}
}

// Stop terminates the janitor goroutine.
func (m *Memory) Stop() {
	m.once.Do(func() { close(m.done) })
}

// Get returns the value for key if present and not expired.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores value under key for ttl. A non-positive ttl stores forever.
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value, expiresAt: exp}
	m.mu.Unlock()
	return nil
}

// Delete removes key, reporting whether it was present.
func (m *Memory) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	_, ok := m.entries[key]
	delete(m.entries, key)
	m.mu.Unlock()
	return ok, nil
}

// Exists reports whether key is present and not expired.
func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := m.Get(ctx, key)
	return ok, err
}

var _ domain.Cache = (*Memory)(nil)
