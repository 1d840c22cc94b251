package cache

import (
	"fmt"
	"strings"
	"time"
)

// Purger is implemented by caches that support bulk cleanup and
// invalidation.
type Purger interface {
	Purge()
	PurgeExpired() int
}

// ViewKey builds a cache key for a derived view. The store's snapshot
// version is part of the key, so results computed from a stale snapshot
// simply stop being addressed after a write; they age out via TTL and
// LRU pressure without explicit invalidation.
func ViewKey(version, view string, params ...string) string {
	if len(params) == 0 {
		return version + "|" + view
	}
	return version + "|" + view + "|" + strings.Join(params, "|")
}

// Manager owns the periodic cleanup of registered caches and fans out
// purge requests from invalidation messages.
type Manager struct {
	caches []Purger
	stop   chan struct{}
	done   chan struct{}
}

func NewManager() *Manager {
	return &Manager{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (m *Manager) Register(c Purger) {
	m.caches = append(m.caches, c)
}

// PurgeAll drops every entry from every registered cache.
func (m *Manager) PurgeAll() {
	for _, c := range m.caches {
		c.Purge()
	}
}

// StartCleanup begins periodic expiry sweeps. Call Stop to end them.
func (m *Manager) StartCleanup(interval time.Duration) {
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, c := range m.caches {
				c.PurgeExpired()
			}
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) Stop() {
	close(m.stop)
	<-m.done
}

// Param formats a numeric view parameter for inclusion in a ViewKey.
func Param(name string, value int) string {
	return fmt.Sprintf("%s=%d", name, value)
}
