// Package debounce suppresses repeated announcements of the same recognized value.
package debounce

import (
	"log/slog"
	"sync"
	"time"
)

// pruneAt is the key count that triggers eviction of expired keys.
const pruneAt = 1024

// Gate lets a key through at most once per cooldown.
type Gate struct {
	mu       sync.Mutex
	enabled  bool
	cooldown time.Duration
	last     map[string]time.Time
	now      func() time.Time
}

// NewGate creates a gate. A disabled gate or a non-positive cooldown lets everything through.
func NewGate(cooldown time.Duration, enabled bool) *Gate {
	return &Gate{
		enabled:  enabled,
		cooldown: cooldown,
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Allow reports whether key may be announced now, and records it if so.
func (g *Gate) Allow(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.enabled || g.cooldown <= 0 {
		return true
	}

	now := g.now()
	if t, ok := g.last[key]; ok && now.Sub(t) < g.cooldown {
		return false
	}
	g.last[key] = now

	if len(g.last) > pruneAt {
		g.pruneLocked(now)
	}
	return true
}

func (g *Gate) pruneLocked(now time.Time) {
	for k, t := range g.last {
		if now.Sub(t) >= g.cooldown {
			delete(g.last, k)
		}
	}
}

// Reset forgets every key.
func (g *Gate) Reset() {
	g.mu.Lock()
	clear(g.last)
	g.mu.Unlock()
}

// SetEnabled enables/disables debouncing
func (g *Gate) SetEnabled(enabled bool) {
	g.mu.Lock()
	g.enabled = enabled
	g.mu.Unlock()
	slog.Info("debounce state changed", "enabled", enabled)
}

// IsEnabled returns current enabled state
func (g *Gate) IsEnabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}
