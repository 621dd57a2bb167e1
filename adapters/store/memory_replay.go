package store

import (
	"context"
	"sync"
	"time"

	"github.com/solquestio/solquestio-sub002/ports"
)

// MemoryReplayGuard tracks consumed challenge keys until they expire
type MemoryReplayGuard struct {
	used map[string]time.Time
	mu   sync.Mutex
	now  func() time.Time
}

// NewMemoryReplayGuard creates a new in-memory replay guard
func NewMemoryReplayGuard() *MemoryReplayGuard {
	return &MemoryReplayGuard{
		used: make(map[string]time.Time),
		now:  time.Now,
	}
}

var _ ports.ReplayGuard = (*MemoryReplayGuard)(nil)

func (g *MemoryReplayGuard) MarkUsed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	// Expired entries are dropped lazily on every call.
	for k, exp := range g.used {
		if !now.Before(exp) {
			delete(g.used, k)
		}
	}
	if _, ok := g.used[key]; ok {
		return false, nil
	}
	g.used[key] = now.Add(ttl)
	return true, nil
}
