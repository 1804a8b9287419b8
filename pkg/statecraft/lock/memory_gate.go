package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryGate is an in-process Gate for single-node deployments and tests:
// a map of mutexes keyed by lock name, with a bounded wait via TryLock
// polling (the stdlib sync.Mutex has no native timed acquire).
type MemoryGate struct {
	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	timeout time.Duration
}

// NewMemoryGate returns a Gate with the given acquisition timeout (use
// DefaultTimeout when unsure).
func NewMemoryGate(timeout time.Duration) *MemoryGate {
	return &MemoryGate{locks: make(map[string]*sync.Mutex), timeout: timeout}
}

func (g *MemoryGate) lockFor(name string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.locks[name]
	if !ok {
		m = &sync.Mutex{}
		g.locks[name] = m
	}
	return m
}

func (g *MemoryGate) Acquire(ctx context.Context, rootEventID string) (func(), error) {
	name := lockName(rootEventID)
	m := g.lockFor(name)

	deadline := time.Now().Add(g.timeout)
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		if m.TryLock() {
			return m.Unlock, nil
		}
		if time.Now().After(deadline) {
			return nil, alreadyRunning(rootEventID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
