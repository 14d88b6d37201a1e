package reconcile

import "sync"

// Gate enforces at most one visible prompt or notification per path. A
// second external change arriving while a prompt is open must not stack a
// second prompt; the open prompt's resolution governs the final state
// because a chosen reload reads current storage content, not a snapshot.
type Gate struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewGate returns an empty gate.
func NewGate() *Gate {
	return &Gate{held: make(map[string]struct{})}
}

// TryAcquire takes the lock for key. It returns false if the lock is
// already held.
func (g *Gate) TryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.held[key]; ok {
		return false
	}
	g.held[key] = struct{}{}
	return true
}

// Release drops the lock for key unconditionally. Releasing an unheld key
// is a no-op so cleanup paths can call it without bookkeeping.
func (g *Gate) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, key)
}

// ReleaseAll drops every held lock.
func (g *Gate) ReleaseAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k := range g.held {
		delete(g.held, k)
	}
}

// Held reports whether key is currently locked.
func (g *Gate) Held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[key]
	return ok
}
