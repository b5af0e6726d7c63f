package services

import "sync"

// guard tracks in-flight keys so an operation runs at most once at a time
// per key.
type guard struct {
	mu       *sync.Mutex
	inFlight map[string]struct{}
}

func newGuard() guard {
	return guard{mu: &sync.Mutex{}, inFlight: make(map[string]struct{})}
}

func (g guard) acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[key]; busy {
		return false
	}
	g.inFlight[key] = struct{}{}
	return true
}

func (g guard) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, key)
}
