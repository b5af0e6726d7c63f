package http

import (
	"sync"
	"sync/atomic"
	"time"
)

// mutationLimiter caps the number of non-GET requests a client IP may make
// inside a fixed window. Read traffic is never limited; the long-poll /sync
// endpoint in particular must be free to hold connections open.
type mutationLimiter struct {
	limit   int
	window  time.Duration
	metrics *securityMetrics

	mu      sync.Mutex
	buckets map[string]*windowBucket

	done chan struct{}
	once sync.Once
}

// windowBucket counts requests since the start of the current window.
type windowBucket struct {
	start time.Time
	count int
}

func newMutationLimiter(limit int, window time.Duration, metrics *securityMetrics) *mutationLimiter {
	l := &mutationLimiter{
		limit:   limit,
		window:  window,
		metrics: metrics,
		buckets: make(map[string]*windowBucket),
		done:    make(chan struct{}),
	}
	go l.janitor()
	return l
}

// allow reports whether one more mutating request from clientIP fits in the
// current window. The first request after a window elapses starts a new one.
func (l *mutationLimiter) allow(clientIP string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[clientIP]
	if !ok || now.Sub(b.start) >= l.window {
		l.buckets[clientIP] = &windowBucket{start: now, count: 1}
		return true
	}

	b.count++
	if b.count > l.limit {
		if l.metrics != nil {
			atomic.AddInt64(&l.metrics.rateLimitHits, 1)
		}
		return false
	}
	return true
}

// janitor sweeps long-expired buckets so the map does not grow with one
// entry per IP ever seen.
func (l *mutationLimiter) janitor() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep(time.Now())
		case <-l.done:
			return
		}
	}
}

func (l *mutationLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for ip, b := range l.buckets {
		if now.Sub(b.start) >= 2*l.window {
			delete(l.buckets, ip)
		}
	}
}

// stop ends the janitor goroutine.
func (l *mutationLimiter) stop() {
	l.once.Do(func() { close(l.done) })
}
