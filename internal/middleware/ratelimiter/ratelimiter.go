// Package ratelimiter implements per-client token buckets.
package ratelimiter

import (
	"math"
	"sync"
	"time"
)

// state is what the limiter remembers about one client.
type state struct {
	tokens  float64
	updated time.Time
}

// take refills the balance for the time passed since the last update and
// spends one token if there is one.
func (s *state) take(now time.Time, rate, burst float64) bool {
	if gap := now.Sub(s.updated); gap > 0 {
		s.tokens = math.Min(burst, s.tokens+gap.Seconds()*rate)
		s.updated = now
	}
	if s.tokens < 1 {
		return false
	}
	s.tokens--
	return true
}

// ClientRateLimiter keeps one bucket per client. Buckets untouched for
// longer than idle are dropped by a background janitor.
type ClientRateLimiter struct {
	rate  float64
	burst float64
	idle  time.Duration
	now   func() time.Time

	mu      sync.RWMutex
	buckets map[string]*state

	stop     chan struct{}
	stopOnce sync.Once
}

// New returns a limiter refilling rate tokens per second up to capacity.
// A non-positive idle disables expiry.
func New(rate, capacity float64, idle time.Duration) *ClientRateLimiter {
	l := &ClientRateLimiter{
		rate:    rate,
		burst:   capacity,
		idle:    idle,
		now:     time.Now,
		buckets: make(map[string]*state),
		stop:    make(chan struct{}),
	}
	if idle > 0 {
		go l.janitor(max(idle/2, time.Millisecond))
	}
	return l
}

// Allow takes a token from the client's bucket, creating a full one on
// first sight.
func (l *ClientRateLimiter) Allow(client string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.buckets[client]
	if !ok {
		s = &state{tokens: l.burst, updated: now}
		l.buckets[client] = s
	}
	return s.take(now, l.rate, l.burst)
}

func (l *ClientRateLimiter) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep(l.now())
		}
	}
}

// sweep drops buckets last used before now-idle.
func (l *ClientRateLimiter) sweep(now time.Time) {
	cutoff := now.Add(-l.idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	for client, s := range l.buckets {
		if s.updated.Before(cutoff) {
			delete(l.buckets, client)
		}
	}
}

// Stop ends the janitor. It is safe to call more than once.
func (l *ClientRateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}
