// Package ratelimit caps inference requests per client IP using token
// buckets, one bucket per remote address.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// staleAfter is how long an idle client's bucket survives before the
// janitor drops it.
const staleAfter = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter hands out per-IP token buckets at a requests-per-minute rate.
// A zero or negative rpm disables limiting entirely.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rpm     int
	burst   int
	once    sync.Once
}

// New builds a limiter allowing rpm requests per minute per client.
func New(rpm int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rpm:     rpm,
		burst:   rpm,
	}
}

// Enabled reports whether the limiter does anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.rpm > 0
}

// Allow reports whether a request from clientIP may proceed now.
func (l *Limiter) Allow(clientIP string) bool {
	if !l.Enabled() {
		return true
	}
	l.once.Do(l.startJanitor)

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[clientIP]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(float64(l.rpm)/60.0), l.burst)}
		l.buckets[clientIP] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow()
}

func (l *Limiter) startJanitor() {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-staleAfter)
			l.mu.Lock()
			for ip, b := range l.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(l.buckets, ip)
				}
			}
			l.mu.Unlock()
		}
	}()
}
