package ratelimit

import (
	"sync"
	"time"
)

// Rule is a token bucket shape: Capacity tokens, refilled at RefillPerSec.
type Rule struct {
	Capacity     float64
	RefillPerSec float64
}

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter keeps one bucket per key.
type Limiter struct {
	mu      sync.Mutex
	m       map[string]*bucket
	now     func() time.Time
	maxKeys int
}

type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(l *Limiter) { l.now = now } }

// WithMaxKeys bounds the number of tracked keys. Full buckets are dropped first when the bound is hit.
func WithMaxKeys(n int) Option { return func(l *Limiter) { l.maxKeys = n } }

func New(opts ...Option) *Limiter {
	l := &Limiter{m: make(map[string]*bucket), now: time.Now, maxKeys: 10000}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string, r Rule) bool {
	if r.Capacity <= 0 {
		return true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.m[key]
	if !ok {
		if len(l.m) >= l.maxKeys {
			l.prune(now, r)
		}
		b = &bucket{tokens: r.Capacity, last: now}
		l.m[key] = b
	}
	// refill
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens += elapsed * r.RefillPerSec
		if b.tokens > r.Capacity {
			b.tokens = r.Capacity
		}
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Len is the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

func (l *Limiter) prune(now time.Time, r Rule) {
	for k, b := range l.m {
		if b.tokens+now.Sub(b.last).Seconds()*r.RefillPerSec >= r.Capacity {
			delete(l.m, k)
		}
	}
}
