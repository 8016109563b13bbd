package ratelimit

import (
	"sync"
	"time"
)

// Limiter gates repeated invocations per key with a minimum interval.
// The manual job endpoints use it so an external scheduler misfire
// cannot hammer the feed pipeline.
type Limiter interface {
	Allow(key string) bool
	Reset(key string)
}

// Memory is the single-instance implementation: a guarded map of
// last-allowed timestamps per key.
type Memory struct {
	mu          sync.Mutex
	keys        map[string]time.Time
	minInterval time.Duration
}

var _ Limiter = (*Memory)(nil)

func New(minInterval time.Duration) *Memory {
	return &Memory{
		keys:        make(map[string]time.Time),
		minInterval: minInterval,
	}
}

// Allow reports whether the key may proceed now, and records the
// attempt if so. Denied attempts do not push the window forward.
func (l *Memory) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if last, ok := l.keys[key]; ok && now.Sub(last) < l.minInterval {
		return false
	}

	l.keys[key] = now
	return true
}

// Wait blocks until the key is allowed to proceed, then records the
// attempt.
func (l *Memory) Wait(key string) {
	for {
		l.mu.Lock()
		now := time.Now()
		last, ok := l.keys[key]
		if !ok || now.Sub(last) >= l.minInterval {
			l.keys[key] = now
			l.mu.Unlock()
			return
		}
		remaining := l.minInterval - now.Sub(last)
		l.mu.Unlock()
		time.Sleep(remaining)
	}
}

func (l *Memory) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.keys, key)
}

func (l *Memory) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = make(map[string]time.Time)
}
