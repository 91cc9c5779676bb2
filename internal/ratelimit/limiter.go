// Package ratelimit throttles engine commands arriving from the HTTP view
// and the MCP tools with per-key token buckets.
package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrLimited is wrapped by every rate limit rejection.
var ErrLimited = errors.New("rate limit exceeded")

// Limiter implements a per-key token bucket rate limiter.
// Each key gets its own bucket with the configured rate and burst.
// It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64          // tokens per second
	burst   int              // max burst size (also initial token count)
	nowFunc func() time.Time // injectable clock for testing
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewLimiter creates a rate limiter with the given rate (tokens/sec) and burst size.
// The burst size also serves as the initial number of tokens available.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		nowFunc: time.Now,
	}
}

// refill returns the key's bucket topped up to now. Caller holds l.mu.
func (l *Limiter) refill(key string) *bucket {
	now := l.nowFunc()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastCheck: now}
		l.buckets[key] = b
		return b
	}

	if elapsed := now.Sub(b.lastCheck).Seconds(); elapsed > 0 {
		b.tokens = math.Min(b.tokens+l.rate*elapsed, float64(l.burst))
		b.lastCheck = now
	}
	return b
}

// Allow reports whether a request for key may proceed and, if so, spends
// one token.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.refill(key)
	if b.tokens < 1.0 {
		return false
	}
	b.tokens--
	return true
}

// RetryAfter returns how long until key has a token again. It is zero when
// a request would be allowed now, and negative when the bucket never refills.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.refill(key)
	if b.tokens >= 1.0 {
		return 0
	}
	if l.rate <= 0 {
		return -1
	}
	return time.Duration((1.0 - b.tokens) / l.rate * float64(time.Second))
}

// LimitError is returned by Commands.Check when a command is throttled.
type LimitError struct {
	Command    string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s for %s, retry in %v", ErrLimited, e.Command, e.RetryAfter.Round(time.Millisecond))
	}
	return fmt.Sprintf("%s for %s, please try again shortly", ErrLimited, e.Command)
}

func (e *LimitError) Unwrap() error { return ErrLimited }

// Commands maps command names to their rate limiters.
type Commands map[string]*Limiter

// Command names shared by the HTTP and MCP surfaces.
const (
	SelectPattern = "select_pattern"
	Analyze       = "analyze"
	ExitAnalyze   = "exit_analyze"
	Reset         = "reset"
	Advance       = "advance"
	Snapshot      = "snapshot"
	Export        = "export"
)

// NewCommandLimiters creates the limiter set for one surface. Mode
// commands get rate and burst. Reset and export are held to a quarter of
// rate; snapshots are allowed ten times as often.
func NewCommandLimiters(rate float64, burst int) Commands {
	return Commands{
		SelectPattern: NewLimiter(rate, burst),
		Analyze:       NewLimiter(rate, burst),
		ExitAnalyze:   NewLimiter(rate, burst),
		Reset:         NewLimiter(rate/4, max(1, burst/4)),
		Advance:       NewLimiter(rate, burst),
		Snapshot:      NewLimiter(rate*10, burst*10),
		Export:        NewLimiter(rate/4, max(1, burst/4)),
	}
}

// Check checks the rate limit for command on behalf of key, usually the
// client address. Commands without a configured limiter are always allowed.
func (c Commands) Check(command, key string) error {
	limiter, ok := c[command]
	if !ok {
		return nil
	}

	if !limiter.Allow(key) {
		return &LimitError{Command: command, RetryAfter: limiter.RetryAfter(key)}
	}
	return nil
}
