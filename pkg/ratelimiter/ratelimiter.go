package ratelimiter

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter decides whether one more request may proceed right now.
type RateLimiter interface {
	Allow() bool
}

// Algorithm names accepted by New.
const (
	AlgorithmTokenBucket = "tokenBucket"
	AlgorithmSlidingLog  = "slidingLog"
)

// Settings is the algorithm-independent view of the limiter configuration.
type Settings struct {
	Algorithm string
	// Rate and Capacity apply to the token bucket.
	Rate     float64
	Capacity int
	// Limit and Window apply to the sliding log.
	Limit  int
	Window time.Duration
}

// New builds the limiter selected by s.Algorithm. An empty algorithm means token bucket.
func New(s Settings) (RateLimiter, error) {
	switch s.Algorithm {
	case "", AlgorithmTokenBucket:
		if s.Rate <= 0 || s.Capacity <= 0 {
			return nil, fmt.Errorf("token bucket needs positive rate and capacity, got %v/%d", s.Rate, s.Capacity)
		}
		return NewTokenBucket(s.Rate, s.Capacity), nil
	case AlgorithmSlidingLog:
		if s.Limit <= 0 || s.Window <= 0 {
			return nil, fmt.Errorf("sliding log needs positive limit and window, got %d/%s", s.Limit, s.Window)
		}
		return NewSlidingWindowLog(s.Limit, s.Window), nil
	default:
		return nil, fmt.Errorf("unknown rate limiter algorithm: %s", s.Algorithm)
	}
}

// TokenBucket allows bursts up to capacity and refills at rate tokens per second.
type TokenBucket struct {
	rate     float64
	capacity float64
	tokens   float64
	last     time.Time
	now      func() time.Time
	mutex    sync.Mutex
}

// NewTokenBucket creates a bucket that starts full.
func NewTokenBucket(rate float64, capacity int) *TokenBucket {
	return &TokenBucket{
		rate:     rate,
		capacity: float64(capacity),
		tokens:   float64(capacity),
		last:     time.Now(),
		now:      time.Now,
	}
}

// Allow refills the bucket for the elapsed time and takes one token if available.
func (tb *TokenBucket) Allow() bool {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	now := tb.now()
	if elapsed := now.Sub(tb.last); elapsed > 0 {
		tb.tokens += elapsed.Seconds() * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.last = now
	}

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// SlidingWindowLog admits at most limit requests in any trailing window.
type SlidingWindowLog struct {
	limit  int
	window time.Duration
	stamps []time.Time // ordered oldest first
	now    func() time.Time
	mutex  sync.Mutex
}

// NewSlidingWindowLog creates a sliding log limiter.
func NewSlidingWindowLog(limit int, window time.Duration) *SlidingWindowLog {
	return &SlidingWindowLog{
		limit:  limit,
		window: window,
		stamps: make([]time.Time, 0, limit),
		now:    time.Now,
	}
}

// Allow drops timestamps that fell out of the window and admits the request if room is left.
func (l *SlidingWindowLog) Allow() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := l.now()
	boundary := now.Add(-l.window)
	drop := 0
	for drop < len(l.stamps) && l.stamps[drop].Before(boundary) {
		drop++
	}
	l.stamps = append(l.stamps[:0], l.stamps[drop:]...)

	if len(l.stamps) < l.limit {
		l.stamps = append(l.stamps, now)
		return true
	}
	return false
}
