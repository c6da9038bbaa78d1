package client

import (
	"io"
	"sync"
	"time"
)

// RateLimiter is a token bucket measured in bytes per second.
// A nil *RateLimiter does not limit.
type RateLimiter struct {
	mu     sync.Mutex
	rate   int64   // bytes per second
	tokens float64 // current available tokens
	last   time.Time
}

// NewRateLimiter returns a limiter for bytesPerSecond, or nil when the rate is not positive.
func NewRateLimiter(bytesPerSecond int64) *RateLimiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	return &RateLimiter{rate: bytesPerSecond, tokens: float64(bytesPerSecond), last: time.Now()}
}

// SetRate changes the rate; available tokens are capped to the new rate.
func (l *RateLimiter) SetRate(bytesPerSecond int64) {
	if l == nil || bytesPerSecond <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rate = bytesPerSecond
	if l.tokens > float64(bytesPerSecond) {
		l.tokens = float64(bytesPerSecond)
	}
	l.last = time.Now()
}

// Wrap returns r throttled by the limiter.
func (l *RateLimiter) Wrap(r io.Reader) io.Reader {
	if l == nil {
		return r
	}
	return &limitedReader{under: r, lim: l}
}

// take refills the bucket and reserves up to want bytes. It returns 0 when the bucket is empty.
func (l *RateLimiter) take(want int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rate <= 0 {
		return want
	}
	now := time.Now()
	if elapsed := now.Sub(l.last).Seconds(); elapsed > 0 {
		l.tokens += elapsed * float64(l.rate)
		if capacity := float64(l.rate); l.tokens > capacity {
			l.tokens = capacity
		}
		l.last = now
	}
	allowed := int(l.tokens)
	if allowed <= 0 {
		return 0
	}
	if want < allowed {
		allowed = want
	}
	l.tokens -= float64(allowed)
	return allowed
}

func (l *RateLimiter) refillInterval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return time.Duration(float64(time.Second) / float64(l.rate))
}

// refund returns reserved but unread bytes to the bucket.
func (l *RateLimiter) refund(n int) {
	if n <= 0 {
		return
	}
	l.mu.Lock()
	l.tokens += float64(n)
	l.mu.Unlock()
}

type limitedReader struct {
	under io.Reader
	lim   *RateLimiter
}

func (lr *limitedReader) Read(p []byte) (int, error) {
	if lr.lim == nil || len(p) == 0 {
		return lr.under.Read(p)
	}
	for {
		allowed := lr.lim.take(len(p))
		if allowed > 0 {
			n, err := lr.under.Read(p[:allowed])
			lr.lim.refund(allowed - n)
			return n, err
		}
		time.Sleep(lr.lim.refillInterval())
	}
}
