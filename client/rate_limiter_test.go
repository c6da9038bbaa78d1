package client

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimiter_ZeroAndNegative(t *testing.T) {
	for _, limit := range []int64{0, -100, -9999999} {
		assert.Nil(t, NewRateLimiter(limit), "limit %d should disable limiting", limit)
	}
}

func TestNilRateLimiterPassesThrough(t *testing.T) {
	var l *RateLimiter
	src := bytes.NewReader([]byte("data"))
	assert.Equal(t, io.Reader(src), l.Wrap(src))
	l.SetRate(10)
}

func TestRateLimiterThrottlesReads(t *testing.T) {
	l := NewRateLimiter(2048)
	payload := bytes.Repeat([]byte("x"), 4096)

	start := time.Now()
	out, err := io.ReadAll(l.Wrap(bytes.NewReader(payload)))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, payload, out)
	// The first second's worth is in the bucket; the rest has to be earned.
	assert.GreaterOrEqual(t, elapsed, 800*time.Millisecond)
	assert.Less(t, elapsed, 3*time.Second)
}

func TestRateLimiterSetRateCapsTokens(t *testing.T) {
	l := NewRateLimiter(1000)
	l.SetRate(10)
	assert.LessOrEqual(t, l.take(1000), 10)
}

func TestRateLimiterRefund(t *testing.T) {
	l := NewRateLimiter(100)
	got := l.take(100)
	require.Equal(t, 100, got)
	assert.Equal(t, 0, l.take(1))
	l.refund(50)
	assert.InDelta(t, 50, l.take(100), 2)
}

func TestRateLimiterConcurrentReaders(t *testing.T) {
	l := NewRateLimiter(1 << 20)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := io.ReadAll(l.Wrap(bytes.NewReader(make([]byte, 4096))))
			assert.NoError(t, err)
			assert.Len(t, out, 4096)
		}()
	}
	wg.Wait()
}
