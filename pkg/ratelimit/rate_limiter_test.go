package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTokenBucketRefills(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(0, 0)}
	limiter := NewTokenBucketLimiter(2, time.Second)
	defer limiter.Close()
	limiter.now = clock.Now

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := limiter.Allow(ctx, "a")
	assert.False(t, ok, "bucket should be empty")

	ok, _ = limiter.Allow(ctx, "b")
	assert.True(t, ok, "keys have separate buckets")

	clock.Advance(1500 * time.Millisecond)
	ok, _ = limiter.Allow(ctx, "a")
	assert.True(t, ok)
	ok, _ = limiter.Allow(ctx, "a")
	assert.False(t, ok, "partial refill periods carry over")

	require.NoError(t, limiter.Reset(ctx, "a"))
	ok, _ = limiter.Allow(ctx, "a")
	assert.True(t, ok)
}

func TestSlidingWindowExpiresOldRequests(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(0, 0)}
	limiter := NewSlidingWindowLimiter(3, time.Minute)
	limiter.now = clock.Now

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "ip")
		require.NoError(t, err)
		assert.True(t, ok)
		clock.Advance(10 * time.Second)
	}
	ok, _ := limiter.Allow(ctx, "ip")
	assert.False(t, ok)

	clock.Advance(31 * time.Second)
	ok, _ = limiter.Allow(ctx, "ip")
	assert.True(t, ok, "the first request left the window")
}

func TestSlidingWindowConcurrentCallers(t *testing.T) {
	limiter := NewSlidingWindowLimiter(50, time.Hour)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := limiter.Allow(context.Background(), "shared"); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}

func TestCompositeAndKeyedLimiters(t *testing.T) {
	ctx := context.Background()
	burst := NewTokenBucketLimiter(1, time.Hour)
	defer burst.Close()
	window := NewSlidingWindowLimiter(10, time.Minute)

	limiter := NewIPRateLimiter(NewCompositeRateLimiter(burst, window))

	ok, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = limiter.Allow(ctx, "10.0.0.1")
	assert.False(t, ok, "burst limiter denies the second request")

	// Keys are namespaced, so a session with the same value is unaffected
	ok, _ = NewSessionRateLimiter(burst).Allow(ctx, "10.0.0.1")
	assert.True(t, ok)

	require.NoError(t, limiter.Reset(ctx, "10.0.0.1"))
	ok, _ = limiter.Allow(ctx, "10.0.0.1")
	assert.True(t, ok)
}
