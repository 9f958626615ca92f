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
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.advance(d)
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestAcquireBlocksEleventhUntilFirstExpires(t *testing.T) {
	clock := newFakeClock()
	l := New(10, 60*time.Second, WithClock(clock))
	ctx := context.Background()

	first := clock.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Acquire(ctx))
		clock.advance(time.Second)
	}
	assert.Empty(t, clock.sleeps, "first ten acquisitions must not wait")
	assert.Equal(t, 0, l.Available())

	require.NoError(t, l.Acquire(ctx))

	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, 50*time.Second, clock.sleeps[0])
	assert.GreaterOrEqual(t, clock.Now().Sub(first), 60*time.Second)
}

func TestAcquireEvictsExpiredGrants(t *testing.T) {
	clock := newFakeClock()
	l := New(2, time.Minute, WithClock(clock))
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	clock.advance(time.Minute)

	assert.Equal(t, 2, l.Available())
	require.NoError(t, l.Acquire(ctx))
	assert.Empty(t, clock.sleeps)
}

func TestAcquireHonoursContext(t *testing.T) {
	clock := newFakeClock()
	l := New(1, time.Minute, WithClock(clock))

	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Acquire(ctx), context.Canceled)
}

func TestAcquireConcurrent(t *testing.T) {
	clock := newFakeClock()
	l := New(5, time.Minute, WithClock(clock))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Acquire(context.Background()))
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, l.Available())
	assert.Empty(t, clock.sleeps)
}

func TestNewDefaults(t *testing.T) {
	l := New(0, 0)
	assert.Equal(t, DefaultMaxRequests, l.max)
	assert.Equal(t, DefaultWindow, l.window)
}
