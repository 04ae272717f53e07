package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manual clock; sleeping advances it instantly.
type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	return nil
}

func newTestLimiter(clock *fakeClock, cpm int, jitter time.Duration) *Limiter {
	return New(cpm,
		WithClock(clock.Now),
		WithSleep(clock.Sleep),
		WithJitter(func() time.Duration { return jitter }),
	)
}

func TestNew_Interval(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 6*time.Second, New(10).Interval())
	assert.Equal(t, 2*time.Second, New(30).Interval())
	assert.Equal(t, 6*time.Second, New(0).Interval(), "non-positive falls back to default")
}

func TestAcquire_FirstCallDoesNotWait(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := newTestLimiter(clock, 10, 300*time.Millisecond)

	require.NoError(t, l.Acquire(context.Background()))
	assert.Empty(t, clock.sleeps)
}

func TestAcquire_WaitsRemainderPlusJitter(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := newTestLimiter(clock, 10, 250*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	clock.Advance(2 * time.Second)
	require.NoError(t, l.Acquire(ctx))

	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, 4*time.Second+250*time.Millisecond, clock.sleeps[0])
}

func TestAcquire_NoJitterWhenIntervalAlreadyElapsed(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := newTestLimiter(clock, 10, 250*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	clock.Advance(7 * time.Second)
	require.NoError(t, l.Acquire(ctx))

	assert.Empty(t, clock.sleeps)
}

func TestAcquire_GapsNeverBelowInterval(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	r := rand.New(rand.NewPCG(7, 11))
	l := New(10,
		WithClock(clock.Now),
		WithSleep(clock.Sleep),
		WithJitter(func() time.Duration { return minJitter + time.Duration(r.Int64N(int64(maxJitter-minJitter))) }),
	)
	ctx := context.Background()

	var grants []time.Time
	for range 50 {
		require.NoError(t, l.Acquire(ctx))
		grants = append(grants, clock.Now())
		clock.Advance(time.Duration(r.Int64N(int64(12 * time.Second))))
	}

	for i := 1; i < len(grants); i++ {
		assert.GreaterOrEqual(t, grants[i].Sub(grants[i-1]), l.Interval(), "gap %d", i)
	}
}

func TestAcquire_GlobalPacingAcrossGoroutines(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := newTestLimiter(clock, 60, 0)
	start := clock.Now()

	const workers, perWorker = 8, 5
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				assert.NoError(t, l.Acquire(context.Background()))
			}
		}()
	}
	wg.Wait()

	// Time only moves through the limiter's sleeps, so the final grant lands
	// exactly (N-1) intervals after the first.
	assert.Equal(t, time.Duration(workers*perWorker-1)*time.Second, clock.Now().Sub(start))
}

func TestAcquire_Cancelled(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := newTestLimiter(clock, 10, 0)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Acquire(ctx), context.Canceled)
}

func TestSleep_RealTimer(t *testing.T) {
	t.Parallel()

	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
