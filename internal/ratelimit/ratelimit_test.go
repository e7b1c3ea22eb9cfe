package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireBurstIsImmediate(t *testing.T) {
	t.Parallel()

	l := New(1.0, 3)
	ctx := context.Background()

	start := time.Now()
	for range 3 {
		require.NoError(t, l.Acquire(ctx, "cam"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond, "burst capacity should not delay")
}

func TestAcquireDelaysWhenBucketEmpty(t *testing.T) {
	t.Parallel()

	l := New(10.0, 1)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "cam"))

	start := time.Now()
	require.NoError(t, l.Acquire(ctx, "cam"))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond, "second acquire should wait for refill")
}

// Acquires completed in a window of length W must not exceed B + R*W.
func TestAcquireRateBound(t *testing.T) {
	t.Parallel()

	const (
		rps   = 50.0
		burst = 2
	)
	l := New(rps, burst)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	completed := 0
	for ctx.Err() == nil {
		if err := l.Acquire(ctx, "cam"); err != nil {
			break
		}
		completed++
	}
	window := time.Since(start).Seconds()

	bound := float64(burst) + rps*window
	assert.LessOrEqual(t, float64(completed), bound+1, "token bucket bound violated")
}

func TestAcquireObservesCancellation(t *testing.T) {
	t.Parallel()

	l := New(0.1, 1)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, l.Acquire(ctx, "cam"))

	done := make(chan error, 1)
	go func() {
		done <- l.Acquire(ctx, "cam")
	}()

	cancel()
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire did not observe cancellation")
	}
}

func TestResourcesAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(0.5, 1)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Acquire(ctx, "cam-a"))
	require.NoError(t, l.Acquire(ctx, "cam-b"))
	assert.Less(t, time.Since(start), 100*time.Millisecond, "distinct resources must not share a bucket")

	assert.ElementsMatch(t, []string{"cam-a", "cam-b"}, l.Resources())
}
