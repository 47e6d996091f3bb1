package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateBucketAllowsBurstUpToLimit(t *testing.T) {
	rb := NewRateBucket(10, 3, 0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		assert.NoError(t, rb.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 20*time.Millisecond, "burst up to the configured limit must not block")
}

func TestRateBucketBlocksBeyondBurst(t *testing.T) {
	rb := NewRateBucket(20, 1, 0) // 1-token bucket refilling at 20/s (50ms per token)
	ctx := context.Background()

	assert.NoError(t, rb.Wait(ctx)) // drains the single token immediately

	start := time.Now()
	assert.NoError(t, rb.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond, "the second call must wait for a refill")
}

func TestRateBucketRespectsContextCancellation(t *testing.T) {
	rb := NewRateBucket(1, 1, 0)
	ctx := context.Background()
	assert.NoError(t, rb.Wait(ctx)) // drain the only token

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancel()
	err := rb.Wait(cancelCtx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateBucketPerMinuteCapAlsoApplies(t *testing.T) {
	// A generous per-second rate but a tight per-minute cap: the per-minute
	// bucket must be the one that ends up gating, even though the
	// per-second bucket alone would let every call through immediately.
	// A 2-per-minute bucket refills roughly one token per 30s, far longer
	// than any test should actually wait, so a short context deadline is
	// used to observe that the call blocks rather than to wait it out.
	rb := NewRateBucket(100, 100, 2)
	ctx := context.Background()

	assert.NoError(t, rb.Wait(ctx))
	assert.NoError(t, rb.Wait(ctx))

	shortCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := rb.Wait(shortCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "the per-minute bucket must still be gating after two calls already drained its two-token capacity")
}
