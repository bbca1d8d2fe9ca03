package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "1.2.3.4", 2, time.Second)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "1.2.3.4", 2, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// Another client has its own budget.
	ok, err = rl.Allow(ctx, "5.6.7.8", 2, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// Once the window slides past the first requests the client is admitted.
	now = now.Add(1500 * time.Millisecond)
	ok, err = rl.Allow(ctx, "1.2.3.4", 2, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
