package security

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/sealbox/timeutil"
)

func newTestLimiter(budget int, window time.Duration) (*RateLimiter, *timeutil.FakeTimeProvider) {
	clock := timeutil.NewFakeTimeProvider(time.Unix(1_700_000_000, 0))
	rules := map[string]Rule{"ep": {Budget: budget, Window: window}}
	return NewRateLimiter(rules, 0, clock), clock
}

func TestRateLimiterBudget(t *testing.T) {
	rl, _ := newTestLimiter(10, time.Minute)

	for i := 1; i <= 10; i++ {
		d := rl.Check("id", "ep")
		require.True(t, d.Allowed, "request %d should be within budget", i)
		assert.Equal(t, 10-i, d.Remaining)
	}

	d := rl.Check("id", "ep")
	require.False(t, d.Allowed, "request 11 must be denied")
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl, clock := newTestLimiter(2, time.Minute)

	require.True(t, rl.Check("id", "ep").Allowed)
	clock.Advance(30 * time.Second)
	require.True(t, rl.Check("id", "ep").Allowed)

	// First instant falls out of the window; budget frees up.
	clock.Advance(31 * time.Second)
	assert.True(t, rl.Check("id", "ep").Allowed)
}

func TestRateLimiterCooldownIsFlat(t *testing.T) {
	clock := timeutil.NewFakeTimeProvider(time.Unix(1_700_000_000, 0))
	rl := NewRateLimiter(map[string]Rule{"ep": {Budget: 1, Window: time.Second}}, 5*time.Minute, clock)

	require.True(t, rl.Check("id", "ep").Allowed)
	d := rl.Check("id", "ep")
	require.False(t, d.Allowed)
	// The punitive cooldown is the configured constant, not the window.
	assert.Equal(t, 5*time.Minute, d.RetryAfter)

	// While blocked, checks fail fast even after the window itself passed.
	clock.Advance(time.Minute)
	d = rl.Check("id", "ep")
	require.False(t, d.Allowed)
	assert.Equal(t, 4*time.Minute, d.RetryAfter)

	clock.Advance(4*time.Minute + time.Second)
	assert.True(t, rl.Check("id", "ep").Allowed, "cooldown expired")
}

func TestRateLimiterUnconfiguredEndpointAllows(t *testing.T) {
	rl, _ := newTestLimiter(1, time.Minute)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Check("id", "other").Allowed)
	}
}

func TestRateLimiterIsolatesIdentities(t *testing.T) {
	rl, _ := newTestLimiter(1, time.Minute)

	require.True(t, rl.Check("a", "ep").Allowed)
	require.False(t, rl.Check("a", "ep").Allowed)
	assert.True(t, rl.Check("b", "ep").Allowed, "other identities are unaffected")
}

func TestRateLimiterSweep(t *testing.T) {
	rl, clock := newTestLimiter(5, time.Minute)

	for i := 0; i < 10; i++ {
		rl.Check(fmt.Sprintf("id-%d", i), "ep")
	}
	assert.Equal(t, 0, rl.Sweep(clock.Now()), "fresh windows are kept")

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 10, rl.Sweep(clock.Now()), "idle windows are removed")
}
