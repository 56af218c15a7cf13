package security

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/sealbox/timeutil"
)

// DefaultCooldown is the flat penalty applied after a rate-limit violation.
// It is deliberately independent of the endpoint's window size: a caller
// that exhausts any budget sits out the full cooldown regardless of how
// short the window was.
const DefaultCooldown = 5 * time.Minute

// Rule is the request budget for one endpoint.
type Rule struct {
	Budget int
	Window time.Duration
}

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed    bool
	Remaining  int           // remaining budget after an allowed request
	RetryAfter time.Duration // meaningful only when denied
}

// rateWindow is the per (identity, endpoint) sliding-window log.
type rateWindow struct {
	instants     []time.Time
	blockedUntil time.Time
}

type rlShard struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
}

// RateLimiter enforces per (identity, endpoint) sliding-window budgets.
// Endpoints without a configured rule always allow. Safe for concurrent use;
// state is sharded so unrelated keys never contend on one lock.
type RateLimiter struct {
	rules    map[string]Rule
	cooldown time.Duration
	clock    timeutil.TimeProvider
	shards   [shardCount]rlShard
}

// NewRateLimiter creates a limiter with the given per-endpoint rules.
// A zero cooldown uses DefaultCooldown; a nil clock uses the system clock.
func NewRateLimiter(rules map[string]Rule, cooldown time.Duration, clock timeutil.TimeProvider) *RateLimiter {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if clock == nil {
		clock = timeutil.DefaultTimeProvider{}
	}
	rl := &RateLimiter{
		rules:    rules,
		cooldown: cooldown,
		clock:    clock,
	}
	for i := range rl.shards {
		rl.shards[i].windows = make(map[string]*rateWindow)
	}
	return rl
}

// Check records a request for (identity, endpoint) and decides whether it is
// within budget. While a violation cooldown is active every check is denied
// without touching the window log, so the log cannot grow during sustained
// abuse.
func (rl *RateLimiter) Check(identity, endpoint string) Decision {
	rule, ok := rl.rules[endpoint]
	if !ok {
		return Decision{Allowed: true, Remaining: -1}
	}

	now := rl.clock.Now()
	key := identity + "\x00" + endpoint
	shard := &rl.shards[shardIndex(key)]

	shard.mu.Lock()
	defer shard.mu.Unlock()

	w := shard.windows[key]
	if w == nil {
		w = &rateWindow{}
		shard.windows[key] = w
	}

	if w.blockedUntil.After(now) {
		return Decision{RetryAfter: w.blockedUntil.Sub(now)}
	}

	// Drop instants that fell out of the window.
	cutoff := now.Add(-rule.Window)
	kept := w.instants[:0]
	for _, t := range w.instants {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.instants = kept

	if len(w.instants) >= rule.Budget {
		w.blockedUntil = now.Add(rl.cooldown)
		logrus.WithFields(logrus.Fields{
			"function": "Check",
			"endpoint": endpoint,
			"budget":   rule.Budget,
			"cooldown": rl.cooldown,
		}).Debug("Rate limit exceeded, cooldown applied")
		return Decision{RetryAfter: rl.cooldown}
	}

	w.instants = append(w.instants, now)
	return Decision{Allowed: true, Remaining: rule.Budget - len(w.instants)}
}

// Sweep removes windows that are idle and no longer blocked. Returns the
// number of windows removed. Called by the janitor under the same per-shard
// locks as Check.
func (rl *RateLimiter) Sweep(now time.Time) int {
	removed := 0
	for i := range rl.shards {
		shard := &rl.shards[i]
		shard.mu.Lock()
		for key, w := range shard.windows {
			if w.blockedUntil.After(now) {
				continue
			}
			idle := true
			for _, t := range w.instants {
				// The widest configured window bounds how long an
				// instant can matter; one hour is safely beyond it.
				if now.Sub(t) < time.Hour {
					idle = false
					break
				}
			}
			if idle {
				delete(shard.windows, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}
