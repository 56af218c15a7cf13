package security

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/sealbox/timeutil"
)

const (
	// LockThreshold is the number of failed attempts before a lockout.
	LockThreshold = 5

	// DefaultBasePenalty is the first lockout duration. Each further
	// escalation doubles it.
	DefaultBasePenalty = 5 * time.Minute

	// MaxPenalty caps the exponential lockout. Ten years is effectively a
	// permanent ban for an in-memory store.
	MaxPenalty = 10 * 365 * 24 * time.Hour

	// guardIdleTTL is how long an unlocked record may sit untouched before
	// the janitor removes it.
	guardIdleTTL = 24 * time.Hour
)

// GuardDecision is the outcome of a brute-force guard call.
type GuardDecision struct {
	Allowed    bool
	Attempts   int
	RetryAfter time.Duration // meaningful only when locked
}

// bruteRecord tracks failures for one (identity, identifier) key.
type bruteRecord struct {
	attempts     int
	penaltyLevel int
	blockedUntil time.Time
	lastTouched  time.Time
}

type bfShard struct {
	mu      sync.Mutex
	records map[string]*bruteRecord
}

// BruteForceGuard tracks failed verification attempts per (identity,
// identifier) and applies an exponentially doubling lockout once the
// threshold is crossed. While a lockout is active every call short-circuits
// without mutating the record, so lockouts never compound while active; only
// a failure arriving after natural expiry escalates further. This is a
// deliberate tarpit policy against credential stuffing.
type BruteForceGuard struct {
	basePenalty time.Duration
	clock       timeutil.TimeProvider
	shards      [shardCount]bfShard
}

// NewBruteForceGuard creates a guard. A zero basePenalty uses
// DefaultBasePenalty; a nil clock uses the system clock.
func NewBruteForceGuard(basePenalty time.Duration, clock timeutil.TimeProvider) *BruteForceGuard {
	if basePenalty <= 0 {
		basePenalty = DefaultBasePenalty
	}
	if clock == nil {
		clock = timeutil.DefaultTimeProvider{}
	}
	g := &BruteForceGuard{basePenalty: basePenalty, clock: clock}
	for i := range g.shards {
		g.shards[i].records = make(map[string]*bruteRecord)
	}
	return g
}

// Check reports whether the key is currently locked without recording an
// attempt. Callers must consult Check before running the protected
// operation so a lockout can never be bypassed.
func (g *BruteForceGuard) Check(identity, identifier string) GuardDecision {
	now := g.clock.Now()
	key := identity + "\x00" + identifier
	shard := &g.shards[shardIndex(key)]

	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec := shard.records[key]
	if rec == nil {
		return GuardDecision{Allowed: true}
	}
	if rec.blockedUntil.After(now) {
		return GuardDecision{Attempts: rec.attempts, RetryAfter: rec.blockedUntil.Sub(now)}
	}
	return GuardDecision{Allowed: true, Attempts: rec.attempts}
}

// Record registers the outcome of a verification attempt. A success wipes
// the record; a failure increments the attempt count and, once the count
// reaches LockThreshold, escalates the penalty level and sets the lockout.
// While locked, both successes and failures short-circuit unmutated.
func (g *BruteForceGuard) Record(identity, identifier string, success bool) GuardDecision {
	now := g.clock.Now()
	key := identity + "\x00" + identifier
	shard := &g.shards[shardIndex(key)]

	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec := shard.records[key]
	if rec != nil && rec.blockedUntil.After(now) {
		return GuardDecision{Attempts: rec.attempts, RetryAfter: rec.blockedUntil.Sub(now)}
	}

	if success {
		if rec != nil {
			delete(shard.records, key)
		}
		return GuardDecision{Allowed: true}
	}

	if rec == nil {
		rec = &bruteRecord{}
		shard.records[key] = rec
	}
	rec.attempts++
	rec.lastTouched = now

	if rec.attempts >= LockThreshold {
		rec.penaltyLevel++
		lockout := g.basePenalty << (rec.penaltyLevel - 1)
		if lockout > MaxPenalty || lockout <= 0 {
			lockout = MaxPenalty
		}
		rec.blockedUntil = now.Add(lockout)
		logrus.WithFields(logrus.Fields{
			"function": "Record",
			"attempts": rec.attempts,
			"level":    rec.penaltyLevel,
			"lockout":  lockout,
		}).Warn("Brute-force lockout applied")
		return GuardDecision{Attempts: rec.attempts, RetryAfter: lockout}
	}

	return GuardDecision{Allowed: true, Attempts: rec.attempts}
}

// Sweep removes records whose lockout has expired and that have been idle
// past guardIdleTTL. Returns the number of records removed.
func (g *BruteForceGuard) Sweep(now time.Time) int {
	removed := 0
	for i := range g.shards {
		shard := &g.shards[i]
		shard.mu.Lock()
		for key, rec := range shard.records {
			if rec.blockedUntil.After(now) {
				continue
			}
			if now.Sub(rec.lastTouched) >= guardIdleTTL {
				delete(shard.records, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}
