package security

import (
	"crypto/subtle"
	"time"

	"golang.org/x/crypto/blake2b"
)

const (
	// DefaultMinVerifyDuration floors the wall-clock latency of every
	// Verify call. Any remaining budget is slept off on the monotonic
	// clock before returning.
	DefaultMinVerifyDuration = 150 * time.Millisecond

	// decoyIterations is the fixed length of the decoy hash chain run on
	// every call, matched or not, so CPU time is not a distinguishing
	// signal.
	decoyIterations = 64
)

// Reference is one candidate secret for verification. Value holds the
// BLAKE2b digest of the secret, never the secret itself (see HashSecret).
// OnMatch, if set, is invoked on a separate goroutine after the latency
// floor when this reference matches; it must never influence the response
// the caller produces.
type Reference struct {
	Tag     string
	Value   []byte
	OnMatch func()
}

// HashSecret derives the reference digest for a secret. Hashing normalizes
// length so comparisons cannot leak how long the stored secret is.
func HashSecret(secret []byte) []byte {
	sum := blake2b.Sum256(secret)
	return sum[:]
}

// Verifier compares a submitted secret against reference digests with
// outcome-independent latency. Three contracts hold for every call: each
// reference is compared in constant time with no early exit, a fixed amount
// of decoy hashing runs regardless of outcome, and total latency is floored
// to MinDuration.
type Verifier struct {
	minDuration time.Duration
}

// NewVerifier creates a verifier. A zero minDuration uses
// DefaultMinVerifyDuration.
func NewVerifier(minDuration time.Duration) *Verifier {
	if minDuration <= 0 {
		minDuration = DefaultMinVerifyDuration
	}
	return &Verifier{minDuration: minDuration}
}

// Verify checks submitted against every reference and returns the tag of
// the matching one. The first matching reference wins if several carry the
// same digest; all references are compared either way.
func (v *Verifier) Verify(submitted []byte, refs []Reference) (string, bool) {
	start := time.Now()

	sum := blake2b.Sum256(submitted)
	matched := -1
	for i := range refs {
		eq := subtle.ConstantTimeCompare(sum[:], refs[i].Value)
		// Keep the first match; ConstantTimeSelect avoids a branch on eq.
		keepNew := eq & boolToInt(matched < 0)
		matched = subtle.ConstantTimeSelect(keepNew, i, matched)
	}

	runDecoyWork(sum[:])

	if elapsed := time.Since(start); elapsed < v.minDuration {
		time.Sleep(v.minDuration - elapsed)
	}

	if matched < 0 {
		return "", false
	}
	ref := refs[matched]
	if ref.OnMatch != nil {
		go ref.OnMatch()
	}
	return ref.Tag, true
}

// runDecoyWork burns a fixed amount of hashing so the number of references
// and the match outcome do not show up as CPU-time differences.
func runDecoyWork(seed []byte) {
	chain := blake2b.Sum256(seed)
	for i := 0; i < decoyIterations; i++ {
		chain = blake2b.Sum256(chain[:])
	}
	// Fold the result into a volatile-ish sink so the chain is not
	// trivially removable.
	subtle.ConstantTimeByteEq(chain[0], chain[1])
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
