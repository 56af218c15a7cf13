package security

import (
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/opd-ai/sealbox/timeutil"
)

// FingerprintBucket is the coarse time bucket within which a derived
// identity is stable. Outside the bucket the same caller hashes to a new
// identity, so fingerprints cannot be used for long-term tracking.
const FingerprintBucket = 5 * time.Minute

// Truncation lengths for attacker-supplied header values mixed into the
// fingerprint. Truncation bounds the input without meaningfully reducing
// the identity space for ordinary clients.
const (
	maxUserAgentLen  = 64
	maxAcceptLangLen = 32
	maxAcceptEncLen  = 32
	maxConnectionLen = 16
)

// Engine derives a bounded-lifetime pseudo-identity for a caller from
// proxy-forwarded headers. It is a pure function of the request and the
// current time bucket; nothing is stored.
//
// The identity is deliberately weak: every input except the peer address is
// attacker-controlled, so a caller can present a fresh identity per request
// by varying headers. Callers depend on this documented behavior; do not
// strengthen it here.
type Engine struct {
	sensitive map[string]bool
	clock     timeutil.TimeProvider
}

// NewEngine creates a fingerprint engine. Requests whose endpoint label is
// listed in sensitiveEndpoints receive a namespaced identity with
// additional entropy mixed in. A nil clock uses the system clock.
func NewEngine(sensitiveEndpoints []string, clock timeutil.TimeProvider) *Engine {
	if clock == nil {
		clock = timeutil.DefaultTimeProvider{}
	}
	set := make(map[string]bool, len(sensitiveEndpoints))
	for _, p := range sensitiveEndpoints {
		set[p] = true
	}
	return &Engine{sensitive: set, clock: clock}
}

// Fingerprint derives the caller's pseudo-identity from the request.
// endpoint is the same label the rate limiter keys on; it selects the
// sensitive namespace, while the digest itself mixes the concrete path.
func (e *Engine) Fingerprint(r *http.Request, endpoint string) string {
	bucket := e.clock.Now().Unix() / int64(FingerprintBucket.Seconds())

	authPresent := "0"
	if r.Header.Get("Authorization") != "" {
		authPresent = "1"
	}

	parts := []string{
		clientIP(r),
		truncate(r.Header.Get("User-Agent"), maxUserAgentLen),
		truncate(r.Header.Get("Accept-Language"), maxAcceptLangLen),
		truncate(r.Header.Get("Accept-Encoding"), maxAcceptEncLen),
		truncate(r.Header.Get("Connection"), maxConnectionLen),
		authPresent,
		r.URL.Path,
		fmt.Sprintf("%d", bucket),
	}

	if e.sensitive[endpoint] {
		parts = append(parts,
			r.Method,
			fmt.Sprintf("%d", len(r.Header)),
			headerSetDigest(r.Header),
		)
		return "s:" + digest(strings.Join(parts, "|"))
	}
	return digest(strings.Join(parts, "|"))
}

// clientIP prefers proxy-forwarded addresses over the raw peer address.
// X-Forwarded-For may carry a chain; the first hop is the original client.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return strings.TrimSpace(real)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// headerSetDigest hashes the sorted header pairs so that header ordering
// does not affect the sensitive-path identity.
func headerSetDigest(h http.Header) string {
	pairs := make([]string, 0, len(h))
	for k, vs := range h {
		pairs = append(pairs, k+"="+strings.Join(vs, ","))
	}
	sort.Strings(pairs)
	return digest(strings.Join(pairs, ";"))
}

func digest(s string) string {
	sum := blake2b.Sum256([]byte(s))
	return fmt.Sprintf("%x", sum[:16])
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
