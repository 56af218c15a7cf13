// Package security implements the shared abuse-resistance layer of the relay:
// proxy-aware client fingerprinting, sliding-window rate limiting,
// exponential-backoff brute-force lockout, and constant-time secret
// verification.
//
// # Components
//
//   - Engine: derives a bounded-lifetime pseudo-identity from proxy-forwarded
//     request headers. The identity is stable within a coarse time bucket but
//     is not a durable identity.
//   - RateLimiter: per (identity, endpoint) sliding-window request budget with
//     a flat punitive cooldown after a violation.
//   - BruteForceGuard: cumulative failed-attempt tracker with a doubling
//     lockout, independent of the rate limiter.
//   - Verifier: outcome-independent-latency comparison of a submitted secret
//     against one or more reference digests.
//
// All mutable state is keyed per (identity, endpoint) or (identity,
// identifier) and locked per shard, never behind a single global lock, so
// unrelated traffic is never serialized.
package security
