// Package vault implements the single-read ephemeral secret store.
//
// A Note is created with a bounded TTL and exactly one read: the read and
// the purge happen in one critical section, so no second caller can observe
// a spent note. An expired note is indistinguishable from one that never
// existed. The package also provides TokenSlot, a set-once/take-once slot
// with the same read-and-purge semantics, consumed by collaborating
// subsystems for one-shot kill and wipe tokens.
//
// Storage is volatile by design. Nothing survives a process restart.
package vault
