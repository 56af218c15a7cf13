package vault

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// TokenSlot is a set-once, take-once slot keyed by an opaque subject id.
// Take deletes on read, the same semantics as NoteVault's read-and-purge.
// Collaborating subsystems (kill tokens, wipe tokens, custody handoffs)
// consume this contract without depending on the note store.
type TokenSlot struct {
	shards [noteShardCount]tokenShard
}

type tokenShard struct {
	mu    sync.Mutex
	slots map[string][]byte
}

// NewTokenSlot creates an empty token slot store.
func NewTokenSlot() *TokenSlot {
	ts := &TokenSlot{}
	for i := range ts.shards {
		ts.shards[i].slots = make(map[string][]byte)
	}
	return ts
}

// Set stores the payload for a subject, replacing any previous payload.
// The previous payload, if any, is wiped.
func (ts *TokenSlot) Set(subject string, payload []byte) {
	shard := &ts.shards[noteShardIndex(subject)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if old, ok := shard.slots[subject]; ok {
		wipe(old)
	}
	shard.slots[subject] = payload

	logrus.WithFields(logrus.Fields{
		"function": "Set",
		"subject":  subject,
	}).Debug("Token slot set")
}

// Take removes and returns the payload for a subject. Exactly one of two
// concurrent takes for the same subject can succeed.
func (ts *TokenSlot) Take(subject string) ([]byte, bool) {
	shard := &ts.shards[noteShardIndex(subject)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	payload, ok := shard.slots[subject]
	if !ok {
		return nil, false
	}
	delete(shard.slots, subject)
	return payload, true
}
