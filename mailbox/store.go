package mailbox

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/opd-ai/sealbox/timeutil"
)

// Envelope is one store-and-forward message. Ciphertext is opaque to the
// relay; Recipient and Sender are uninterpreted OIDs.
type Envelope struct {
	ID         string
	Recipient  string
	Sender     string
	Ciphertext []byte
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

const storeShardCount = 32

type storeShard struct {
	mu    sync.Mutex
	boxes map[string][]Envelope
}

// Store holds the per-recipient FIFO mailboxes. Insertion order is
// delivery order. Safe for concurrent use; recipients are sharded so
// unrelated mailboxes never contend on one lock.
type Store struct {
	clock  timeutil.TimeProvider
	shards [storeShardCount]storeShard
}

// NewStore creates an empty mailbox store. A nil clock uses the system
// clock.
func NewStore(clock timeutil.TimeProvider) *Store {
	if clock == nil {
		clock = timeutil.DefaultTimeProvider{}
	}
	s := &Store{clock: clock}
	for i := range s.shards {
		s.shards[i].boxes = make(map[string][]Envelope)
	}
	return s
}

func (s *Store) shard(recipient string) *storeShard {
	h := fnv.New32a()
	h.Write([]byte(recipient))
	return &s.shards[h.Sum32()&(storeShardCount-1)]
}

// Append queues an envelope at the tail of its recipient's mailbox.
func (s *Store) Append(env Envelope) {
	shard := s.shard(env.Recipient)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.boxes[env.Recipient] = append(shard.boxes[env.Recipient], env)
}

// Take removes and returns up to max of the oldest live entries for the
// recipient. The returned entries are gone from the mailbox before Take
// returns; an immediate second Take yields the remainder. Expired entries
// encountered on the way are dropped, not returned.
func (s *Store) Take(recipient string, max int) []Envelope {
	if max <= 0 {
		return nil
	}
	now := s.clock.Now()
	shard := s.shard(recipient)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	box := shard.boxes[recipient]
	if len(box) == 0 {
		return nil
	}

	taken := make([]Envelope, 0, max)
	rest := box[:0]
	for _, env := range box {
		if !now.Before(env.ExpiresAt) {
			continue
		}
		if len(taken) < max {
			taken = append(taken, env)
		} else {
			rest = append(rest, env)
		}
	}

	if len(rest) == 0 {
		delete(shard.boxes, recipient)
	} else {
		shard.boxes[recipient] = append([]Envelope(nil), rest...)
	}
	return taken
}

// TakeAll drains the recipient's entire mailbox. Used for the one-shot
// flush when a subscriber connects.
func (s *Store) TakeAll(recipient string) []Envelope {
	now := s.clock.Now()
	shard := s.shard(recipient)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	box := shard.boxes[recipient]
	if len(box) == 0 {
		return nil
	}
	delete(shard.boxes, recipient)

	live := make([]Envelope, 0, len(box))
	for _, env := range box {
		if now.Before(env.ExpiresAt) {
			live = append(live, env)
		}
	}
	return live
}

// SweepExpired filters every mailbox down to its live entries. Returns the
// number of envelopes dropped. Runs under the same per-shard locks as Take.
func (s *Store) SweepExpired(now time.Time) int {
	dropped := 0
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.Lock()
		for recipient, box := range shard.boxes {
			live := box[:0]
			for _, env := range box {
				if now.Before(env.ExpiresAt) {
					live = append(live, env)
				} else {
					dropped++
				}
			}
			if len(live) == 0 {
				delete(shard.boxes, recipient)
			} else {
				shard.boxes[recipient] = live
			}
		}
		shard.mu.Unlock()
	}
	return dropped
}
