package vault

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/sealbox/limits"
	"github.com/opd-ai/sealbox/timeutil"
)

var (
	// ErrNoteNotFound indicates the note is missing, expired, or already
	// consumed. The three cases are deliberately indistinguishable.
	ErrNoteNotFound = errors.New("note not found")

	// ErrNoteProtected indicates the note requires secret verification
	// before it can be read.
	ErrNoteProtected = errors.New("note requires unlock")

	// ErrReadLimitUnsupported indicates a caller asked for a read budget
	// other than one. Single-read is product policy, not a tunable.
	ErrReadLimitUnsupported = errors.New("read limit must be exactly 1")
)

// noteReadBudget is pinned by product policy. Every note self-destructs on
// its first successful read.
const noteReadBudget = 1

// Note is a single-read, TTL-bounded secret. The relay never interprets
// Ciphertext; it is an opaque blob sealed by the sender.
type Note struct {
	ID            string
	Ciphertext    []byte
	Meta          []byte
	CreatedAt     time.Time
	ExpiresAt     time.Time
	ReadBudget    int
	ViewsConsumed int

	// UnlockHash and DistressHash are reference digests for
	// secret-protected notes, nil otherwise. The vault stores digests
	// only; verification happens in the security layer.
	UnlockHash   []byte
	DistressHash []byte
}

// Receipt is returned on note creation.
type Receipt struct {
	ID        string
	ExpiresAt time.Time
	ViewsLeft int
}

// View is returned on a successful read.
type View struct {
	Ciphertext []byte
	Meta       []byte
	ViewsLeft  int
}

// CreateRequest carries the inputs for NoteVault.Create.
type CreateRequest struct {
	Ciphertext   []byte
	TTL          time.Duration
	Meta         []byte
	UnlockHash   []byte
	DistressHash []byte
}

type noteShard struct {
	mu    sync.Mutex
	notes map[string]*Note
}

// noteShardCount mirrors the security layer's sharding so per-id atomicity
// never rides on a single global lock.
const noteShardCount = 32

// NoteVault is the in-memory single-read secret store. Read and purge are
// one atomic step: of two concurrent reads for the same id, exactly one
// wins the last view and the other observes ErrNoteNotFound.
type NoteVault struct {
	clock  timeutil.TimeProvider
	shards [noteShardCount]noteShard
}

// NewNoteVault creates an empty vault. A nil clock uses the system clock.
func NewNoteVault(clock timeutil.TimeProvider) *NoteVault {
	if clock == nil {
		clock = timeutil.DefaultTimeProvider{}
	}
	v := &NoteVault{clock: clock}
	for i := range v.shards {
		v.shards[i].notes = make(map[string]*Note)
	}
	return v
}

func (v *NoteVault) shard(id string) *noteShard {
	return &v.shards[noteShardIndex(id)]
}

// Create stores a new note and returns its receipt. The TTL must fall in
// (0, limits.MaxNoteTTL]; the ciphertext and metadata must satisfy the
// relay payload bounds. Validation runs before any state is touched.
func (v *NoteVault) Create(req CreateRequest) (Receipt, error) {
	if err := limits.ValidateCiphertext(req.Ciphertext); err != nil {
		return Receipt{}, err
	}
	if err := limits.ValidateMetadata(req.Meta); err != nil {
		return Receipt{}, err
	}
	if err := limits.ValidateNoteTTL(req.TTL); err != nil {
		return Receipt{}, err
	}

	now := v.clock.Now()
	note := &Note{
		ID:           uuid.NewString(),
		Ciphertext:   req.Ciphertext,
		Meta:         req.Meta,
		CreatedAt:    now,
		ExpiresAt:    now.Add(req.TTL),
		ReadBudget:   noteReadBudget,
		UnlockHash:   req.UnlockHash,
		DistressHash: req.DistressHash,
	}

	shard := v.shard(note.ID)
	shard.mu.Lock()
	shard.notes[note.ID] = note
	shard.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "Create",
		"note_id":    note.ID,
		"ttl":        req.TTL,
		"protected":  len(req.UnlockHash) > 0,
		"size_bytes": len(req.Ciphertext),
	}).Debug("Note stored")

	return Receipt{ID: note.ID, ExpiresAt: note.ExpiresAt, ViewsLeft: noteReadBudget}, nil
}

// ValidateReadLimit rejects any requested read budget other than one.
func ValidateReadLimit(n int) error {
	if n != noteReadBudget {
		return fmt.Errorf("%w: got %d", ErrReadLimitUnsupported, n)
	}
	return nil
}

// Read consumes the note's single view and removes it in the same critical
// section. Expiry is checked first: a note past its TTL is treated as
// already gone. Secret-protected notes fail with ErrNoteProtected and are
// not consumed.
func (v *NoteVault) Read(id string) (View, error) {
	shard := v.shard(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	note, ok := shard.notes[id]
	if !ok {
		return View{}, ErrNoteNotFound
	}
	if !v.clock.Now().Before(note.ExpiresAt) {
		v.purgeLocked(shard, note)
		return View{}, ErrNoteNotFound
	}
	if len(note.UnlockHash) > 0 {
		return View{}, ErrNoteProtected
	}
	return v.consumeLocked(shard, note), nil
}

// Refs returns the reference digests of a protected note without consuming
// it. Missing, expired, and unprotected notes all fail with
// ErrNoteNotFound.
func (v *NoteVault) Refs(id string) (unlock, distress []byte, err error) {
	shard := v.shard(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	note, ok := shard.notes[id]
	if !ok {
		return nil, nil, ErrNoteNotFound
	}
	if !v.clock.Now().Before(note.ExpiresAt) {
		v.purgeLocked(shard, note)
		return nil, nil, ErrNoteNotFound
	}
	if len(note.UnlockHash) == 0 {
		return nil, nil, ErrNoteNotFound
	}
	return note.UnlockHash, note.DistressHash, nil
}

// Consume reads a protected note after external verification succeeded.
// Same atomic read-and-purge as Read, skipping the protection check.
func (v *NoteVault) Consume(id string) (View, error) {
	shard := v.shard(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	note, ok := shard.notes[id]
	if !ok {
		return View{}, ErrNoteNotFound
	}
	if !v.clock.Now().Before(note.ExpiresAt) {
		v.purgeLocked(shard, note)
		return View{}, ErrNoteNotFound
	}
	return v.consumeLocked(shard, note), nil
}

// Burn silently destroys a note if it exists. Used by distress side
// effects; it never reports whether anything was removed.
func (v *NoteVault) Burn(id string) {
	shard := v.shard(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if note, ok := shard.notes[id]; ok {
		v.purgeLocked(shard, note)
		logrus.WithFields(logrus.Fields{
			"function": "Burn",
			"note_id":  id,
		}).Info("Note burned")
	}
}

// Sweep removes every expired note. Returns the number removed. Runs under
// the same per-shard locks as Read, so a sweep can never race a concurrent
// read mid-decrement.
func (v *NoteVault) Sweep(now time.Time) int {
	removed := 0
	for i := range v.shards {
		shard := &v.shards[i]
		shard.mu.Lock()
		for _, note := range shard.notes {
			if !now.Before(note.ExpiresAt) {
				v.purgeLocked(shard, note)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// consumeLocked hands out the note's content and purges it when the budget
// is spent. Caller holds the shard lock.
func (v *NoteVault) consumeLocked(shard *noteShard, note *Note) View {
	note.ViewsConsumed++
	viewsLeft := note.ReadBudget - note.ViewsConsumed

	// Hand out a copy; the stored buffer is wiped on purge.
	ct := make([]byte, len(note.Ciphertext))
	copy(ct, note.Ciphertext)
	meta := make([]byte, len(note.Meta))
	copy(meta, note.Meta)

	if viewsLeft <= 0 {
		v.purgeLocked(shard, note)
	}
	return View{Ciphertext: ct, Meta: meta, ViewsLeft: viewsLeft}
}

// purgeLocked wipes and removes a note. Caller holds the shard lock.
func (v *NoteVault) purgeLocked(shard *noteShard, note *Note) {
	wipe(note.Ciphertext)
	wipe(note.UnlockHash)
	wipe(note.DistressHash)
	delete(shard.notes, note.ID)
}
