package vault

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/sealbox/limits"
	"github.com/opd-ai/sealbox/timeutil"
)

func newTestVault() (*NoteVault, *timeutil.FakeTimeProvider) {
	clock := timeutil.NewFakeTimeProvider(time.Unix(1_700_000_000, 0))
	return NewNoteVault(clock), clock
}

func TestNoteSingleRead(t *testing.T) {
	v, _ := newTestVault()

	receipt, err := v.Create(CreateRequest{Ciphertext: []byte("abc"), TTL: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.ViewsLeft)

	view, err := v.Read(receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), view.Ciphertext)
	assert.Equal(t, 0, view.ViewsLeft)

	_, err = v.Read(receipt.ID)
	assert.ErrorIs(t, err, ErrNoteNotFound, "second read must find nothing")
}

func TestNoteExpiryIndistinguishableFromMissing(t *testing.T) {
	v, clock := newTestVault()

	receipt, err := v.Create(CreateRequest{Ciphertext: []byte("abc"), TTL: time.Minute})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = v.Read(receipt.ID)
	assert.ErrorIs(t, err, ErrNoteNotFound)

	_, err = v.Read("no-such-id")
	assert.ErrorIs(t, err, ErrNoteNotFound)
}

func TestNoteCreateValidation(t *testing.T) {
	v, _ := newTestVault()

	_, err := v.Create(CreateRequest{Ciphertext: nil, TTL: time.Minute})
	assert.ErrorIs(t, err, limits.ErrPayloadEmpty)

	_, err = v.Create(CreateRequest{Ciphertext: []byte("x"), TTL: 0})
	assert.ErrorIs(t, err, limits.ErrTTLOutOfRange)

	_, err = v.Create(CreateRequest{Ciphertext: []byte("x"), TTL: limits.MaxNoteTTL + time.Hour})
	assert.ErrorIs(t, err, limits.ErrTTLOutOfRange)
}

func TestValidateReadLimit(t *testing.T) {
	assert.NoError(t, ValidateReadLimit(1))
	assert.ErrorIs(t, ValidateReadLimit(0), ErrReadLimitUnsupported)
	assert.ErrorIs(t, ValidateReadLimit(2), ErrReadLimitUnsupported)
	assert.ErrorIs(t, ValidateReadLimit(-1), ErrReadLimitUnsupported)
}

func TestNoteConcurrentReadsExactlyOneWinner(t *testing.T) {
	v, _ := newTestVault()

	receipt, err := v.Create(CreateRequest{Ciphertext: []byte("race"), TTL: time.Minute})
	require.NoError(t, err)

	const readers = 32
	var wg sync.WaitGroup
	wins := make(chan View, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if view, err := v.Read(receipt.ID); err == nil {
				wins <- view
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for view := range wins {
		count++
		assert.Equal(t, []byte("race"), view.Ciphertext)
	}
	assert.Equal(t, 1, count, "exactly one concurrent reader may win the last view")
}

func TestNoteProtectedReadPaths(t *testing.T) {
	v, _ := newTestVault()

	receipt, err := v.Create(CreateRequest{
		Ciphertext: []byte("sealed"),
		TTL:        time.Minute,
		UnlockHash: []byte("digest-placeholder-32-bytes-long"),
	})
	require.NoError(t, err)

	_, err = v.Read(receipt.ID)
	assert.ErrorIs(t, err, ErrNoteProtected, "plain read must not consume a protected note")

	unlock, distress, err := v.Refs(receipt.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, unlock)
	assert.Empty(t, distress)

	view, err := v.Consume(receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("sealed"), view.Ciphertext)

	_, _, err = v.Refs(receipt.ID)
	assert.ErrorIs(t, err, ErrNoteNotFound, "consume must purge the note")
}

func TestNoteRefsOnUnprotectedNote(t *testing.T) {
	v, _ := newTestVault()

	receipt, err := v.Create(CreateRequest{Ciphertext: []byte("plain"), TTL: time.Minute})
	require.NoError(t, err)

	_, _, err = v.Refs(receipt.ID)
	assert.ErrorIs(t, err, ErrNoteNotFound)
}

func TestNoteBurn(t *testing.T) {
	v, _ := newTestVault()

	receipt, err := v.Create(CreateRequest{Ciphertext: []byte("gone"), TTL: time.Minute})
	require.NoError(t, err)

	v.Burn(receipt.ID)
	_, err = v.Read(receipt.ID)
	assert.ErrorIs(t, err, ErrNoteNotFound)

	// Burning a missing note is silent.
	v.Burn("no-such-id")
}

func TestNoteSweep(t *testing.T) {
	v, clock := newTestVault()

	short, err := v.Create(CreateRequest{Ciphertext: []byte("short"), TTL: time.Minute})
	require.NoError(t, err)
	long, err := v.Create(CreateRequest{Ciphertext: []byte("long"), TTL: time.Hour})
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, v.Sweep(clock.Now()))

	_, err = v.Read(short.ID)
	assert.ErrorIs(t, err, ErrNoteNotFound)
	view, err := v.Read(long.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("long"), view.Ciphertext)
}
