package vault

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSlotTakeDeletesOnRead(t *testing.T) {
	ts := NewTokenSlot()

	ts.Set("subject", []byte("payload"))

	payload, ok := ts.Take("subject")
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), payload)

	_, ok = ts.Take("subject")
	assert.False(t, ok, "second take must find nothing")
}

func TestTokenSlotMissingSubject(t *testing.T) {
	ts := NewTokenSlot()
	_, ok := ts.Take("never-set")
	assert.False(t, ok)
}

func TestTokenSlotSetReplaces(t *testing.T) {
	ts := NewTokenSlot()

	ts.Set("subject", []byte("old"))
	ts.Set("subject", []byte("new"))

	payload, ok := ts.Take("subject")
	require.True(t, ok)
	assert.Equal(t, []byte("new"), payload)
}

func TestTokenSlotConcurrentTakesOneWinner(t *testing.T) {
	ts := NewTokenSlot()
	ts.Set("subject", []byte("once"))

	const takers = 16
	var wg sync.WaitGroup
	var wins int32
	winners := make(chan []byte, takers)
	for i := 0; i < takers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if payload, ok := ts.Take("subject"); ok {
				winners <- payload
			}
		}()
	}
	wg.Wait()
	close(winners)

	for range winners {
		wins++
	}
	assert.EqualValues(t, 1, wins)
}
