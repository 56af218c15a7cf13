package sealbox

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// janitorLoop sweeps every store on a fixed interval for the relay's
// lifetime. Each sweep acquires the same per-key locks as the request
// paths, so a sweep can never race a read that is mid-decrement.
func (r *Relay) janitorLoop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.opts.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep runs one janitor pass over all stores.
func (r *Relay) sweep() {
	now := r.clock.Now()

	notes := r.notes.Sweep(now)
	envelopes := r.store.SweepExpired(now)
	windows := r.limiter.Sweep(now)
	records := r.guard.Sweep(now)

	if notes > 0 || envelopes > 0 || windows > 0 || records > 0 {
		logrus.WithFields(logrus.Fields{
			"function":  "sweep",
			"notes":     notes,
			"envelopes": envelopes,
			"windows":   windows,
			"records":   records,
		}).Debug("Janitor sweep removed expired state")
	}
}
