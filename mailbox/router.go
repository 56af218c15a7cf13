package mailbox

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/sealbox/limits"
	"github.com/opd-ai/sealbox/timeutil"
)

// DefaultPollMax bounds how many envelopes one poll returns when the
// caller does not say.
const DefaultPollMax = 10

// MaxPollMax is the hard ceiling for one poll.
const MaxPollMax = 100

// Router is the send/poll face of the mailbox. Send prefers live delivery
// through the hub and falls back to queuing; Poll drains queued entries
// delete-on-delivery.
type Router struct {
	store      *Store
	hub        *Hub
	mailboxTTL time.Duration
	clock      timeutil.TimeProvider
}

// NewRouter wires a router over its store and hub. A zero mailboxTTL uses
// limits.MailboxTTL; a nil clock uses the system clock.
func NewRouter(store *Store, hub *Hub, mailboxTTL time.Duration, clock timeutil.TimeProvider) *Router {
	if mailboxTTL <= 0 {
		mailboxTTL = limits.MailboxTTL
	}
	if clock == nil {
		clock = timeutil.DefaultTimeProvider{}
	}
	return &Router{store: store, hub: hub, mailboxTTL: mailboxTTL, clock: clock}
}

// Send routes one envelope. With at least one live subscriber for the
// recipient, the envelope is fanned out to every subscriber connection and
// never enqueued, even if every push fails mid-send — an explicit
// at-most-once tradeoff. Otherwise it is queued with the mailbox TTL.
// A zero ts uses the current time.
func (r *Router) Send(to, from string, ciphertext []byte, ts time.Time) (string, error) {
	if err := limits.ValidateIdentifier(to); err != nil {
		return "", err
	}
	if err := limits.ValidateIdentifier(from); err != nil {
		return "", err
	}
	if err := limits.ValidateCiphertext(ciphertext); err != nil {
		return "", err
	}

	now := r.clock.Now()
	if ts.IsZero() {
		ts = now
	}
	env := Envelope{
		ID:         uuid.NewString(),
		Recipient:  to,
		Sender:     from,
		Ciphertext: ciphertext,
		CreatedAt:  ts,
		ExpiresAt:  now.Add(r.mailboxTTL),
	}

	if r.hub.HasSubscribers(to) {
		delivered := r.hub.FanOut(to, []Envelope{env})
		logrus.WithFields(logrus.Fields{
			"function":    "Send",
			"envelope_id": env.ID,
			"delivered":   delivered,
		}).Debug("Envelope fanned out to live subscribers")
		return env.ID, nil
	}

	r.store.Append(env)
	logrus.WithFields(logrus.Fields{
		"function":    "Send",
		"envelope_id": env.ID,
		"expires_at":  env.ExpiresAt,
	}).Debug("Envelope queued for offline recipient")
	return env.ID, nil
}

// Poll atomically removes and returns up to max of the oldest queued
// envelopes for the recipient. An immediate second poll returns the
// remainder, empty once drained.
func (r *Router) Poll(to string, max int) ([]Envelope, error) {
	if err := limits.ValidateIdentifier(to); err != nil {
		return nil, err
	}
	if max <= 0 {
		max = DefaultPollMax
	}
	if max > MaxPollMax {
		max = MaxPollMax
	}
	return r.store.Take(to, max), nil
}

// Subscribe registers a live connection and immediately flushes any queued
// entries to it, before the transport enters its keep-alive loop. The
// flush happens exactly once: the flushed entries are removed from the
// mailbox even if the initial push fails, so a reconnecting client never
// double-polls stale state.
func (r *Router) Subscribe(to string, p Pusher) error {
	if err := limits.ValidateIdentifier(to); err != nil {
		return err
	}
	r.hub.Add(to, p)

	queued := r.store.TakeAll(to)
	if len(queued) > 0 {
		if err := p.Push(queued); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "Subscribe",
				"recipient": to,
				"queued":    len(queued),
				"error":     err.Error(),
			}).Warn("Initial mailbox flush failed, pruning connection")
			r.hub.Remove(to, p)
			return err
		}
	}
	return nil
}

// Unsubscribe removes a live connection. Safe to call more than once.
func (r *Router) Unsubscribe(to string, p Pusher) {
	r.hub.Remove(to, p)
}
