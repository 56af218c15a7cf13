// Package sealbox implements an ephemeral, self-destructing message relay:
// single-read secrets, store-and-forward envelopes with real-time push
// delivery, and a shared abuse-resistance layer providing proxy-aware
// client fingerprinting, sliding-window rate limiting, brute-force lockout,
// and constant-time secret verification.
//
// Example:
//
//	options := sealbox.NewOptions()
//
//	relay, err := sealbox.New(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer relay.Close()
//
//	receipt, err := relay.CreateNote(sealbox.CreateNoteParams{
//	    Ciphertext: sealed,
//	    TTL:        time.Hour,
//	    ReadLimit:  1,
//	})
//
// All storage is volatile by design: nothing survives a process restart.
package sealbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/sealbox/mailbox"
	"github.com/opd-ai/sealbox/security"
	"github.com/opd-ai/sealbox/timeutil"
	"github.com/opd-ai/sealbox/vault"
)

// Reference tags used for protected-note verification.
const (
	tagUnlock   = "unlock"
	tagDistress = "distress"
)

// Relay owns every store and the background janitor. It is the single
// construction point for the relay's process-wide state; nothing in this
// module uses ambient singletons, so tests can run many relays side by
// side.
type Relay struct {
	opts     *Options
	engine   *security.Engine
	limiter  *security.RateLimiter
	guard    *security.BruteForceGuard
	verifier *security.Verifier
	notes    *vault.NoteVault
	tokens   *vault.TokenSlot
	store    *mailbox.Store
	hub      *mailbox.Hub
	router   *mailbox.Router
	clock    timeutil.TimeProvider

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Relay and starts its janitor. A nil options uses
// NewOptions defaults.
func New(opts *Options) (*Relay, error) {
	if opts == nil {
		opts = NewOptions()
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.DefaultTimeProvider{}
	}

	store := mailbox.NewStore(clock)
	hub := mailbox.NewHub()

	r := &Relay{
		opts:     opts,
		engine:   security.NewEngine(opts.SensitiveEndpoints, clock),
		limiter:  security.NewRateLimiter(opts.RateRules, opts.Cooldown, clock),
		guard:    security.NewBruteForceGuard(opts.BasePenalty, clock),
		verifier: security.NewVerifier(opts.MinVerifyDuration),
		notes:    vault.NewNoteVault(clock),
		tokens:   vault.NewTokenSlot(),
		store:    store,
		hub:      hub,
		router:   mailbox.NewRouter(store, hub, opts.MailboxTTL, clock),
		clock:    clock,
		done:     make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.janitorLoop(ctx)

	logrus.WithFields(logrus.Fields{
		"function":         "New",
		"janitor_interval": opts.JanitorInterval,
	}).Info("Relay started")
	return r, nil
}

// Close stops the janitor and waits for it to exit. The stores themselves
// need no teardown; they are in-memory only.
func (r *Relay) Close() {
	r.cancel()
	<-r.done
	logrus.WithFields(logrus.Fields{
		"function": "Close",
	}).Info("Relay stopped")
}

// Fingerprint derives the caller's bounded-lifetime pseudo-identity.
func (r *Relay) Fingerprint(req *http.Request, endpoint string) string {
	return r.engine.Fingerprint(req, endpoint)
}

// Allow checks the caller's sliding-window budget for an endpoint. Returns
// a *RateLimitedError when the budget is exhausted or a violation cooldown
// is active.
func (r *Relay) Allow(identity, endpoint string) error {
	d := r.limiter.Check(identity, endpoint)
	if !d.Allowed {
		return &RateLimitedError{RetryAfter: d.RetryAfter}
	}
	return nil
}

// CreateNoteParams carries the inputs for CreateNote. ReadLimit must be
// exactly 1; the field exists so API surfaces that accept a read limit
// fail loudly instead of silently pinning it. UnlockSecret, when set,
// makes the note readable only through UnlockNote; DistressSecret
// additionally arms a silent burn.
type CreateNoteParams struct {
	Ciphertext     []byte
	TTL            time.Duration
	Meta           []byte
	ReadLimit      int
	UnlockSecret   []byte
	DistressSecret []byte
}

// CreateNote validates and stores a single-read note.
func (r *Relay) CreateNote(p CreateNoteParams) (vault.Receipt, error) {
	if err := vault.ValidateReadLimit(p.ReadLimit); err != nil {
		return vault.Receipt{}, validationErr(err)
	}
	if len(p.DistressSecret) > 0 && len(p.UnlockSecret) == 0 {
		return vault.Receipt{}, validationErr(errors.New("distress secret requires an unlock secret"))
	}

	req := vault.CreateRequest{
		Ciphertext: p.Ciphertext,
		TTL:        p.TTL,
		Meta:       p.Meta,
	}
	if len(p.UnlockSecret) > 0 {
		req.UnlockHash = security.HashSecret(p.UnlockSecret)
	}
	if len(p.DistressSecret) > 0 {
		req.DistressHash = security.HashSecret(p.DistressSecret)
	}

	receipt, err := r.notes.Create(req)
	if err != nil {
		return vault.Receipt{}, validationErr(err)
	}
	return receipt, nil
}

// ReadNote consumes an unprotected note's single view. Missing, expired,
// consumed, and secret-protected notes are all reported as ErrNotFound so
// the store never leaks which case applied.
func (r *Relay) ReadNote(id string) (vault.View, error) {
	view, err := r.notes.Read(id)
	if err != nil {
		return vault.View{}, ErrNotFound
	}
	return view, nil
}

// wipeToken is the payload stored in the token slot when a distress
// secret fires. Out-of-scope collaborators take it to run their own
// destructive follow-ups.
type wipeToken struct {
	NoteID      string    `json:"note_id"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// UnlockNote verifies a secret against a protected note and, on an unlock
// match, consumes the note. The brute-force guard is consulted before
// verification and recorded after, so a lockout can never be bypassed. A
// distress match burns the note, deposits a wipe token, and returns the
// same ErrNotFound a mismatch produces; the verifier floors latency so the
// outcomes are indistinguishable on the wire.
func (r *Relay) UnlockNote(identity, id string, secret []byte) (vault.View, error) {
	if d := r.guard.Check(identity, id); !d.Allowed {
		return vault.View{}, &LockedError{RetryAfter: d.RetryAfter, Attempts: d.Attempts}
	}

	// Missing or unprotected notes still go through the verifier with an
	// empty reference set so probing for note existence pays full price.
	var refs []security.Reference
	if unlockHash, distressHash, err := r.notes.Refs(id); err == nil {
		refs = append(refs, security.Reference{Tag: tagUnlock, Value: unlockHash})
		if len(distressHash) > 0 {
			refs = append(refs, security.Reference{
				Tag:   tagDistress,
				Value: distressHash,
				OnMatch: func() {
					r.notes.Burn(id)
					payload, _ := json.Marshal(wipeToken{NoteID: id, TriggeredAt: r.clock.Now()})
					r.tokens.Set("wipe:"+id, payload)
				},
			})
		}
	}

	tag, ok := r.verifier.Verify(secret, refs)

	// A distress match counts as a successful verification for the guard:
	// the caller presented a valid secret, and diverging guard state would
	// make distress distinguishable from unlock under probing.
	if d := r.guard.Record(identity, id, ok); !d.Allowed {
		return vault.View{}, &LockedError{RetryAfter: d.RetryAfter, Attempts: d.Attempts}
	}

	if ok && tag == tagUnlock {
		view, err := r.notes.Consume(id)
		if err != nil {
			return vault.View{}, ErrNotFound
		}
		return view, nil
	}
	return vault.View{}, ErrNotFound
}

// SendEnvelope routes one envelope: live fan-out when the recipient has a
// subscriber, otherwise queued with the mailbox TTL.
func (r *Relay) SendEnvelope(to, from string, ciphertext []byte, ts time.Time) (string, error) {
	id, err := r.router.Send(to, from, ciphertext, ts)
	if err != nil {
		return "", validationErr(err)
	}
	return id, nil
}

// PollEnvelopes drains up to max queued envelopes for the recipient,
// delete-on-delivery.
func (r *Relay) PollEnvelopes(to string, max int) ([]mailbox.Envelope, error) {
	envs, err := r.router.Poll(to, max)
	if err != nil {
		return nil, validationErr(err)
	}
	return envs, nil
}

// Subscribe registers a live connection for a recipient and flushes any
// queued mail to it once.
func (r *Relay) Subscribe(to string, p mailbox.Pusher) error {
	if err := r.router.Subscribe(to, p); err != nil {
		return err
	}
	return nil
}

// Unsubscribe removes a live connection. Safe to call on disconnect paths
// more than once.
func (r *Relay) Unsubscribe(to string, p mailbox.Pusher) {
	r.router.Unsubscribe(to, p)
}

// Tokens exposes the one-shot token slot consumed by collaborating
// subsystems.
func (r *Relay) Tokens() *vault.TokenSlot {
	return r.tokens
}
