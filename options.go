package sealbox

import (
	"time"

	"github.com/opd-ai/sealbox/security"
	"github.com/opd-ai/sealbox/timeutil"
)

// Endpoint labels shared by the rate limiter, the fingerprint engine, and
// the transport adapter.
const (
	EndpointNotesCreate   = "notes_create"
	EndpointNotesRead     = "notes_read"
	EndpointNotesUnlock   = "notes_unlock"
	EndpointEnvelopesSend = "envelopes_send"
	EndpointEnvelopesPoll = "envelopes_poll"
)

// Options contains configuration for creating a Relay instance.
type Options struct {
	// RateRules is the per-endpoint sliding-window budget table.
	// Endpoints without an entry are never limited.
	RateRules map[string]security.Rule

	// Cooldown is the flat penalty after a rate-limit violation,
	// independent of any endpoint's window size.
	Cooldown time.Duration

	// BasePenalty is the first brute-force lockout duration; escalations
	// double it.
	BasePenalty time.Duration

	// MinVerifyDuration floors the latency of secret verification.
	MinVerifyDuration time.Duration

	// MailboxTTL bounds how long an undelivered envelope is retained.
	MailboxTTL time.Duration

	// JanitorInterval is the sweep period for expired state.
	JanitorInterval time.Duration

	// SensitiveEndpoints lists endpoint labels that receive a namespaced
	// fingerprint with extra entropy mixed in.
	SensitiveEndpoints []string

	// Clock overrides the system clock, for tests.
	Clock timeutil.TimeProvider
}

// NewOptions creates an Options with production defaults.
func NewOptions() *Options {
	return &Options{
		RateRules: map[string]security.Rule{
			EndpointNotesCreate:   {Budget: 10, Window: time.Minute},
			EndpointNotesRead:     {Budget: 30, Window: time.Minute},
			EndpointNotesUnlock:   {Budget: 10, Window: time.Minute},
			EndpointEnvelopesSend: {Budget: 50, Window: time.Minute},
			EndpointEnvelopesPoll: {Budget: 100, Window: time.Minute},
		},
		Cooldown:           security.DefaultCooldown,
		BasePenalty:        security.DefaultBasePenalty,
		MinVerifyDuration:  security.DefaultMinVerifyDuration,
		MailboxTTL:         48 * time.Hour,
		JanitorInterval:    30 * time.Second,
		SensitiveEndpoints: []string{EndpointNotesUnlock},
	}
}
