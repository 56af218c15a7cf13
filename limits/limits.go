// Package limits provides centralized payload and TTL limits for the relay.
// This ensures consistent validation across different components of the system.
package limits

import (
	"errors"
	"fmt"
	"time"
)

const (
	// MaxCiphertext is the maximum size for a stored note or envelope
	// payload (64 KiB). The relay never inspects the payload beyond this
	// bound; it only enforces that clients cannot exhaust memory.
	MaxCiphertext = 64 * 1024

	// MaxRequestBody is the maximum allowed HTTP request body size.
	// Set slightly larger than MaxCiphertext to account for JSON overhead.
	MaxRequestBody = MaxCiphertext + 1024

	// MaxMetadata is the maximum size for optional note metadata.
	MaxMetadata = 4 * 1024

	// MaxNoteTTL is the longest a note may live before expiry (7 days).
	MaxNoteTTL = 7 * 24 * time.Hour

	// MailboxTTL is how long an undelivered envelope is retained (48 hours).
	MailboxTTL = 48 * time.Hour

	// MaxRecipientID is the maximum length of an opaque recipient or
	// sender identifier.
	MaxRecipientID = 128
)

var (
	// ErrPayloadEmpty indicates an empty payload was provided.
	ErrPayloadEmpty = errors.New("empty payload")

	// ErrPayloadTooLarge indicates a payload exceeds its maximum size.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrTTLOutOfRange indicates a TTL outside the permitted interval.
	ErrTTLOutOfRange = errors.New("ttl out of range")

	// ErrIdentifierInvalid indicates an empty or oversized opaque identifier.
	ErrIdentifierInvalid = errors.New("invalid identifier")
)

// ValidatePayloadSize validates a payload against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidatePayloadSize(payload []byte, maxSize int) error {
	if len(payload) == 0 {
		return ErrPayloadEmpty
	}
	if len(payload) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrPayloadTooLarge, len(payload), maxSize)
	}
	return nil
}

// ValidateCiphertext validates a note or envelope payload against MaxCiphertext.
func ValidateCiphertext(payload []byte) error {
	return ValidatePayloadSize(payload, MaxCiphertext)
}

// ValidateMetadata validates optional metadata against MaxMetadata.
// Empty metadata is allowed.
func ValidateMetadata(meta []byte) error {
	if len(meta) == 0 {
		return nil
	}
	if len(meta) > MaxMetadata {
		return fmt.Errorf("%w: metadata size %d exceeds limit %d", ErrPayloadTooLarge, len(meta), MaxMetadata)
	}
	return nil
}

// ValidateNoteTTL validates a note TTL against the (0, MaxNoteTTL] interval.
func ValidateNoteTTL(ttl time.Duration) error {
	if ttl <= 0 || ttl > MaxNoteTTL {
		return fmt.Errorf("%w: %s not in (0, %s]", ErrTTLOutOfRange, ttl, MaxNoteTTL)
	}
	return nil
}

// ValidateIdentifier validates an opaque recipient or sender identifier.
// Identifiers are uninterpreted; only emptiness and length are checked.
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrIdentifierInvalid)
	}
	if len(id) > MaxRecipientID {
		return fmt.Errorf("%w: length %d exceeds limit %d", ErrIdentifierInvalid, len(id), MaxRecipientID)
	}
	return nil
}
