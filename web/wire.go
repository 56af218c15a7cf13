package web

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/sealbox"
	"github.com/opd-ai/sealbox/mailbox"
)

// Machine-checkable reason codes carried in every error body.
const (
	reasonValidation  = "validation"
	reasonNotFound    = "not_found"
	reasonRateLimited = "rate_limited"
	reasonLocked      = "locked"
	reasonInternal    = "internal"
)

// errorBody is the structured error payload. It never carries internal
// paths, stack traces, or secret material.
type errorBody struct {
	Error      string `json:"error"`
	Reason     string `json:"reason"`
	RetryAfter int64  `json:"retry_after,omitempty"`
}

type createNoteRequest struct {
	Ciphertext     string `json:"ciphertext"`
	TTLSeconds     int64  `json:"ttl_seconds"`
	ReadLimit      *int   `json:"read_limit,omitempty"`
	Meta           string `json:"meta,omitempty"`
	UnlockSecret   string `json:"unlock_secret,omitempty"`
	DistressSecret string `json:"distress_secret,omitempty"`
}

type createNoteResponse struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
	ViewsLeft int       `json:"views_left"`
}

type readNoteResponse struct {
	Ciphertext string `json:"ciphertext"`
	ViewsLeft  int    `json:"views_left"`
}

type unlockNoteRequest struct {
	Secret string `json:"secret"`
}

type sendEnvelopeRequest struct {
	To         string `json:"to"`
	From       string `json:"from"`
	Ciphertext string `json:"ciphertext"`
	TS         int64  `json:"ts,omitempty"`
}

type sendEnvelopeResponse struct {
	ID string `json:"id"`
}

type wireMessage struct {
	ID         string `json:"id"`
	From       string `json:"from"`
	Ciphertext string `json:"ciphertext"`
	TS         int64  `json:"ts"`
}

type messagesPayload struct {
	Messages []wireMessage `json:"messages"`
}

func toWire(envs []mailbox.Envelope) []wireMessage {
	msgs := make([]wireMessage, 0, len(envs))
	for _, env := range envs {
		msgs = append(msgs, wireMessage{
			ID:         env.ID,
			From:       env.Sender,
			Ciphertext: string(env.Ciphertext),
			TS:         env.CreatedAt.Unix(),
		})
	}
	return msgs
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "writeJSON",
			"error":    err.Error(),
		}).Debug("Response encode failed")
	}
}

// writeError maps the relay error taxonomy to wire responses. Unexpected
// errors are logged server-side and surfaced as a generic internal error.
func writeError(w http.ResponseWriter, endpoint string, err error) {
	var rle *sealbox.RateLimitedError
	if errors.As(err, &rle) {
		deniedTotal.WithLabelValues(endpoint, reasonRateLimited).Inc()
		setRetryAfter(w, rle.RetryAfter)
		writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error:      "too many requests",
			Reason:     reasonRateLimited,
			RetryAfter: retrySeconds(rle.RetryAfter),
		})
		return
	}

	var le *sealbox.LockedError
	if errors.As(err, &le) {
		deniedTotal.WithLabelValues(endpoint, reasonLocked).Inc()
		setRetryAfter(w, le.RetryAfter)
		writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error:      "temporarily locked",
			Reason:     reasonLocked,
			RetryAfter: retrySeconds(le.RetryAfter),
		})
		return
	}

	switch {
	case errors.Is(err, sealbox.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request", Reason: reasonValidation})
	case errors.Is(err, sealbox.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found", Reason: reasonNotFound})
	default:
		logrus.WithFields(logrus.Fields{
			"function": "writeError",
			"endpoint": endpoint,
			"error":    err.Error(),
		}).Error("Unexpected error in request handler")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Reason: reasonInternal})
	}
}

func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	w.Header().Set("Retry-After", strconv.FormatInt(retrySeconds(d), 10))
}

// retrySeconds rounds a delay up to whole seconds so Retry-After is never
// zero while a block is active.
func retrySeconds(d time.Duration) int64 {
	if d <= 0 {
		return 1
	}
	return int64(math.Ceil(d.Seconds()))
}
