package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/sealbox"
	"github.com/opd-ai/sealbox/security"
)

func newTestServer(t *testing.T, opts *sealbox.Options) (*sealbox.Relay, *httptest.Server) {
	t.Helper()
	if opts == nil {
		opts = sealbox.NewOptions()
	}
	opts.MinVerifyDuration = time.Millisecond

	relay, err := sealbox.New(opts)
	require.NoError(t, err)
	t.Cleanup(relay.Close)

	s := NewServer(relay)
	// Keep heartbeats out of the way of frame-order assertions.
	s.pingInterval = time.Minute

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return relay, srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestNoteCreateReadOnce(t *testing.T) {
	_, srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/notes", map[string]any{
		"ciphertext":  "abc",
		"ttl_seconds": 60,
		"read_limit":  1,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[createNoteResponse](t, resp)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 1, created.ViewsLeft)

	resp, err := http.Get(srv.URL + "/notes/" + created.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[readNoteResponse](t, resp)
	assert.Equal(t, "abc", view.Ciphertext)
	assert.Equal(t, 0, view.ViewsLeft)

	resp, err = http.Get(srv.URL + "/notes/" + created.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Equal(t, reasonNotFound, body.Reason)
}

func TestNoteCreateRejectsReadLimit(t *testing.T) {
	_, srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/notes", map[string]any{
		"ciphertext":  "abc",
		"ttl_seconds": 60,
		"read_limit":  2,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Equal(t, reasonValidation, body.Reason)
}

func TestNoteCreateRejectsTTLOutOfRange(t *testing.T) {
	_, srv := newTestServer(t, nil)

	for _, ttl := range []int64{0, -5, 604801} {
		resp := postJSON(t, srv.URL+"/notes", map[string]any{
			"ciphertext":  "abc",
			"ttl_seconds": ttl,
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "ttl %d", ttl)
		resp.Body.Close()
	}
}

func TestRateLimitReturns429WithRetryAfter(t *testing.T) {
	opts := sealbox.NewOptions()
	opts.RateRules = map[string]security.Rule{
		sealbox.EndpointNotesCreate: {Budget: 2, Window: time.Minute},
	}
	_, srv := newTestServer(t, opts)

	payload := map[string]any{"ciphertext": "abc", "ttl_seconds": 60}
	for i := 0; i < 2; i++ {
		resp := postJSON(t, srv.URL+"/notes", payload)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp := postJSON(t, srv.URL+"/notes", payload)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	body := decode[errorBody](t, resp)
	assert.Equal(t, reasonRateLimited, body.Reason)
	assert.Greater(t, body.RetryAfter, int64(0))
}

func TestUnlockProtectedNote(t *testing.T) {
	_, srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/notes", map[string]any{
		"ciphertext":    "sealed",
		"ttl_seconds":   60,
		"unlock_secret": "open sesame",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[createNoteResponse](t, resp)

	// Plain read must not reveal the note exists behind a secret.
	getResp, err := http.Get(srv.URL + "/notes/" + created.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
	getResp.Body.Close()

	resp = postJSON(t, srv.URL+"/notes/"+created.ID+"/unlock", map[string]any{"secret": "wrong"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/notes/"+created.ID+"/unlock", map[string]any{"secret": "open sesame"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[readNoteResponse](t, resp)
	assert.Equal(t, "sealed", view.Ciphertext)
}

func TestEnvelopeSendPollRoundtrip(t *testing.T) {
	_, srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/envelopes/send", map[string]any{
		"to":         "alice",
		"from":       "bob",
		"ciphertext": "hi",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sent := decode[sendEnvelopeResponse](t, resp)
	assert.NotEmpty(t, sent.ID)

	resp, err := http.Get(srv.URL + "/envelopes/poll?oid=alice&max=10")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[messagesPayload](t, resp)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "bob", got.Messages[0].From)
	assert.Equal(t, "hi", got.Messages[0].Ciphertext)

	resp, err = http.Get(srv.URL + "/envelopes/poll?oid=alice&max=10")
	require.NoError(t, err)
	got = decode[messagesPayload](t, resp)
	assert.Empty(t, got.Messages, "second poll returns empty")
}

func TestPollRequiresOID(t *testing.T) {
	_, srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/envelopes/poll?max=10")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestPollRejectsBadMax(t *testing.T) {
	_, srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/envelopes/poll?oid=alice&max=banana")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthz(t *testing.T) {
	_, srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestErrorBodiesCarryNoInternals(t *testing.T) {
	_, srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/notes", map[string]any{
		"ciphertext":  "",
		"ttl_seconds": 60,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Equal(t, reasonValidation, body.Reason)
	assert.NotContains(t, body.Error, "/")
	assert.NotContains(t, fmt.Sprintf("%v", body), "goroutine")
}
