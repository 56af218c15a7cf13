// Package web is the thin transport adapter over the relay core: HTTP
// endpoints for notes and envelopes, the WebSocket delivery endpoint, and
// the mapping from the relay error taxonomy to wire responses. Every
// handler runs fingerprint and rate-limit checks before touching a store.
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opd-ai/sealbox"
	"github.com/opd-ai/sealbox/limits"
)

// Server serves the relay's external interface.
type Server struct {
	relay        *sealbox.Relay
	mux          *http.ServeMux
	pingInterval time.Duration
}

// NewServer creates the transport adapter for a relay.
func NewServer(relay *sealbox.Relay) *Server {
	s := &Server{
		relay:        relay,
		mux:          http.NewServeMux(),
		pingInterval: 5 * time.Second,
	}
	s.mux.HandleFunc("POST /notes", s.handleCreateNote)
	s.mux.HandleFunc("GET /notes/{id}", s.handleReadNote)
	s.mux.HandleFunc("POST /notes/{id}/unlock", s.handleUnlockNote)
	s.mux.HandleFunc("POST /envelopes/send", s.handleSendEnvelope)
	s.mux.HandleFunc("GET /envelopes/poll", s.handlePollEnvelopes)
	s.mux.HandleFunc("GET /ws", s.handleWS)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	return s
}

// Handler returns the root handler for an http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// gate runs the security front of every endpoint: derive the caller's
// identity, then spend rate budget. Returns the identity and whether the
// request may proceed; a denied request has already been answered.
func (s *Server) gate(w http.ResponseWriter, r *http.Request, endpoint string) (string, bool) {
	requestsTotal.WithLabelValues(endpoint).Inc()
	identity := s.relay.Fingerprint(r, endpoint)
	if err := s.relay.Allow(identity, endpoint); err != nil {
		writeError(w, endpoint, err)
		return identity, false
	}
	return identity, true
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	_, ok := s.gate(w, r, sealbox.EndpointNotesCreate)
	if !ok {
		return
	}

	var req createNoteRequest
	if !decodeBody(w, r, sealbox.EndpointNotesCreate, &req) {
		return
	}

	readLimit := 1
	if req.ReadLimit != nil {
		readLimit = *req.ReadLimit
	}

	receipt, err := s.relay.CreateNote(sealbox.CreateNoteParams{
		Ciphertext:     []byte(req.Ciphertext),
		TTL:            time.Duration(req.TTLSeconds) * time.Second,
		Meta:           []byte(req.Meta),
		ReadLimit:      readLimit,
		UnlockSecret:   []byte(req.UnlockSecret),
		DistressSecret: []byte(req.DistressSecret),
	})
	if err != nil {
		writeError(w, sealbox.EndpointNotesCreate, err)
		return
	}

	writeJSON(w, http.StatusCreated, createNoteResponse{
		ID:        receipt.ID,
		ExpiresAt: receipt.ExpiresAt,
		ViewsLeft: receipt.ViewsLeft,
	})
}

func (s *Server) handleReadNote(w http.ResponseWriter, r *http.Request) {
	_, ok := s.gate(w, r, sealbox.EndpointNotesRead)
	if !ok {
		return
	}

	view, err := s.relay.ReadNote(r.PathValue("id"))
	if err != nil {
		writeError(w, sealbox.EndpointNotesRead, err)
		return
	}

	writeJSON(w, http.StatusOK, readNoteResponse{
		Ciphertext: string(view.Ciphertext),
		ViewsLeft:  view.ViewsLeft,
	})
}

func (s *Server) handleUnlockNote(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.gate(w, r, sealbox.EndpointNotesUnlock)
	if !ok {
		return
	}

	var req unlockNoteRequest
	if !decodeBody(w, r, sealbox.EndpointNotesUnlock, &req) {
		return
	}

	view, err := s.relay.UnlockNote(identity, r.PathValue("id"), []byte(req.Secret))
	if err != nil {
		writeError(w, sealbox.EndpointNotesUnlock, err)
		return
	}

	writeJSON(w, http.StatusOK, readNoteResponse{
		Ciphertext: string(view.Ciphertext),
		ViewsLeft:  view.ViewsLeft,
	})
}

func (s *Server) handleSendEnvelope(w http.ResponseWriter, r *http.Request) {
	_, ok := s.gate(w, r, sealbox.EndpointEnvelopesSend)
	if !ok {
		return
	}

	var req sendEnvelopeRequest
	if !decodeBody(w, r, sealbox.EndpointEnvelopesSend, &req) {
		return
	}

	var ts time.Time
	if req.TS > 0 {
		ts = time.Unix(req.TS, 0)
	}

	id, err := s.relay.SendEnvelope(req.To, req.From, []byte(req.Ciphertext), ts)
	if err != nil {
		writeError(w, sealbox.EndpointEnvelopesSend, err)
		return
	}

	writeJSON(w, http.StatusOK, sendEnvelopeResponse{ID: id})
}

func (s *Server) handlePollEnvelopes(w http.ResponseWriter, r *http.Request) {
	_, ok := s.gate(w, r, sealbox.EndpointEnvelopesPoll)
	if !ok {
		return
	}

	q := r.URL.Query()
	max := 0
	if raw := q.Get("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, sealbox.EndpointEnvelopesPoll, errors.Join(sealbox.ErrValidation, err))
			return
		}
		max = n
	}

	envs, err := s.relay.PollEnvelopes(q.Get("oid"), max)
	if err != nil {
		writeError(w, sealbox.EndpointEnvelopesPoll, err)
		return
	}

	writeJSON(w, http.StatusOK, messagesPayload{Messages: toWire(envs)})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeBody parses a bounded JSON request body. Oversized and malformed
// bodies fail validation before any store is touched.
func decodeBody(w http.ResponseWriter, r *http.Request, endpoint string, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limits.MaxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, endpoint, errors.Join(sealbox.ErrValidation, err))
		return false
	}
	return true
}
