package mailbox

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Pusher is a live subscriber connection. Implementations are owned by the
// transport layer; the hub only holds references and never manages
// connection lifecycle. Push must be safe for concurrent use with the
// transport's own writes.
type Pusher interface {
	Push(envs []Envelope) error
}

// Hub is the live-subscriber registry. A recipient may hold any number of
// concurrent subscriber connections; every fan-out goes to all of them.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[Pusher]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[Pusher]struct{})}
}

// Add registers a subscriber connection for a recipient.
func (h *Hub) Add(recipient string, p Pusher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[recipient]
	if !ok {
		set = make(map[Pusher]struct{})
		h.subs[recipient] = set
	}
	set[p] = struct{}{}
}

// Remove unregisters a subscriber connection. Removing a connection that
// was never added (or was already pruned) is a no-op; failures during
// disconnect are the transport's problem, not the hub's.
func (h *Hub) Remove(recipient string, p Pusher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[recipient]
	if !ok {
		return
	}
	delete(set, p)
	if len(set) == 0 {
		delete(h.subs, recipient)
	}
}

// HasSubscribers reports whether the recipient has at least one live
// connection.
func (h *Hub) HasSubscribers(recipient string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[recipient]) > 0
}

// FanOut pushes the envelopes to every live connection for the recipient.
// A connection whose push fails is pruned from the set; the envelopes are
// not retried or re-queued for it. Returns the number of connections that
// accepted the push.
func (h *Hub) FanOut(recipient string, envs []Envelope) int {
	h.mu.RLock()
	conns := make([]Pusher, 0, len(h.subs[recipient]))
	for p := range h.subs[recipient] {
		conns = append(conns, p)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, p := range conns {
		if err := p.Push(envs); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "FanOut",
				"recipient": recipient,
				"error":     err.Error(),
			}).Warn("Push to live subscriber failed, pruning connection")
			h.Remove(recipient, p)
			continue
		}
		delivered++
	}
	return delivered
}
