package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/sealbox/mailbox"
)

// wsWriteTimeout bounds every write so a stalled peer cannot pin a push
// while the hub iterates its subscriber set.
const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The relay has no browser origin policy; recipients are opaque OIDs.
	CheckOrigin: func(*http.Request) bool { return true },
}

// pingFrame is the advisory liveness message. No application-level ack is
// expected.
type pingFrame struct {
	Type string `json:"type"`
	T    int64  `json:"t"`
}

// wsConn adapts a gorilla connection to the hub's Pusher interface. The
// mutex serializes delivery pushes with heartbeat writes; gorilla
// connections allow only one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// Push delivers envelopes to the peer as one {"messages": [...]} frame.
func (c *wsConn) Push(envs []mailbox.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(messagesPayload{Messages: toWire(envs)})
}

func (c *wsConn) ping(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(pingFrame{Type: "ping", T: t.Unix()})
}

// handleWS is the live delivery endpoint. It requires an oid, flushes any
// queued mailbox entries exactly once on connect, then holds the
// connection open with advisory pings until the peer drops.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	oid := r.URL.Query().Get("oid")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the request.
		logrus.WithFields(logrus.Fields{
			"function": "handleWS",
			"error":    err.Error(),
		}).Debug("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	if oid == "" {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "oid required")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
		return
	}

	push := &wsConn{conn: conn}
	if err := s.relay.Subscribe(oid, push); err != nil {
		// Validation failure or the initial flush died; either way the
		// subscription was not kept.
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "subscribe failed")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
		return
	}
	defer s.relay.Unsubscribe(oid, push)

	liveSubscribers.Inc()
	defer liveSubscribers.Dec()

	logrus.WithFields(logrus.Fields{
		"function": "handleWS",
		"oid":      oid,
	}).Debug("Subscriber connected")

	// Reader goroutine: the client sends nothing meaningful, but reading
	// is how we learn the connection dropped.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logrus.WithFields(logrus.Fields{
						"function": "handleWS",
						"oid":      oid,
						"error":    err.Error(),
					}).Debug("Subscriber connection dropped")
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case t := <-ticker.C:
			if err := push.ping(t); err != nil {
				return
			}
		}
	}
}
