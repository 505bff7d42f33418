package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/donghua/internal/session"
)

const (
	sessionWSReadLimit   = 64 << 10
	sessionWSIdleTimeout = 60 * time.Minute
	sessionWSPingPeriod  = 30 * time.Second
)

var sessionWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// sessionWSInMessage is the JSON shape sent from the client.
type sessionWSInMessage struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// sessionWSOutMessage is the JSON shape sent to the client.
type sessionWSOutMessage struct {
	Type    string            `json:"type"`
	Session *session.Snapshot `json:"session,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// SessionWS handles GET /api/sessions/{id}/ws. The server pushes a snapshot
// after every state change; the client sends submit, generate_image and
// dismiss actions.
func (h *Handler) SessionWS(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	conn, err := sessionWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("session ws upgrade failed")
		return
	}
	defer conn.Close()

	updates, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	// Writes happen only on this goroutine's writer below; the reader sends
	// replies through out.
	out := make(chan sessionWSOutMessage, 4)
	done := make(chan struct{})
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		defer close(done)
		readSessionWS(conn, sess, func(msg sessionWSOutMessage) {
			select {
			case out <- msg:
			case <-quit:
			}
		})
	}()

	snap := sess.Snapshot()
	if err := writeWSJSON(conn, sessionWSOutMessage{Type: "snapshot", Session: &snap}); err != nil {
		return
	}

	ping := time.NewTicker(sessionWSPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := writeWSJSON(conn, sessionWSOutMessage{Type: "snapshot", Session: &snap}); err != nil {
				log.Debug().Err(err).Msg("session ws write")
				return
			}
		case msg := <-out:
			if err := writeWSJSON(conn, msg); err != nil {
				log.Debug().Err(err).Msg("session ws write")
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func readSessionWS(conn *websocket.Conn, sess *session.Session, reply func(sessionWSOutMessage)) {
	conn.SetReadLimit(sessionWSReadLimit)
	conn.SetReadDeadline(time.Now().Add(sessionWSIdleTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(sessionWSIdleTimeout))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("session ws read")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(sessionWSIdleTimeout))

		var in sessionWSInMessage
		if err := json.Unmarshal(raw, &in); err != nil {
			reply(sessionWSOutMessage{Type: "error", Error: "invalid JSON: " + err.Error()})
			continue
		}

		// Accepted actions are reported through the snapshot push; only
		// rejected ones get an explicit reply.
		switch in.Type {
		case "submit":
			if !sess.SubmitDescription(in.Description) {
				reply(sessionWSOutMessage{Type: "error", Error: "description is empty or a prompt is already being generated"})
			}
		case "generate_image":
			if !sess.RequestImage() {
				reply(sessionWSOutMessage{Type: "error", Error: "image preview is not available for the current prompt"})
			}
		case "dismiss":
			sess.DismissImage()
		default:
			reply(sessionWSOutMessage{Type: "error", Error: "expected type: submit, generate_image or dismiss"})
		}
	}
}

func writeWSJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
	return conn.WriteJSON(v)
}
