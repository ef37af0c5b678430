package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/sakif/smart-bookmarks/internal/auth"
	"github.com/sakif/smart-bookmarks/internal/session"
)

const (
	eventWriteTimeout = 10 * time.Second
	eventPingInterval = 30 * time.Second
)

// SessionLookup reports whether a session still exists.
type SessionLookup interface {
	Get(ctx context.Context, id string) (*session.Record, error)
}

// EventsHandler streams session-change events over a WebSocket.
//
// HTTP: GET /auth/v1/events
// Auth: Required (Bearer header; browsers do not use this endpoint)
//
// The stream carries only events for the caller's own session. After a
// SIGNED_OUT or SESSION_EXPIRED event the server closes the socket, because
// the token that opened it is dead.
type EventsHandler struct {
	hub      *session.Hub
	sessions SessionLookup
	logger   *slog.Logger
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(hub *session.Hub, sessions SessionLookup, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{hub: hub, sessions: sessions, logger: logger}
}

// HandleEvents upgrades the connection and pumps events until either side
// goes away.
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// The server's read/write timeouts would otherwise kill a long-lived socket.
	rc := http.NewResponseController(w)
	rc.SetReadDeadline(time.Time{})
	rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket: accept", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	sub := h.hub.Subscribe(p.SessionID)
	defer h.hub.Unsubscribe(sub)

	// CloseRead discards client frames and cancels ctx when the peer leaves.
	ctx := conn.CloseRead(r.Context())

	// The session may have ended between authentication and Subscribe.
	if rec, err := h.sessions.Get(ctx, p.SessionID); err == nil && rec == nil {
		h.send(ctx, conn, session.Event{
			Type:      session.EventSessionExpired,
			SessionID: p.SessionID,
			UserID:    p.UserID,
			At:        time.Now().UTC(),
		})
		conn.Close(websocket.StatusNormalClosure, "session ended")
		return
	}

	ticker := time.NewTicker(eventPingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := h.send(ctx, conn, ev); err != nil {
				return
			}
			if ev.Type == session.EventSignedOut || ev.Type == session.EventSessionExpired {
				conn.Close(websocket.StatusNormalClosure, "session ended")
				return
			}
		case <-ticker.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *EventsHandler) send(ctx context.Context, conn *websocket.Conn, ev session.Event) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, ev); err != nil {
		h.logger.Debug("websocket: write", slog.String("error", err.Error()))
		return err
	}
	return nil
}
