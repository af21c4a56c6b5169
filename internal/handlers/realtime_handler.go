package handlers

import (
	"log/slog"
	"time"

	"github.com/8by8-org/challenge-api/internal/middleware"
	"github.com/8by8-org/challenge-api/internal/realtime"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const (
	defaultPingInterval = 30 * time.Second
	writeWait           = 10 * time.Second
)

type RealtimeHandler struct {
	hub          *realtime.Hub
	pingInterval time.Duration
}

func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, pingInterval: defaultPingInterval}
}

// Upgrade admits websocket handshakes for the signed-in user's own badge
// stream. It must run after SessionProtected.
func (h *RealtimeHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return errorJSON(c, fiber.StatusUpgradeRequired, "Websocket upgrade required.")
	}
	if middleware.UserID(c) != c.Params("userId") {
		return errorJSON(c, fiber.StatusForbidden, "Forbidden.")
	}
	return c.Next()
}

func (h *RealtimeHandler) Stream() fiber.Handler {
	return websocket.New(h.serve)
}

// serve relays hub events for the user until the peer goes away. Pings
// keep intermediaries from idling the connection out.
func (h *RealtimeHandler) serve(conn *websocket.Conn) {
	userID := conn.Params("userId")
	sub := h.hub.Subscribe(userID)
	defer sub.Close()

	readWait := 2 * h.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	defer func() {
		_ = conn.Close()
		<-gone
	}()

	slog.Debug("badge stream opened", "component", "realtime", "user_id", userID)
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				slog.Debug("badge stream write failed", "component", "realtime", "user_id", userID, "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
