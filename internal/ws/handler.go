package ws

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// The daemon listens on loopback; the browser dashboard connects from a file
// or dev origin, so origin checks are disabled.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades GET /v1/events to a websocket and streams event envelopes.
type Handler struct {
	hub    *Hub
	logger *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{hub: hub, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	h.hub.Add(conn)
	h.logger.Info("console connected", zap.String("remote", r.RemoteAddr), zap.Int("consoles", h.hub.Count()))

	// The stream is push-only; the read loop just detects disconnects.
	go func() {
		defer func() {
			h.hub.Remove(conn)
			_ = conn.Close()
			h.logger.Info("console disconnected", zap.String("remote", r.RemoteAddr))
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
