package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gabomarinc/konsul-console/internal/bus"
)

// Envelope is one frame pushed to connected consoles.
type Envelope struct {
	EventID string `json:"event_id"`
	Profile string `json:"profile"`
	At      int64  `json:"at"` // unix milliseconds
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

// Hub maintains the set of connected consoles and fans bus events out to them
// as JSON envelopes. There is a single room: every consumer sees every event.
type Hub struct {
	mu      sync.RWMutex
	conns   map[*websocket.Conn]bool
	bus     *bus.Bus
	profile string
	logger  *zap.Logger
	cancel  context.CancelFunc
}

// NewHub creates an empty hub.
func NewHub(b *bus.Bus, profile string, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		conns:   make(map[*websocket.Conn]bool),
		bus:     b,
		profile: profile,
		logger:  logger,
	}
}

// Start subscribes to every bus event and broadcasts until the context ends.
func (h *Hub) Start(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	ch, unsub := h.bus.Subscribe("", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				h.Broadcast(envelopeFrom(evt, h.profile))
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the hub's bus fan-out. Connections are closed by their readers.
func (h *Hub) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
}

// Add registers a console connection.
func (h *Hub) Add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = true
}

// Remove removes a console connection.
func (h *Hub) Remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
}

// Count returns the number of connected consoles.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast sends an envelope to every connected console. A failed write
// drops that connection.
func (h *Hub) Broadcast(env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		h.logger.Warn("failed to encode event envelope", zap.String("kind", env.Kind), zap.Error(err))
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Debug("websocket write failed, dropping client", zap.Error(err))
			_ = conn.Close()
			h.Remove(conn)
		}
	}
}

func envelopeFrom(evt bus.Event, profile string) Envelope {
	at := evt.At
	if at.IsZero() {
		at = time.Now()
	}
	return Envelope{
		EventID: uuid.New().String(),
		Profile: profile,
		At:      at.UnixMilli(),
		Kind:    evt.Kind,
		Payload: evt.Payload,
	}
}
