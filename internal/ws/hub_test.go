package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gabomarinc/konsul-console/internal/bus"
)

func TestHubAddAndRemove(t *testing.T) {
	hub := NewHub(bus.New(), "main", nil)

	hub.Add(nil)
	if hub.Count() != 1 {
		t.Fatalf("count = %d, want 1", hub.Count())
	}
	hub.Remove(nil)
	if hub.Count() != 0 {
		t.Fatalf("count = %d, want 0", hub.Count())
	}
}

func TestEnvelopeFromEvent(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	env := envelopeFrom(bus.Event{Kind: "sync.cycle_done", At: at, Payload: 42}, "main")

	if env.EventID == "" {
		t.Error("envelope has no event id")
	}
	if env.Profile != "main" || env.Kind != "sync.cycle_done" {
		t.Errorf("envelope = %+v", env)
	}
	if env.At != 1700000000000 {
		t.Errorf("at = %d, want unix-ms timestamp", env.At)
	}
}

// TestBusToWebSocketRoundTrip connects a real websocket client and checks
// that a bus event arrives as a JSON envelope.
func TestBusToWebSocketRoundTrip(t *testing.T) {
	b := bus.New()
	hub := NewHub(b, "main", nil)
	hub.Start(context.Background())
	defer hub.Stop()

	srv := httptest.NewServer(NewHandler(hub, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()

	// The hub registers the connection during the HTTP handler; wait for it.
	deadline := time.Now().Add(time.Second)
	for hub.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	b.Emit("notify.toast", map[string]string{"chat_id": "c1"})

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}

	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatal(err)
	}
	if env.Kind != "notify.toast" || env.Profile != "main" {
		t.Errorf("envelope = %+v", env)
	}
	if env.EventID == "" || env.At == 0 {
		t.Errorf("envelope missing id or timestamp: %+v", env)
	}
}
