package notify

import (
	"fmt"
	"testing"
	"time"

	"github.com/gabomarinc/konsul-console/internal/bus"
)

func TestPushAndUnread(t *testing.T) {
	p := New(10, nil, nil, nil)

	e := p.Push("c1", "Ana", "hello", KindNewChat)
	if e.ID == "" {
		t.Error("entry has no id")
	}
	if p.UnreadCount() != 1 {
		t.Errorf("unread = %d, want 1", p.UnreadCount())
	}

	p.MarkRead(e.ID)
	if p.UnreadCount() != 0 {
		t.Errorf("unread after MarkRead = %d, want 0", p.UnreadCount())
	}
	// Marking again must not go negative.
	p.MarkRead(e.ID)
	if p.UnreadCount() != 0 {
		t.Errorf("unread floored = %d, want 0", p.UnreadCount())
	}
}

// TestFIFOCap: pushing N+1 entries into a log capped at N leaves exactly N,
// with the oldest evicted.
func TestFIFOCap(t *testing.T) {
	const limit = 5
	p := New(limit, nil, nil, nil)

	var first string
	for i := 0; i <= limit; i++ {
		e := p.Push("c1", "Ana", fmt.Sprintf("msg-%d", i), KindNewMessage)
		if i == 0 {
			first = e.ID
		}
	}

	if p.Len() != limit {
		t.Fatalf("log length = %d, want %d", p.Len(), limit)
	}
	for _, e := range p.Visible(nil) {
		if e.ID == first {
			t.Error("oldest entry survived the cap")
		}
	}
	if got := p.Visible(nil)[0].Summary; got != fmt.Sprintf("msg-%d", limit) {
		t.Errorf("newest entry = %q, want msg-%d", got, limit)
	}
}

func TestVisibleFiltersOpenedChats(t *testing.T) {
	p := New(10, nil, nil, nil)
	p.Push("c1", "Ana", "hello", KindNewChat)
	p.Push("c2", "Bob", "hey", KindNewChat)

	opened := map[string]bool{"c1": true}
	visible := p.Visible(func(id string) bool { return opened[id] })

	if len(visible) != 1 || visible[0].ChatID != "c2" {
		t.Errorf("visible = %+v, want only c2", visible)
	}
	// The filtered entry is preserved, not deleted.
	if p.Len() != 2 {
		t.Errorf("log length = %d, want 2", p.Len())
	}
}

func TestMarkAllRead(t *testing.T) {
	p := New(10, nil, nil, nil)
	p.Push("c1", "Ana", "one", KindNewMessage)
	p.Push("c1", "Ana", "two", KindNewMessage)

	p.MarkAllRead()
	if p.UnreadCount() != 0 {
		t.Errorf("unread = %d, want 0", p.UnreadCount())
	}
}

func TestMarkChatRead(t *testing.T) {
	p := New(10, nil, nil, nil)
	p.Push("c1", "Ana", "one", KindNewMessage)
	p.Push("c2", "Bob", "two", KindNewMessage)

	p.MarkChatRead("c1")
	if p.UnreadCount() != 1 {
		t.Errorf("unread = %d, want 1", p.UnreadCount())
	}
}

func TestPushEmitsToast(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("notify.", 10)
	defer unsub()

	p := New(10, b, nil, nil)
	p.Push("c1", "Ana", "hello", KindNewChat)

	select {
	case evt := <-ch:
		entry, ok := evt.Payload.(Entry)
		if !ok {
			t.Fatalf("payload type = %T, want Entry", evt.Payload)
		}
		if entry.ChatID != "c1" || entry.Kind != KindNewChat {
			t.Errorf("entry = %+v", entry)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for toast event")
	}
}

func TestSelectRoutesOpenChat(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("console.", 10)
	defer unsub()

	p := New(10, b, nil, nil)
	e := p.Push("c7", "Ana", "hello", KindNewChat)

	chatID := p.Select(e.ID)
	if chatID != "c7" {
		t.Errorf("Select = %q, want c7", chatID)
	}
	if p.UnreadCount() != 0 {
		t.Errorf("unread after select = %d, want 0", p.UnreadCount())
	}

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindOpenChat || evt.Payload.(string) != "c7" {
			t.Errorf("event = %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for open_chat event")
	}
}

func TestSelectEvictedEntry(t *testing.T) {
	p := New(1, nil, nil, nil)
	e := p.Push("c1", "Ana", "one", KindNewMessage)
	p.Push("c2", "Bob", "two", KindNewMessage) // evicts e

	if got := p.Select(e.ID); got != "" {
		t.Errorf("Select(evicted) = %q, want empty", got)
	}
}
