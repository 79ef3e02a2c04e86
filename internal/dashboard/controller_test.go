package dashboard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gabomarinc/konsul-console/internal/bus"
	"github.com/gabomarinc/konsul-console/internal/gateway"
	"github.com/gabomarinc/konsul-console/internal/notify"
	"github.com/gabomarinc/konsul-console/internal/readstate"
	chatsync "github.com/gabomarinc/konsul-console/internal/sync"
)

type fakeEngine struct {
	focused string
}

func (f *fakeEngine) Focus(chatID string) { f.focused = chatID }

type fakeGateway struct {
	msgs    map[string][]gateway.Message
	sendErr error
	delErr  error
	deleted []string
}

func (f *fakeGateway) ListAllMessages(_ context.Context, chatID string, _ int) ([]gateway.Message, error) {
	return f.msgs[chatID], nil
}

func (f *fakeGateway) SendMessage(_ context.Context, _, chatID, text string) (*gateway.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &gateway.Message{ID: "sent-1", Role: gateway.RoleAgent, Text: text, Timestamp: time.Unix(9000, 0)}, nil
}

func (f *fakeGateway) DeleteChat(_ context.Context, _, chatID string) error {
	if f.delErr != nil {
		return f.delErr
	}
	f.deleted = append(f.deleted, chatID)
	return nil
}

func chat(id string, at int64) gateway.Chat {
	return gateway.Chat{ID: id, Name: "chat " + id, LastActivity: time.Unix(at, 0)}
}

func msg(id string, at int64) gateway.Message {
	return gateway.Message{ID: id, Role: gateway.RoleUser, Text: id, Timestamp: time.Unix(at, 0)}
}

func newTestController(b *bus.Bus, gw Gateway, eng Focuser) *Controller {
	return New(Params{
		Bus:       b,
		Tracker:   readstate.New(nil, "ws", nil),
		Presenter: notify.New(10, b, nil, nil),
		Engine:    eng,
		Gateway:   gw,
		Workspace: "ws",
	})
}

func TestNewChatsMergeAndNotify(t *testing.T) {
	b := bus.New()
	c := newTestController(b, &fakeGateway{}, nil)

	payload := chatsync.NewChats{
		NewChats: []gateway.Chat{chat("c1", 100)},
		AllChats: []gateway.Chat{chat("c1", 100), chat("c2", 200)},
	}
	c.handleEvent(bus.Event{Kind: bus.KindNewChats, Payload: payload})

	views := c.Chats()
	if len(views) != 2 {
		t.Fatalf("collection size = %d, want 2", len(views))
	}
	// Sorted by last activity, newest first.
	if views[0].ID != "c2" {
		t.Errorf("first chat = %s, want c2", views[0].ID)
	}
	if c.presenter.Len() != 1 {
		t.Errorf("notifications = %d, want 1 (only the new chat)", c.presenter.Len())
	}
	if c.UnreadChats() != 2 {
		t.Errorf("unread chats = %d, want 2", c.UnreadChats())
	}
}

func TestNewMessagesNotifyPerChat(t *testing.T) {
	b := bus.New()
	c := newTestController(b, &fakeGateway{}, nil)

	c.handleEvent(bus.Event{Kind: bus.KindNewChats, Payload: chatsync.NewChats{
		AllChats: []gateway.Chat{chat("c1", 100), chat("c2", 100)},
	}})

	changed := chat("c1", 300)
	changed.MessageCount = 4
	c.handleEvent(bus.Event{Kind: bus.KindNewMessages, Payload: chatsync.NewMessages{
		Chats: []gateway.Chat{changed},
	}})

	if c.presenter.Len() != 1 {
		t.Fatalf("notifications = %d, want 1", c.presenter.Len())
	}
	view, ok := c.Chat("c1")
	if !ok || view.MessageCount != 4 {
		t.Errorf("c1 after merge = %+v", view)
	}
}

// TestMergePreservesLoadedMessages: the chat list carries no messages; a merge
// must not wipe a message sequence loaded earlier.
func TestMergePreservesLoadedMessages(t *testing.T) {
	b := bus.New()
	c := newTestController(b, &fakeGateway{}, nil)

	withMsgs := chat("c1", 100)
	withMsgs.Messages = []gateway.Message{msg("m1", 10), msg("m2", 20)}
	c.mergeChats([]gateway.Chat{withMsgs})

	// Next poll's summary has no messages loaded.
	c.mergeChats([]gateway.Chat{chat("c1", 150)})

	msgs, ok := c.Messages("c1")
	if !ok || len(msgs) != 2 {
		t.Fatalf("messages after summary merge = %d, want 2", len(msgs))
	}
}

// TestMessagesOnlyGrow: a refresh carrying fewer messages than already held
// must not shrink the sequence, and the result stays time-ascending.
func TestMessagesOnlyGrow(t *testing.T) {
	b := bus.New()
	c := newTestController(b, &fakeGateway{}, nil)

	c.mergeChats([]gateway.Chat{chat("c1", 100)})
	c.setMessages("c1", []gateway.Message{msg("m1", 10), msg("m2", 20)})
	c.setMessages("c1", []gateway.Message{msg("m3", 30)})

	msgs, _ := c.Messages("c1")
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp.Before(msgs[i-1].Timestamp) {
			t.Errorf("messages out of order at %d", i)
		}
	}
}

func TestChatRefreshedEvent(t *testing.T) {
	b := bus.New()
	c := newTestController(b, &fakeGateway{}, nil)

	c.mergeChats([]gateway.Chat{chat("c1", 100)})
	c.handleEvent(bus.Event{Kind: bus.KindChatRefreshed, Payload: chatsync.ChatRefreshed{
		ChatID:   "c1",
		Messages: []gateway.Message{msg("m1", 10)},
	}})

	msgs, _ := c.Messages("c1")
	if len(msgs) != 1 {
		t.Errorf("messages = %d, want 1", len(msgs))
	}
}

func TestOpenChat(t *testing.T) {
	b := bus.New()
	eng := &fakeEngine{}
	gw := &fakeGateway{msgs: map[string][]gateway.Message{
		"c1": {msg("m1", 10), msg("m2", 20)},
	}}
	c := newTestController(b, gw, eng)

	c.mergeChats([]gateway.Chat{chat("c1", 100)})
	c.presenter.Push("c1", "chat c1", "hello", notify.KindNewChat)

	c.OpenChat(context.Background(), "c1")

	if c.Focused() != "c1" || eng.focused != "c1" {
		t.Errorf("focus = %q / engine %q, want c1", c.Focused(), eng.focused)
	}
	if !c.tracker.IsOpened("c1") {
		t.Error("chat not marked opened")
	}
	if c.presenter.UnreadCount() != 0 {
		t.Errorf("unread notifications = %d, want 0", c.presenter.UnreadCount())
	}
	if msgs, _ := c.Messages("c1"); len(msgs) != 2 {
		t.Errorf("warmed messages = %d, want 2", len(msgs))
	}
	if c.UnreadChats() != 0 {
		t.Errorf("unread chats = %d, want 0", c.UnreadChats())
	}
}

// TestOpenChatViaBusEvent covers the presenter→controller round trip: the
// inbox publishes console.open_chat, the controller reacts.
func TestOpenChatViaBusEvent(t *testing.T) {
	b := bus.New()
	eng := &fakeEngine{}
	c := newTestController(b, &fakeGateway{}, eng)
	c.mergeChats([]gateway.Chat{chat("c1", 100)})

	c.Start(context.Background())
	defer c.Stop()

	e := c.presenter.Push("c1", "chat c1", "hello", notify.KindNewChat)
	c.presenter.Select(e.ID)

	// Give the subscriber time to process.
	time.Sleep(100 * time.Millisecond)

	if c.Focused() != "c1" {
		t.Errorf("focused = %q, want c1", c.Focused())
	}
	if !c.tracker.IsOpened("c1") {
		t.Error("chat not marked opened via bus round trip")
	}
}

func TestSendMessageMergesEcho(t *testing.T) {
	b := bus.New()
	c := newTestController(b, &fakeGateway{}, nil)
	c.mergeChats([]gateway.Chat{chat("c1", 100)})

	sent, err := c.SendMessage(context.Background(), "c1", "hi there")
	if err != nil {
		t.Fatal(err)
	}
	if sent.Role != gateway.RoleAgent {
		t.Errorf("role = %s, want agent", sent.Role)
	}
	msgs, _ := c.Messages("c1")
	if len(msgs) != 1 || msgs[0].Text != "hi there" {
		t.Errorf("messages after send = %+v", msgs)
	}
}

func TestSendMessageFailure(t *testing.T) {
	b := bus.New()
	gw := &fakeGateway{sendErr: errors.New("gateway down")}
	c := newTestController(b, gw, nil)
	c.mergeChats([]gateway.Chat{chat("c1", 100)})

	if _, err := c.SendMessage(context.Background(), "c1", "hi"); err == nil {
		t.Fatal("expected error")
	}
	if msgs, _ := c.Messages("c1"); len(msgs) != 0 {
		t.Errorf("messages merged despite failure: %+v", msgs)
	}
}

func TestDeleteChat(t *testing.T) {
	b := bus.New()
	eng := &fakeEngine{}
	gw := &fakeGateway{}
	c := newTestController(b, gw, eng)
	c.mergeChats([]gateway.Chat{chat("c1", 100), chat("c2", 200)})
	c.OpenChat(context.Background(), "c1")

	if err := c.DeleteChat(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Chat("c1"); ok {
		t.Error("deleted chat still in collection")
	}
	if c.Focused() != "" {
		t.Errorf("focus = %q after deleting focused chat, want empty", c.Focused())
	}
	if len(gw.deleted) != 1 || gw.deleted[0] != "c1" {
		t.Errorf("gateway deletes = %v, want [c1]", gw.deleted)
	}
}

// TestDeleteChatGatewayFailureKeepsLocal: the gateway delete failing must not
// drop the chat locally.
func TestDeleteChatGatewayFailureKeepsLocal(t *testing.T) {
	b := bus.New()
	gw := &fakeGateway{delErr: errors.New("409")}
	c := newTestController(b, gw, nil)
	c.mergeChats([]gateway.Chat{chat("c1", 100)})

	if err := c.DeleteChat(context.Background(), "c1"); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := c.Chat("c1"); !ok {
		t.Error("chat dropped locally despite gateway failure")
	}
}

// TestChatPreviewTruncatesOnRuneBoundary: a long multi-byte summary must be
// cut between runes, never through one.
func TestChatPreviewTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("ação ", 30) // 150 runes, multi-byte
	c := chat("c1", 100)
	c.Messages = []gateway.Message{{ID: "m1", Role: gateway.RoleUser, Text: long, Timestamp: time.Unix(100, 0)}}

	got := chatPreview(c)
	if !utf8.ValidString(got) {
		t.Fatalf("preview is not valid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 80 {
		t.Errorf("preview length = %d runes, want 80", n)
	}
	if !strings.HasPrefix(long, got) {
		t.Errorf("preview %q is not a prefix of the source text", got)
	}
}
