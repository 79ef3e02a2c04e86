package dashboard

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/gabomarinc/konsul-console/internal/bus"
	"github.com/gabomarinc/konsul-console/internal/gateway"
	"github.com/gabomarinc/konsul-console/internal/notify"
	"github.com/gabomarinc/konsul-console/internal/readstate"
	chatsync "github.com/gabomarinc/konsul-console/internal/sync"
)

// Focuser is the sync engine's focus control.
type Focuser interface {
	Focus(chatID string)
}

// Gateway is the slice of the gateway client the controller calls directly,
// off the polling hot path.
type Gateway interface {
	ListAllMessages(ctx context.Context, chatID string, pageSize int) ([]gateway.Message, error)
	SendMessage(ctx context.Context, workspaceID, chatID, text string) (*gateway.Message, error)
	DeleteChat(ctx context.Context, workspaceID, chatID string) error
}

// ChatView is a chat plus the console's own read-state flag.
type ChatView struct {
	gateway.Chat
	Opened bool `json:"opened"`
}

// Params wires a controller.
type Params struct {
	Bus       *bus.Bus
	Tracker   *readstate.Tracker
	Presenter *notify.Presenter
	Engine    Focuser
	Gateway   Gateway
	Workspace string
	PageSize  int
	Logger    *zap.Logger
}

// Controller owns the authoritative in-memory chat collection and the focused
// chat id. It subscribes to sync events, merges results in (fields overwritten
// wholesale, message sequences only ever grow), feeds the read-state tracker
// and the notification presenter, and answers the HTTP API's reads.
type Controller struct {
	mu      sync.RWMutex
	chats   map[string]*gateway.Chat
	focused string

	bus       *bus.Bus
	tracker   *readstate.Tracker
	presenter *notify.Presenter
	engine    Focuser
	gw        Gateway
	workspace string
	pageSize  int
	logger    *zap.Logger
	cancel    context.CancelFunc
}

// New creates a controller.
func New(p Params) *Controller {
	if p.PageSize <= 0 {
		p.PageSize = 100
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return &Controller{
		chats:     make(map[string]*gateway.Chat),
		bus:       p.Bus,
		tracker:   p.Tracker,
		presenter: p.Presenter,
		engine:    p.Engine,
		gw:        p.Gateway,
		workspace: p.Workspace,
		pageSize:  p.PageSize,
		logger:    p.Logger,
	}
}

// Start subscribes to sync events and console open requests.
func (c *Controller) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	syncCh, unsubSync := c.bus.Subscribe("sync.", 256)
	consoleCh, unsubConsole := c.bus.Subscribe("console.", 64)

	go func() {
		defer unsubSync()
		defer unsubConsole()
		for {
			select {
			case evt := <-syncCh:
				c.handleEvent(evt)
			case evt := <-consoleCh:
				c.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the controller.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Controller) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindNewChats:
		payload, ok := evt.Payload.(chatsync.NewChats)
		if !ok {
			return
		}
		c.mergeChats(payload.AllChats)
		for _, chat := range payload.NewChats {
			c.presenter.Push(chat.ID, chat.Name, chatPreview(chat), notify.KindNewChat)
		}

	case bus.KindNewMessages:
		payload, ok := evt.Payload.(chatsync.NewMessages)
		if !ok {
			return
		}
		c.mergeChats(payload.Chats)
		for _, chat := range payload.Chats {
			c.presenter.Push(chat.ID, chat.Name, chatPreview(chat), notify.KindNewMessage)
		}

	case bus.KindChatRefreshed:
		payload, ok := evt.Payload.(chatsync.ChatRefreshed)
		if !ok {
			return
		}
		c.setMessages(payload.ChatID, payload.Messages)

	case bus.KindOpenChat:
		chatID, ok := evt.Payload.(string)
		if !ok {
			return
		}
		c.OpenChat(context.Background(), chatID)
	}
}

// mergeChats overwrites each chat's fields wholesale while preserving any
// messages already loaded (the chat list carries counts, not messages).
func (c *Controller) mergeChats(chats []gateway.Chat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, incoming := range chats {
		merged := incoming
		if existing, ok := c.chats[incoming.ID]; ok {
			merged.Messages = mergeMessages(existing.Messages, incoming.Messages)
		}
		chat := merged
		c.chats[incoming.ID] = &chat
	}
}

// setMessages installs a chat's refreshed message sequence. Sequences only
// grow within a session: messages already held are kept even if the incoming
// list is shorter.
func (c *Controller) setMessages(chatID string, msgs []gateway.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	chat, ok := c.chats[chatID]
	if !ok {
		return
	}
	chat.Messages = mergeMessages(chat.Messages, msgs)
	chat.MessageCount = len(chat.Messages)
}

// OpenChat is the operator opening a chat: focus it for per-cycle message
// diffing, mark it read, and warm the message view without waiting for the
// next poll cycle. The warm-up fetch is best-effort.
func (c *Controller) OpenChat(ctx context.Context, chatID string) {
	c.mu.Lock()
	c.focused = chatID
	c.mu.Unlock()

	if c.engine != nil {
		c.engine.Focus(chatID)
	}
	c.tracker.MarkOpened(chatID)
	c.presenter.MarkChatRead(chatID)

	if c.gw == nil {
		return
	}
	msgs, err := c.gw.ListAllMessages(ctx, chatID, c.pageSize)
	if err != nil {
		c.logger.Warn("failed to load messages on open", zap.String("chat_id", chatID), zap.Error(err))
		return
	}
	c.setMessages(chatID, msgs)
}

// SendMessage forwards an agent message through the gateway and merges the
// echo into the collection.
func (c *Controller) SendMessage(ctx context.Context, chatID, text string) (*gateway.Message, error) {
	msg, err := c.gw.SendMessage(ctx, c.workspace, chatID, text)
	if err != nil {
		return nil, err
	}
	if msg != nil {
		c.setMessages(chatID, []gateway.Message{*msg})
	}
	return msg, nil
}

// DeleteChat removes a chat at the gateway, then locally. This is the only
// path by which the collection shrinks.
func (c *Controller) DeleteChat(ctx context.Context, chatID string) error {
	if err := c.gw.DeleteChat(ctx, c.workspace, chatID); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.chats, chatID)
	if c.focused == chatID {
		c.focused = ""
	}
	c.mu.Unlock()
	if c.engine != nil && c.Focused() == "" {
		c.engine.Focus("")
	}
	return nil
}

// Chats returns the collection sorted by last activity, newest first.
func (c *Controller) Chats() []ChatView {
	c.mu.RLock()
	views := make([]ChatView, 0, len(c.chats))
	for _, chat := range c.chats {
		views = append(views, ChatView{Chat: *chat, Opened: c.tracker.IsOpened(chat.ID)})
	}
	c.mu.RUnlock()

	sort.Slice(views, func(i, j int) bool {
		if !views[i].LastActivity.Equal(views[j].LastActivity) {
			return views[i].LastActivity.After(views[j].LastActivity)
		}
		return views[i].ID < views[j].ID
	})
	return views
}

// Chat returns one chat by id.
func (c *Controller) Chat(chatID string) (ChatView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chat, ok := c.chats[chatID]
	if !ok {
		return ChatView{}, false
	}
	return ChatView{Chat: *chat, Opened: c.tracker.IsOpened(chatID)}, true
}

// Messages returns a chat's loaded messages, time-ascending.
func (c *Controller) Messages(chatID string) ([]gateway.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chat, ok := c.chats[chatID]
	if !ok {
		return nil, false
	}
	return append([]gateway.Message(nil), chat.Messages...), true
}

// UnreadChats counts chats the operator has not opened. This drives the badge.
func (c *Controller) UnreadChats() int {
	c.mu.RLock()
	ids := make([]string, 0, len(c.chats))
	for id := range c.chats {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	return c.tracker.CountUnopened(ids)
}

// Focused returns the focused chat id, or "".
func (c *Controller) Focused() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.focused
}

// mergeMessages unions two message sequences by id, sorted ascending by
// timestamp. Messages are immutable once observed, so the first copy wins.
func mergeMessages(existing, incoming []gateway.Message) []gateway.Message {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]struct{}, len(existing))
	merged := make([]gateway.Message, 0, len(existing)+len(incoming))
	for _, m := range existing {
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	for _, m := range incoming {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged
}

// chatPreview builds the one-line notification summary for a chat.
func chatPreview(c gateway.Chat) string {
	if n := len(c.Messages); n > 0 {
		last := c.Messages[n-1]
		if last.Text != "" {
			return truncate(last.Text, 80)
		}
		if last.Media != nil {
			return "[" + last.Media.Kind + "]"
		}
	}
	if c.MessageCount > 0 {
		return fmt.Sprintf("%d messages", c.MessageCount)
	}
	return "started a conversation"
}

// truncate cuts s to at most maxLen runes. Cutting on a byte index could
// split a multi-byte rune and emit invalid UTF-8 into the summary.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
