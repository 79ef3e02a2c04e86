package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gabomarinc/konsul-console/internal/bus"
	"github.com/gabomarinc/konsul-console/internal/store"
)

// Kind classifies a notification entry.
type Kind string

const (
	KindNewChat    Kind = "new-chat"
	KindNewMessage Kind = "new-message"
)

// Entry is one user-facing notification.
type Entry struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	ChatName  string    `json:"chat_name"`
	Summary   string    `json:"summary"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

// History is the optional durable sink behind the capped in-memory log.
type History interface {
	AppendNotification(*store.NotificationRecord) error
}

// Presenter owns the in-memory notification log: newest first, capped at a
// fixed length with FIFO eviction. Pushes fan out as toast events on the bus;
// selecting an entry routes back to chat selection via the bus as well.
type Presenter struct {
	mu      sync.RWMutex
	entries []Entry
	max     int
	unread  int
	bus     *bus.Bus
	history History
	logger  *zap.Logger
}

// New creates a presenter. max bounds the in-memory log; history may be nil.
func New(max int, b *bus.Bus, history History, logger *zap.Logger) *Presenter {
	if max <= 0 {
		max = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Presenter{
		max:     max,
		bus:     b,
		history: history,
		logger:  logger,
	}
}

// Push prepends a new entry, evicting the oldest beyond the cap, and emits a
// toast event. The durable history write is best-effort.
func (p *Presenter) Push(chatID, chatName, summary string, kind Kind) Entry {
	entry := Entry{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		ChatName:  chatName,
		Summary:   summary,
		Kind:      kind,
		CreatedAt: time.Now(),
	}

	p.mu.Lock()
	p.entries = append([]Entry{entry}, p.entries...)
	if len(p.entries) > p.max {
		evicted := p.entries[p.max:]
		p.entries = p.entries[:p.max]
		for _, e := range evicted {
			if !e.Read && p.unread > 0 {
				p.unread--
			}
		}
	}
	p.unread++
	p.mu.Unlock()

	if p.history != nil {
		err := p.history.AppendNotification(&store.NotificationRecord{
			ID:        entry.ID,
			ChatID:    entry.ChatID,
			ChatName:  entry.ChatName,
			Summary:   entry.Summary,
			Kind:      string(entry.Kind),
			CreatedAt: entry.CreatedAt.UnixMilli(),
		})
		if err != nil {
			p.logger.Warn("failed to record notification history", zap.Error(err))
		}
	}

	if p.bus != nil {
		p.bus.Emit(bus.KindToast, entry)
	}
	return entry
}

// MarkRead flips one entry's read flag.
func (p *Presenter) MarkRead(entryID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.entries {
		if p.entries[i].ID == entryID && !p.entries[i].Read {
			p.entries[i].Read = true
			if p.unread > 0 {
				p.unread--
			}
			return
		}
	}
}

// MarkChatRead marks every entry for the given chat as read. Called when the
// operator opens the chat.
func (p *Presenter) MarkChatRead(chatID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.entries {
		if p.entries[i].ChatID == chatID && !p.entries[i].Read {
			p.entries[i].Read = true
			if p.unread > 0 {
				p.unread--
			}
		}
	}
}

// MarkAllRead flips every entry and zeroes the unread count.
func (p *Presenter) MarkAllRead() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.entries {
		p.entries[i].Read = true
	}
	p.unread = 0
}

// UnreadCount returns the number of unread entries.
func (p *Presenter) UnreadCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.unread
}

// Len returns the current log length.
func (p *Presenter) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Visible returns the inbox view: entries whose chat the operator has NOT
// opened yet. Entries for opened chats stay in the log but are filtered out,
// so history is preserved without resurfacing it.
func (p *Presenter) Visible(isOpened func(chatID string) bool) []Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	visible := make([]Entry, 0, len(p.entries))
	for _, e := range p.entries {
		if isOpened != nil && isOpened(e.ChatID) {
			continue
		}
		visible = append(visible, e)
	}
	return visible
}

// Select handles an inbox click: marks the entry read and routes a
// chat-selection request back to the dashboard controller via the bus.
// Returns the chat id, or "" if the entry is gone (evicted).
func (p *Presenter) Select(entryID string) string {
	p.mu.RLock()
	var chatID string
	for _, e := range p.entries {
		if e.ID == entryID {
			chatID = e.ChatID
			break
		}
	}
	p.mu.RUnlock()

	if chatID == "" {
		return ""
	}
	p.MarkRead(entryID)
	if p.bus != nil {
		p.bus.Emit(bus.KindOpenChat, chatID)
	}
	return chatID
}
