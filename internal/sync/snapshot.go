package sync

import (
	"time"

	"github.com/gabomarinc/konsul-console/internal/gateway"
)

// chatSummary holds the per-chat fields the engine diffs between cycles.
type chatSummary struct {
	messageCount int
	lastActivity time.Time
	finished     bool
}

func summarize(c gateway.Chat) chatSummary {
	return chatSummary{
		messageCount: c.MessageCount,
		lastActivity: c.LastActivity,
		finished:     c.Finished,
	}
}

// snapshot is the engine's private last-known state: the chat list summaries
// plus, for the focused chat only, the set of message ids seen so far. It is
// replaced wholesale after each successful cycle; a failed cycle leaves it
// untouched.
type snapshot struct {
	chats         map[string]chatSummary
	focusedChat   string
	focusedMsgIDs map[string]struct{}
}

func emptySnapshot() *snapshot {
	return &snapshot{chats: make(map[string]chatSummary)}
}

func (s *snapshot) has(chatID string) bool {
	_, ok := s.chats[chatID]
	return ok
}

// changed reports whether the chat is known and its summary fields differ from
// the last observation. An unknown chat is "new", not "changed".
func (s *snapshot) changed(c gateway.Chat) bool {
	prev, ok := s.chats[c.ID]
	if !ok {
		return false
	}
	return prev != summarize(c)
}

// knowsMessages reports whether the snapshot carries a message-id baseline for
// the given chat. Only the focused chat ever has one.
func (s *snapshot) knowsMessages(chatID string) bool {
	return s.focusedChat == chatID && s.focusedMsgIDs != nil
}

func (s *snapshot) hasMessage(msgID string) bool {
	_, ok := s.focusedMsgIDs[msgID]
	return ok
}
