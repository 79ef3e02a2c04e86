package bus

import "time"

// Event is a domain event published on the bus.
type Event struct {
	Kind    string
	At      time.Time
	Payload any
}

// Event kinds published across the daemon. Payload types live with the
// publishing package; subscribers filter by prefix ("sync.", "notify.", ...).
const (
	// Sync engine → dashboard controller.
	KindNewChats      = "sync.new_chats"      // sync.NewChats
	KindNewMessages   = "sync.new_messages"   // sync.NewMessages
	KindChatRefreshed = "sync.chat_refreshed" // sync.ChatRefreshed
	KindCycleDone     = "sync.cycle_done"     // sync.CycleResult
	KindAuthRequired  = "sync.auth_required"  // error string

	// Notification presenter.
	KindToast = "notify.toast" // notify.Entry

	// Console → dashboard controller (reverse direction).
	KindOpenChat = "console.open_chat" // string chat id

	// Daemon status machine.
	KindStatusChanged = "status.changed" // status.Change
)
