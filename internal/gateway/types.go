package gateway

import "time"

// ChannelType identifies the vendor channel a chat arrived through.
type ChannelType string

const (
	ChannelWhatsApp  ChannelType = "whatsapp"
	ChannelInstagram ChannelType = "instagram"
	ChannelTelegram  ChannelType = "telegram"
	ChannelWebWidget ChannelType = "web-widget"
	ChannelCloudAPI  ChannelType = "cloud-api"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "assistant"
)

// Media describes a non-text message payload.
type Media struct {
	URL      string `json:"url"`
	Kind     string `json:"kind"` // image, audio, document
	MimeType string `json:"mime_type,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Message is a single message within a chat. Immutable once observed.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text,omitempty"`
	Media     *Media    `json:"media,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Chat is a vendor chat summary. The id is stable across polls; every other
// field is overwritten wholesale on each successful fetch. Messages may be
// partially loaded: the chat list carries only counts, the per-chat endpoint
// carries the full sequence.
type Chat struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Phone        string      `json:"phone,omitempty"`
	AgentID      string      `json:"agent_id,omitempty"`
	AgentName    string      `json:"agent_name,omitempty"`
	Channel      ChannelType `json:"channel"`
	LastActivity time.Time   `json:"last_activity"`
	Finished     bool        `json:"finished"`
	// UnreadCount is the vendor's own counter. Advisory only: the console's
	// unread badge comes from the read-state tracker, not from here.
	UnreadCount  int       `json:"unread_count"`
	MessageCount int       `json:"message_count"`
	Messages     []Message `json:"messages,omitempty"`
}
