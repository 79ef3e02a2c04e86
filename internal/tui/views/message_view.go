package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/gabomarinc/konsul-console/internal/gateway"
)

// MessageView displays the loaded messages of a single chat.
type MessageView struct {
	*tview.TextView
	chatName string
}

// NewMessageView creates a new message view.
func NewMessageView() *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	return &MessageView{TextView: tv}
}

// SetChatName updates the title with the chat name.
func (mv *MessageView) SetChatName(name string) {
	mv.chatName = name
	mv.SetTitle(fmt.Sprintf(" %s ", name))
}

// Update renders messages oldest first and scrolls to the newest.
func (mv *MessageView) Update(msgs []gateway.Message) {
	mv.Clear()

	for _, m := range msgs {
		sender := mv.chatName
		if m.Role == gateway.RoleAgent {
			sender = "You"
		}

		body := m.Text
		if m.Media != nil {
			label := m.Media.Kind
			if m.Media.Filename != "" {
				label += ": " + m.Media.Filename
			}
			if body != "" {
				body += "\n"
			}
			body += fmt.Sprintf("[%s]", label)
		}

		ts := formatTime(m.Timestamp)
		line := fmt.Sprintf("[::b]%s[-:-:-] [::d]%s[-:-:-]\n%s\n\n", sender, ts, body)
		_, _ = fmt.Fprint(mv, line)
	}

	mv.ScrollToEnd()
}
