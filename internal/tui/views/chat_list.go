package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/gabomarinc/konsul-console/internal/dashboard"
)

// ChatList is the main chat table (K9s-inspired).
type ChatList struct {
	*tview.Table
	chats      []dashboard.ChatView
	selectedFn func() (int, int)
}

// NewChatList creates a new chat list table.
func NewChatList() *ChatList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Chats ")

	cl := &ChatList{Table: table}
	cl.selectedFn = table.GetSelection
	return cl
}

// Update refreshes the table. Selection is preserved by row index.
func (cl *ChatList) Update(chats []dashboard.ChatView) {
	cl.chats = chats
	cl.Clear()

	cl.SetCell(0, 0, tview.NewTableCell(" Name").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 1, tview.NewTableCell(" Channel").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 2, tview.NewTableCell(" Msgs").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 3, tview.NewTableCell(" Activity").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, chat := range chats {
		row := i + 1
		name := chat.Name
		if name == "" {
			name = chat.ID
		}
		if !chat.Opened {
			name = fmt.Sprintf("* %s", name)
		}
		if chat.UnreadCount > 0 {
			name = fmt.Sprintf("%s (%d)", name, chat.UnreadCount)
		}
		if chat.Finished {
			name += " [done]"
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+name).SetMaxWidth(30).SetExpansion(2))
		cl.SetCell(row, 1, tview.NewTableCell(" "+string(chat.Channel)).SetMaxWidth(12).SetExpansion(1))
		cl.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf(" %d", chat.MessageCount)).SetMaxWidth(6))
		cl.SetCell(row, 3, tview.NewTableCell(" "+formatTime(chat.LastActivity)).SetMaxWidth(12))
	}
}

// SelectedChat returns the id of the currently selected chat.
func (cl *ChatList) SelectedChat() string {
	row, _ := cl.selectedFn()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(cl.chats) {
		return cl.chats[idx].ID
	}
	return ""
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
