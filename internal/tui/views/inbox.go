package views

import (
	"github.com/rivo/tview"

	"github.com/gabomarinc/konsul-console/internal/notify"
)

// Inbox is the notification inbox table. Selecting an entry jumps to its chat.
type Inbox struct {
	*tview.Table
	entries    []notify.Entry
	selectedFn func() (int, int)
}

// NewInbox creates a new notification inbox view.
func NewInbox() *Inbox {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Notifications ")

	in := &Inbox{Table: table}
	in.selectedFn = table.GetSelection
	return in
}

// Update refreshes the inbox with new entries, newest first.
func (in *Inbox) Update(entries []notify.Entry) {
	in.entries = entries
	in.Clear()

	in.SetCell(0, 0, tview.NewTableCell(" Time").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	in.SetCell(0, 1, tview.NewTableCell(" Chat").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	in.SetCell(0, 2, tview.NewTableCell(" Summary").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, e := range entries {
		row := i + 1
		name := e.ChatName
		if name == "" {
			name = e.ChatID
		}
		if !e.Read {
			name = "* " + name
		}

		in.SetCell(row, 0, tview.NewTableCell(" "+formatTime(e.CreatedAt)).SetMaxWidth(8))
		in.SetCell(row, 1, tview.NewTableCell(" "+name).SetMaxWidth(24).SetExpansion(1))
		in.SetCell(row, 2, tview.NewTableCell(" "+e.Summary).SetMaxWidth(60).SetExpansion(2))
	}
}

// SelectedChat returns the chat id of the selected entry.
func (in *Inbox) SelectedChat() string {
	row, _ := in.selectedFn()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(in.entries) {
		return in.entries[idx].ChatID
	}
	return ""
}
