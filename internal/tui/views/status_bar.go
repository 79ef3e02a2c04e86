package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// StatusBar displays persistent daemon state for the active profile.
type StatusBar struct {
	*tview.TextView
	profile string
	state   string
	unread  int
	inbox   int
	flash   string
}

// NewStatusBar creates a new status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv}
}

// SetProfile updates the profile name display.
func (sb *StatusBar) SetProfile(name string) {
	sb.profile = name
	sb.render()
}

// SetState updates the daemon state display (POLLING, FETCHING, ...).
func (sb *StatusBar) SetState(state string) {
	sb.state = state
	sb.render()
}

// SetCounts updates the unread chat and notification counters.
func (sb *StatusBar) SetCounts(unreadChats, unreadNotifications int) {
	sb.unread = unreadChats
	sb.inbox = unreadNotifications
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	stateTag := sb.state
	switch sb.state {
	case "POLLING":
		stateTag = "[green]POLLING[-]"
	case "FETCHING":
		stateTag = "[green]FETCHING[-]"
	case "AUTH_REQUIRED":
		stateTag = "[red]AUTH_REQUIRED[-]"
	}

	clock := time.Now().Format("15:04")

	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s | %d unread, %d inbox | %s",
		sb.profile, stateTag, sb.unread, sb.inbox, clock)
	if sb.flash != "" {
		line += fmt.Sprintf(" | [yellow]%s[-]", sb.flash)
	}

	_, _ = fmt.Fprint(sb, line)
}
