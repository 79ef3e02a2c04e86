package tui

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/gabomarinc/konsul-console/internal/bus"
	"github.com/gabomarinc/konsul-console/internal/dashboard"
	"github.com/gabomarinc/konsul-console/internal/notify"
	"github.com/gabomarinc/konsul-console/internal/tui/client"
	"github.com/gabomarinc/konsul-console/internal/tui/keys"
	"github.com/gabomarinc/konsul-console/internal/tui/model"
	"github.com/gabomarinc/konsul-console/internal/tui/views"
	"github.com/gabomarinc/konsul-console/internal/ws"
)

// App is the console TUI shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	client    *client.Client
	registry  *keys.Registry
	flash     *model.Flash
	statusBar *views.StatusBar
	chatList  *views.ChatList
	inbox     *views.Inbox
	msgView   *views.MessageView
	composer  *views.Composer
	ctx       context.Context
	cancel    context.CancelFunc

	mu         sync.Mutex
	chats      []dashboard.ChatView
	activeChat string
}

// NewApp creates the TUI application.
func NewApp(c *client.Client, profileName string) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		client:    c,
		registry:  keys.NewRegistry(),
		flash:     &model.Flash{},
		statusBar: views.NewStatusBar(),
		chatList:  views.NewChatList(),
		inbox:     views.NewInbox(),
		msgView:   views.NewMessageView(),
		composer:  views.NewComposer(),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetProfile(profileName)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: func() { a.app.Stop() },
	})
	a.registry.AddGlobal(&keys.Action{
		Rune: 'n', Key: tcell.KeyRune,
		Description: "n:inbox", Visible: true,
		Handler: func() { a.showInbox() },
	})
	a.registry.AddGlobal(&keys.Action{
		Rune: 'r', Key: tcell.KeyRune,
		Description: "r:refresh", Visible: true,
		Handler: func() { go a.refresh() },
	})
	a.registry.AddView("inbox", &keys.Action{
		Rune: 'a', Key: tcell.KeyRune,
		Description: "a:read-all", Visible: true,
		Handler: func() { a.markAllRead() },
	})
}

func (a *App) setupCallbacks() {
	a.chatList.SetSelectedFunc(func(row, col int) {
		if id := a.chatList.SelectedChat(); id != "" {
			a.openChat(id)
		}
	})

	a.inbox.SetSelectedFunc(func(row, col int) {
		if id := a.inbox.SelectedChat(); id != "" {
			a.openChat(id)
		}
	})

	a.composer.SetOnSend(func(text string) {
		a.mu.Lock()
		chatID := a.activeChat
		a.mu.Unlock()
		if chatID == "" {
			return
		}
		go func() {
			if _, err := a.client.SendMessage(a.ctx, chatID, text); err != nil {
				a.flash.Set("Send failed: "+err.Error(), 5*time.Second)
			}
			msgs, err := a.client.Messages(a.ctx, chatID)
			a.app.QueueUpdateDraw(func() {
				if err == nil {
					a.msgView.Update(msgs)
				}
				a.statusBar.SetFlash(a.flash.Get())
			})
		}()
	})
}

func (a *App) setupLayout() {
	chatFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage("chats", a.chatList, true, true)
	a.pages.AddPage("chat", chatFlex, true, false)
	a.pages.AddPage("inbox", a.inbox, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape {
			switch currentPage {
			case "chat", "inbox":
				a.pages.SwitchToPage("chats")
				a.app.SetFocus(a.chatList)
				return nil
			}
		}

		// Let text input widgets handle all keys normally.
		focused := a.app.GetFocus()
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}

		// 'i' focuses the composer (only when not already in an input field).
		if currentPage == "chat" && event.Key() == tcell.KeyRune && event.Rune() == 'i' {
			a.app.SetFocus(a.composer.InputField)
			return nil
		}

		if a.registry.HandleEvent(currentPage, event) {
			return nil
		}

		return event
	})
}

func (a *App) openChat(chatID string) {
	go func() {
		if err := a.client.OpenChat(a.ctx, chatID); err != nil {
			a.flash.Set("Open failed: "+err.Error(), 5*time.Second)
			return
		}
		msgs, err := a.client.Messages(a.ctx, chatID)
		if err != nil {
			a.flash.Set("Load failed: "+err.Error(), 5*time.Second)
			return
		}

		chatName := chatID
		a.mu.Lock()
		a.activeChat = chatID
		for _, c := range a.chats {
			if c.ID == chatID && c.Name != "" {
				chatName = c.Name
				break
			}
		}
		a.mu.Unlock()

		a.app.QueueUpdateDraw(func() {
			a.msgView.SetChatName(chatName)
			a.msgView.Update(msgs)
			a.pages.SwitchToPage("chat")
			a.app.SetFocus(a.msgView)
		})
	}()
}

func (a *App) showInbox() {
	go func() {
		entries, _, err := a.client.Notifications(a.ctx)
		if err != nil {
			a.flash.Set("Inbox failed: "+err.Error(), 5*time.Second)
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.inbox.Update(entries)
			a.pages.SwitchToPage("inbox")
			a.app.SetFocus(a.inbox)
		})
	}()
}

func (a *App) markAllRead() {
	go func() {
		if err := a.client.MarkAllRead(a.ctx); err != nil {
			a.flash.Set("Read-all failed: "+err.Error(), 5*time.Second)
		}
		a.refresh()
	}()
}

// Run starts the TUI application.
func (a *App) Run() error {
	go func() {
		a.refresh()
		go a.runEventLoop()
		a.startRefreshLoop()
	}()

	return a.app.Run()
}

// refresh reloads status, chats, and whatever the front page shows, then
// repaints. Safe to call from any goroutine.
func (a *App) refresh() {
	info, err := a.client.Status(a.ctx)
	if err != nil {
		a.flash.Set("Daemon unreachable: "+err.Error(), 5*time.Second)
		a.app.QueueUpdateDraw(func() {
			a.statusBar.SetFlash(a.flash.Get())
		})
		return
	}
	chats, err := a.client.Chats(a.ctx)
	if err != nil {
		return
	}

	a.mu.Lock()
	a.chats = chats
	activeChat := a.activeChat
	a.mu.Unlock()

	currentPage, _ := a.pages.GetFrontPage()

	var entries []notify.Entry
	if currentPage == "inbox" {
		entries, _, _ = a.client.Notifications(a.ctx)
	}

	a.app.QueueUpdateDraw(func() {
		a.statusBar.SetState(info.State)
		a.statusBar.SetCounts(info.UnreadChats, info.UnreadNotifications)
		a.statusBar.SetFlash(a.flash.Get())

		switch currentPage {
		case "chats":
			a.chatList.Update(chats)
		case "inbox":
			a.inbox.Update(entries)
		}
	})

	if currentPage == "chat" && activeChat != "" {
		if msgs, err := a.client.Messages(a.ctx, activeChat); err == nil {
			a.app.QueueUpdateDraw(func() {
				a.msgView.Update(msgs)
			})
		}
	}
}

func (a *App) startRefreshLoop() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for {
			select {
			case <-ticker.C:
				a.refresh()
			case <-a.ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()
}

// runEventLoop consumes the daemon's push stream so changes repaint without
// waiting for the next poll. Reconnects while the daemon restarts.
func (a *App) runEventLoop() {
	for {
		events, err := a.client.Events(a.ctx)
		if err != nil {
			select {
			case <-time.After(2 * time.Second):
				continue
			case <-a.ctx.Done():
				return
			}
		}
		for env := range events {
			a.handleEnvelope(env)
		}
		if a.ctx.Err() != nil {
			return
		}
	}
}

func (a *App) handleEnvelope(env ws.Envelope) {
	switch env.Kind {
	case bus.KindToast:
		var entry notify.Entry
		if err := decodePayload(env.Payload, &entry); err == nil {
			name := entry.ChatName
			if name == "" {
				name = entry.ChatID
			}
			a.flash.Set(name+": "+entry.Summary, 5*time.Second)
		}
		a.refresh()
	case bus.KindNewChats, bus.KindNewMessages, bus.KindChatRefreshed, bus.KindStatusChanged:
		a.refresh()
	case bus.KindAuthRequired:
		a.flash.Set("Gateway auth required: run konsulctl token <token>", 10*time.Second)
		a.refresh()
	}
}

func decodePayload(payload, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
