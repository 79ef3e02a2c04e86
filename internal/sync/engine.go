package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gabomarinc/konsul-console/internal/bus"
	"github.com/gabomarinc/konsul-console/internal/gateway"
	"github.com/gabomarinc/konsul-console/internal/status"
)

// Gateway is the slice of the gateway client the engine polls through. The
// fresh variants bypass the client's response cache: a poller served its own
// cached answer would never observe a change.
type Gateway interface {
	ListAllChatsFresh(ctx context.Context, workspaceID string, pageSize int) ([]gateway.Chat, error)
	ListAllMessagesFresh(ctx context.Context, chatID string, pageSize int) ([]gateway.Message, error)
}

// NewChats is the payload for bus.KindNewChats: the chats that appeared this
// cycle plus the full refreshed list.
type NewChats struct {
	NewChats []gateway.Chat `json:"new_chats"`
	AllChats []gateway.Chat `json:"all_chats"`
}

// NewMessages is the payload for bus.KindNewMessages: known chats whose
// summary changed this cycle. The focused chat is excluded — it is reported
// via ChatRefreshed with full messages instead.
type NewMessages struct {
	Chats []gateway.Chat `json:"chats"`
}

// ChatRefreshed is the payload for bus.KindChatRefreshed: the focused chat's
// merged, time-ascending message sequence after new messages were detected.
type ChatRefreshed struct {
	ChatID   string            `json:"chat_id"`
	Messages []gateway.Message `json:"messages"`
}

// CycleResult is the payload for bus.KindCycleDone, and the engine's
// last-cycle telemetry.
type CycleResult struct {
	Chats    int           `json:"chats"`
	NewChats int           `json:"new_chats"`
	Changed  int           `json:"changed"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
	Err      string        `json:"error,omitempty"`
}

// Options configures the engine.
type Options struct {
	Workspace string
	Interval  time.Duration
	PageSize  int
}

// Engine polls the gateway on a timer, diffs each observation against its
// private snapshot, and emits change events on the bus. The status machine
// serializes cycles: a tick that fires while one is still in flight is
// skipped, so at most one chat-list request is outstanding at any instant.
type Engine struct {
	gw      Gateway
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
	opts    Options

	mu           sync.Mutex
	snap         *snapshot
	focused      string
	gen          int
	last         CycleResult
	haveLast     bool
	authNotified bool
	cancel       context.CancelFunc
}

// NewEngine creates an engine. It starts in the Stopped state; Start begins
// polling.
func NewEngine(gw Gateway, b *bus.Bus, m *status.Machine, opts Options, logger *zap.Logger) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		gw:      gw,
		bus:     b,
		machine: m,
		logger:  logger,
		opts:    opts,
		snap:    emptySnapshot(),
	}
}

// Start moves Stopped→Polling, resets the snapshot, and runs the first cycle
// immediately with subsequent cycles on the interval.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.machine.Transition(status.Polling); err != nil {
		return err
	}

	e.mu.Lock()
	e.gen++
	gen := e.gen
	e.snap = emptySnapshot()
	ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	e.logger.Info("sync engine started",
		zap.String("workspace", e.opts.Workspace),
		zap.Duration("interval", e.opts.Interval))
	go e.loop(ctx, gen)
	return nil
}

// Stop cancels the timer and invalidates the current generation: a cycle
// already awaiting network I/O completes its round trip but its results are
// discarded on return.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.gen++
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if e.machine.Current() != status.Stopped {
		if err := e.machine.Transition(status.Stopped); err != nil {
			e.logger.Warn("stop transition failed", zap.Error(err))
		}
	}
	e.logger.Info("sync engine stopped")
}

// Resume re-enables polling after the operator re-authenticates.
func (e *Engine) Resume() error {
	if err := e.machine.Transition(status.Polling); err != nil {
		return err
	}
	e.mu.Lock()
	e.authNotified = false
	e.mu.Unlock()
	return nil
}

// Focus sets the chat whose messages are diffed each cycle. Empty clears it.
func (e *Engine) Focus(chatID string) {
	e.mu.Lock()
	e.focused = chatID
	e.mu.Unlock()
}

// Focused returns the currently focused chat id.
func (e *Engine) Focused() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.focused
}

// LastCycle returns the most recent cycle's telemetry.
func (e *Engine) LastCycle() (CycleResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.haveLast
}

func (e *Engine) loop(ctx context.Context, gen int) {
	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()

	e.runCycle(ctx, gen)
	for {
		select {
		case <-ticker.C:
			e.runCycle(ctx, gen)
		case <-ctx.Done():
			return
		}
	}
}

// runCycle executes one poll cycle. Emission is decided against the previous
// snapshot; only after that is the snapshot replaced, so diffing never sees a
// partially updated baseline.
func (e *Engine) runCycle(ctx context.Context, gen int) {
	if err := e.machine.Transition(status.Fetching); err != nil {
		// Still AuthRequired, or a cycle is in flight. Skip this tick.
		e.logger.Debug("cycle skipped", zap.String("state", string(e.machine.Current())))
		return
	}

	e.mu.Lock()
	prev := e.snap
	focused := e.focused
	e.mu.Unlock()

	started := time.Now()
	out, err := e.observe(ctx, prev, focused)
	elapsed := time.Since(started)

	e.mu.Lock()
	stale := gen != e.gen
	e.mu.Unlock()
	if stale {
		// Stopped while in flight. Late results are discarded.
		e.logger.Debug("discarding stale cycle results")
		return
	}

	if err != nil {
		e.record(CycleResult{Duration: elapsed, At: time.Now(), Err: err.Error()})
		if errors.Is(err, gateway.ErrAuthExpired) || errors.Is(err, gateway.ErrUnauthenticated) {
			e.pauseForAuth(err)
			return
		}
		// Transient. The next tick retries on the regular interval.
		e.logger.Warn("poll cycle failed", zap.Error(err))
		_ = e.machine.Transition(status.Polling)
		return
	}

	if len(out.newChats) > 0 {
		e.bus.Emit(bus.KindNewChats, NewChats{NewChats: out.newChats, AllChats: out.all})
	}
	if len(out.changed) > 0 {
		e.bus.Emit(bus.KindNewMessages, NewMessages{Chats: out.changed})
	}
	if out.refreshed != nil {
		e.bus.Emit(bus.KindChatRefreshed, *out.refreshed)
	}

	result := CycleResult{
		Chats:    len(out.all),
		NewChats: len(out.newChats),
		Changed:  len(out.changed),
		Duration: elapsed,
		At:       time.Now(),
	}

	e.mu.Lock()
	if gen == e.gen {
		e.snap = out.next
	}
	e.authNotified = false
	e.mu.Unlock()

	e.record(result)
	e.bus.Emit(bus.KindCycleDone, result)
	_ = e.machine.Transition(status.Polling)
}

// observation is the outcome of one cycle's fetches and diffs, held until the
// engine decides what to emit and commits the successor snapshot.
type observation struct {
	all       []gateway.Chat
	newChats  []gateway.Chat
	changed   []gateway.Chat
	refreshed *ChatRefreshed
	next      *snapshot
}

func (e *Engine) observe(ctx context.Context, prev *snapshot, focused string) (*observation, error) {
	all, err := e.gw.ListAllChatsFresh(ctx, e.opts.Workspace, e.opts.PageSize)
	if err != nil {
		return nil, err
	}

	out := &observation{all: all, next: emptySnapshot()}
	focusedPresent := false
	focusedChanged := false
	for _, c := range all {
		out.next.chats[c.ID] = summarize(c)
		if c.ID == focused {
			focusedPresent = true
		}
		switch {
		case !prev.has(c.ID):
			out.newChats = append(out.newChats, c)
		case prev.changed(c):
			if c.ID == focused {
				focusedChanged = true
			} else {
				out.changed = append(out.changed, c)
			}
		}
	}

	// Chat-list diffing completes before the focused-chat message diff, so a
	// newly created focused chat is never diffed against a stale baseline.
	if focused != "" && focusedPresent {
		msgs, err := e.gw.ListAllMessagesFresh(ctx, focused, e.opts.PageSize)
		if err != nil {
			return nil, err
		}
		fresh := false
		out.next.focusedChat = focused
		out.next.focusedMsgIDs = make(map[string]struct{}, len(msgs))
		for _, m := range msgs {
			out.next.focusedMsgIDs[m.ID] = struct{}{}
			if prev.knowsMessages(focused) && !prev.hasMessage(m.ID) {
				fresh = true
			}
		}
		// Without an id baseline (focus changed since the last cycle), fall
		// back to the summary diff to decide whether a refresh is due.
		if !prev.knowsMessages(focused) {
			fresh = focusedChanged
		}
		if fresh {
			out.refreshed = &ChatRefreshed{ChatID: focused, Messages: msgs}
		}
	}
	return out, nil
}

// pauseForAuth surfaces a one-time notice and parks the engine in
// AuthRequired. Polling with a dead credential is pointless; Resume restarts
// it after re-authentication.
func (e *Engine) pauseForAuth(err error) {
	e.mu.Lock()
	notified := e.authNotified
	e.authNotified = true
	e.mu.Unlock()

	if !notified {
		e.logger.Warn("gateway rejected credential, pausing sync", zap.Error(err))
		e.bus.Emit(bus.KindAuthRequired, err.Error())
	}
	_ = e.machine.Transition(status.AuthRequired)
}

func (e *Engine) record(r CycleResult) {
	e.mu.Lock()
	e.last = r
	e.haveLast = true
	e.mu.Unlock()
}
