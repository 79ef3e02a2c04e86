package readstate

import (
	"encoding/json"
	"sort"
	"sync"

	"go.uber.org/zap"
)

const namespace = "konsul"

// Storage is the durable key-value backing for the opened-chat set.
// store.DB satisfies it.
type Storage interface {
	SetValue(ns, key, value string) error
	GetValue(ns, key string) (string, bool, error)
}

// Tracker maintains the append-only set of chat ids the operator has opened.
// The in-memory set is authoritative for the session; every mutation is
// written through to storage so a reload never loses read state observed so
// far. Persistence failures are logged and otherwise ignored — worst case the
// read state resets on next load.
type Tracker struct {
	mu      sync.RWMutex
	opened  map[string]struct{}
	storage Storage
	key     string
	logger  *zap.Logger
}

// New creates a tracker for one workspace, reconstructing the set from
// storage. An absent key yields an empty set (everything initially unread),
// not an error.
func New(storage Storage, workspace string, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		opened:  make(map[string]struct{}),
		storage: storage,
		key:     "opened_chats." + workspace,
		logger:  logger,
	}
	t.load()
	return t
}

func (t *Tracker) load() {
	if t.storage == nil {
		return
	}
	value, ok, err := t.storage.GetValue(namespace, t.key)
	if err != nil {
		t.logger.Warn("failed to load read state", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	var ids []string
	if err := json.Unmarshal([]byte(value), &ids); err != nil {
		t.logger.Warn("corrupt read state, starting empty", zap.Error(err))
		return
	}
	for _, id := range ids {
		t.opened[id] = struct{}{}
	}
}

// MarkOpened adds a chat id to the opened set and persists. Idempotent: a
// second call with the same id changes nothing and skips the storage write.
func (t *Tracker) MarkOpened(chatID string) {
	t.mu.Lock()
	if _, exists := t.opened[chatID]; exists {
		t.mu.Unlock()
		return
	}
	t.opened[chatID] = struct{}{}
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	t.persist(snapshot)
}

// IsOpened reports whether the operator has opened the chat.
func (t *Tracker) IsOpened(chatID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.opened[chatID]
	return ok
}

// CountUnopened returns how many of the given chat ids are not in the opened
// set. This drives the unread badge.
func (t *Tracker) CountUnopened(chatIDs []string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, id := range chatIDs {
		if _, ok := t.opened[id]; !ok {
			n++
		}
	}
	return n
}

// Opened returns the opened ids, sorted for stable output.
func (t *Tracker) Opened() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() []string {
	ids := make([]string, 0, len(t.opened))
	for id := range t.opened {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// persist writes the full set through to storage on every mutation.
func (t *Tracker) persist(ids []string) {
	if t.storage == nil {
		return
	}
	value, err := json.Marshal(ids)
	if err != nil {
		t.logger.Warn("failed to encode read state", zap.Error(err))
		return
	}
	if err := t.storage.SetValue(namespace, t.key, string(value)); err != nil {
		t.logger.Warn("failed to persist read state", zap.Error(err))
	}
}
