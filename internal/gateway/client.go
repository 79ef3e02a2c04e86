package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL  = "https://api.konsul.chat"
	defaultTimeout  = 30 * time.Second
	defaultCacheTTL = 5 * time.Minute
)

// Client wraps the konsul chat gateway REST API: bearer-token auth, JSON
// decoding, and a TTL response cache for GETs. It performs no retries —
// retry policy belongs to callers (the sync engine retries by ticking).
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *responseCache
	logger     *zap.Logger

	mu    sync.RWMutex
	token string
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithCacheTTL sets the response cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) { c.cache = newResponseCache(ttl, 0) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a gateway client. token may be empty; calls then fail with
// ErrUnauthenticated until SetToken is used.
func New(token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		cache:      newResponseCache(defaultCacheTTL, 0),
		logger:     zap.NewNop(),
		token:      token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken installs a new bearer token, e.g. after re-authentication.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// HasToken reports whether a token is currently held.
func (c *Client) HasToken() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

// ClearCache drops every cached response.
func (c *Client) ClearCache() {
	c.cache.clear()
}

// cacheInvalidations is the static table of cache-key prefixes each mutating
// operation must drop. The cache is shared by every caller, so any new
// write-path operation belongs in this table — stale reads otherwise survive
// for a full TTL.
var cacheInvalidations = map[string][]func(workspaceID, chatID string) string{
	"send_message": {messagesKeyPrefix, chatListKeyPrefix},
	"delete_chat":  {messagesKeyPrefix, chatListKeyPrefix},
}

func chatListKeyPrefix(workspaceID, _ string) string {
	return "GET /v1/workspaces/" + workspaceID + "/chats"
}

func messagesKeyPrefix(_, chatID string) string {
	return "GET /v1/chats/" + chatID + "/messages"
}

func (c *Client) invalidateFor(mutation, workspaceID, chatID string) {
	for _, keyFn := range cacheInvalidations[mutation] {
		c.cache.invalidatePrefix(keyFn(workspaceID, chatID))
	}
}

// envelope is the gateway's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// ListChats fetches one page of the workspace chat list.
func (c *Client) ListChats(ctx context.Context, workspaceID string, page, pageSize int) ([]Chat, error) {
	return c.listChats(ctx, workspaceID, page, pageSize, false)
}

func (c *Client) listChats(ctx context.Context, workspaceID string, page, pageSize int, fresh bool) ([]Chat, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	var chats []Chat
	path := fmt.Sprintf("/v1/workspaces/%s/chats", workspaceID)
	if err := c.getJSON(ctx, path, q, &chats, fresh); err != nil {
		return nil, err
	}
	return chats, nil
}

// ListAllChats accumulates chat-list pages until a short page signals
// end-of-data. Repeats within the TTL are served from the response cache.
func (c *Client) ListAllChats(ctx context.Context, workspaceID string, pageSize int) ([]Chat, error) {
	return c.listAllChats(ctx, workspaceID, pageSize, false)
}

// ListAllChatsFresh is the polling variant of ListAllChats: every page goes to
// the origin and refreshes the response cache on the way through. A poller
// reading its own cached answer would never observe a change, so the sync hot
// path must come through here; UI-triggered reads keep the cached variant.
func (c *Client) ListAllChatsFresh(ctx context.Context, workspaceID string, pageSize int) ([]Chat, error) {
	return c.listAllChats(ctx, workspaceID, pageSize, true)
}

func (c *Client) listAllChats(ctx context.Context, workspaceID string, pageSize int, fresh bool) ([]Chat, error) {
	var all []Chat
	for page := 1; ; page++ {
		chats, err := c.listChats(ctx, workspaceID, page, pageSize, fresh)
		if err != nil {
			return nil, err
		}
		all = append(all, chats...)
		if len(chats) < pageSize {
			return all, nil
		}
	}
}

// ListMessages fetches one page of a chat's messages, sorted ascending by
// timestamp.
func (c *Client) ListMessages(ctx context.Context, chatID string, page, pageSize int) ([]Message, error) {
	return c.listMessages(ctx, chatID, page, pageSize, false)
}

func (c *Client) listMessages(ctx context.Context, chatID string, page, pageSize int, fresh bool) ([]Message, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	var msgs []Message
	path := fmt.Sprintf("/v1/chats/%s/messages", chatID)
	if err := c.getJSON(ctx, path, q, &msgs, fresh); err != nil {
		return nil, err
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	return msgs, nil
}

// ListAllMessages accumulates message pages until a short page, keeping the
// result time-ascending.
func (c *Client) ListAllMessages(ctx context.Context, chatID string, pageSize int) ([]Message, error) {
	return c.listAllMessages(ctx, chatID, pageSize, false)
}

// ListAllMessagesFresh bypasses the response cache page by page, refreshing it
// for cached readers. Used by the sync engine's focused-chat diff.
func (c *Client) ListAllMessagesFresh(ctx context.Context, chatID string, pageSize int) ([]Message, error) {
	return c.listAllMessages(ctx, chatID, pageSize, true)
}

func (c *Client) listAllMessages(ctx context.Context, chatID string, pageSize int, fresh bool) ([]Message, error) {
	var all []Message
	for page := 1; ; page++ {
		msgs, err := c.listMessages(ctx, chatID, page, pageSize, fresh)
		if err != nil {
			return nil, err
		}
		all = append(all, msgs...)
		if len(msgs) < pageSize {
			break
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	return all, nil
}

// SendMessage posts an agent message to a chat and invalidates the chat's
// message cache plus the chat-list cache.
func (c *Client) SendMessage(ctx context.Context, workspaceID, chatID, text string) (*Message, error) {
	body := map[string]string{"role": string(RoleAgent), "text": text}
	var msg Message
	path := fmt.Sprintf("/v1/chats/%s/messages", chatID)
	if err := c.doJSON(ctx, http.MethodPost, path, nil, body, &msg); err != nil {
		return nil, err
	}
	c.invalidateFor("send_message", workspaceID, chatID)
	return &msg, nil
}

// DeleteChat removes a chat at the gateway and invalidates related caches.
// This is the only path by which a chat disappears other than the vendor
// dropping it from the list.
func (c *Client) DeleteChat(ctx context.Context, workspaceID, chatID string) error {
	path := fmt.Sprintf("/v1/chats/%s", chatID)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
		return err
	}
	c.invalidateFor("delete_chat", workspaceID, chatID)
	return nil
}

// getJSON performs a cached GET. Repeated identical requests within the TTL
// are served from memory without a network call. fresh skips the lookup but
// still stores the response, so a poll refreshes the cache for UI readers.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any, fresh bool) error {
	key := "GET " + path
	if len(query) > 0 {
		key += "?" + query.Encode()
	}

	if !fresh {
		if body, ok := c.cache.get(key); ok {
			return json.Unmarshal(body, out)
		}
	}

	raw, err := c.roundTrip(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	c.cache.put(key, raw)
	return json.Unmarshal(raw, out)
}

// doJSON performs an uncached request, used for mutations.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var payload io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(b)
	}
	raw, err := c.roundTrip(ctx, method, path, query, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// roundTrip executes one HTTP request and returns the envelope's data field.
// Failure classes map to the error taxonomy; none of them panic or escape
// untyped.
func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body io.Reader) ([]byte, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token == "" {
		return nil, ErrUnauthenticated
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("gateway request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, &NetworkError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		c.logger.Warn("gateway rejected token", zap.String("path", path))
		return nil, ErrAuthExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("gateway error response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(raw)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if !env.Success {
		return nil, &HTTPError{Status: resp.StatusCode, Body: env.Error}
	}

	c.logger.Debug("gateway request ok", zap.String("method", method), zap.String("path", path))
	return env.Data, nil
}
