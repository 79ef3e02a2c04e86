package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gabomarinc/konsul-console/internal/dashboard"
	"github.com/gabomarinc/konsul-console/internal/gateway"
	"github.com/gabomarinc/konsul-console/internal/notify"
	"github.com/gabomarinc/konsul-console/internal/store"
	"github.com/gabomarinc/konsul-console/internal/ws"
)

// Client wraps the daemon's local HTTP/WebSocket API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// StatusInfo is the daemon status surface.
type StatusInfo struct {
	State               string  `json:"state"`
	Workspace           string  `json:"workspace"`
	Focused             string  `json:"focused"`
	UnreadChats         int     `json:"unread_chats"`
	UnreadNotifications int     `json:"unread_notifications"`
	Consoles            int     `json:"consoles"`
	LastCycle           *aCycle `json:"last_cycle,omitempty"`
}

type aCycle struct {
	Chats    int       `json:"chats"`
	NewChats int       `json:"new_chats"`
	Changed  int       `json:"changed"`
	At       time.Time `json:"at"`
	Err      string    `json:"error,omitempty"`
}

// New creates a client for the daemon listening at addr (host:port).
func New(addr string) *Client {
	return &Client{
		baseURL:    "http://" + addr,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Status fetches the daemon status. Doubles as the health check.
func (c *Client) Status(ctx context.Context) (*StatusInfo, error) {
	var info StatusInfo
	if err := c.do(ctx, http.MethodGet, "/v1/status", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Chats fetches the chat collection, newest activity first.
func (c *Client) Chats(ctx context.Context) ([]dashboard.ChatView, error) {
	var body struct {
		Chats []dashboard.ChatView `json:"chats"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/chats", nil, &body); err != nil {
		return nil, err
	}
	return body.Chats, nil
}

// Messages fetches a chat's loaded messages, time-ascending.
func (c *Client) Messages(ctx context.Context, chatID string) ([]gateway.Message, error) {
	var body struct {
		Messages []gateway.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/chats/"+chatID+"/messages", nil, &body); err != nil {
		return nil, err
	}
	return body.Messages, nil
}

// OpenChat focuses a chat, marks it read, and clears its notifications.
func (c *Client) OpenChat(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodPost, "/v1/chats/"+chatID+"/open", nil, nil)
}

// SendMessage posts an agent message to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) (*gateway.Message, error) {
	var body struct {
		Message *gateway.Message `json:"message"`
	}
	payload := map[string]string{"text": text}
	if err := c.do(ctx, http.MethodPost, "/v1/chats/"+chatID+"/messages", payload, &body); err != nil {
		return nil, err
	}
	return body.Message, nil
}

// DeleteChat removes a chat at the gateway and locally.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/chats/"+chatID+"/", nil, nil)
}

// Notifications fetches the inbox view (entries for unopened chats).
func (c *Client) Notifications(ctx context.Context) ([]notify.Entry, int, error) {
	var body struct {
		Notifications []notify.Entry `json:"notifications"`
		Unread        int            `json:"unread"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/notifications", nil, &body); err != nil {
		return nil, 0, err
	}
	return body.Notifications, body.Unread, nil
}

// NotificationHistory fetches the durable notification trail, newest first.
func (c *Client) NotificationHistory(ctx context.Context, limit int) ([]store.NotificationRecord, error) {
	var body struct {
		Notifications []store.NotificationRecord `json:"notifications"`
	}
	path := fmt.Sprintf("/v1/notifications?all=true&limit=%d", limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &body); err != nil {
		return nil, err
	}
	return body.Notifications, nil
}

// MarkAllRead zeroes the unread notification counter.
func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/notifications/read-all", nil, nil)
}

// SetToken installs a fresh gateway token and resumes polling.
func (c *Client) SetToken(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/v1/auth/token", map[string]string{"token": token}, nil)
}

// Events connects to the daemon's event stream. Envelopes arrive on the
// returned channel until the context ends or the connection drops.
func (c *Client) Events(ctx context.Context) (<-chan ws.Envelope, error) {
	url := "ws" + c.baseURL[len("http"):] + "/v1/events"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial event stream: %w", err)
	}

	ch := make(chan ws.Envelope, 64)
	go func() {
		defer close(ch)
		defer func() { _ = conn.Close() }()
		go func() {
			<-ctx.Done()
			_ = conn.Close()
		}()
		for {
			var env ws.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			select {
			case ch <- env:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// do executes one request against the daemon and unwraps the
// {success: bool, ...} envelope into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		if env.Error == "" {
			env.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("daemon: %s", env.Error)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
