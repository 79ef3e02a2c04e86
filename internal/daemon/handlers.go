package daemon

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gabomarinc/konsul-console/internal/dashboard"
	"github.com/gabomarinc/konsul-console/internal/gateway"
	"github.com/gabomarinc/konsul-console/internal/notify"
	"github.com/gabomarinc/konsul-console/internal/readstate"
	"github.com/gabomarinc/konsul-console/internal/status"
	"github.com/gabomarinc/konsul-console/internal/store"
	chatsync "github.com/gabomarinc/konsul-console/internal/sync"
	"github.com/gabomarinc/konsul-console/internal/ws"
)

// HandlerDeps carries everything the HTTP surface reads or drives.
type HandlerDeps struct {
	Controller *dashboard.Controller
	Presenter  *notify.Presenter
	Tracker    *readstate.Tracker
	Engine     *chatsync.Engine
	Machine    *status.Machine
	Client     *gateway.Client
	DB         *store.DB
	Hub        *ws.Hub
	Workspace  string
	Logger     *zap.Logger
}

// Handlers is the console's HTTP API.
type Handlers struct {
	deps   HandlerDeps
	events http.Handler
	logger *zap.Logger
}

// NewHandlers constructs the HTTP surface.
func NewHandlers(d HandlerDeps) *Handlers {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Handlers{
		deps:   d,
		events: ws.NewHandler(d.Hub, d.Logger),
		logger: d.Logger,
	}
}

// Register mounts every route under /v1.
func (h *Handlers) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", h.handleStatus)
		r.Get("/chats", h.handleListChats)
		r.Route("/chats/{chatID}", func(r chi.Router) {
			r.Get("/messages", h.handleListMessages)
			r.Post("/messages", h.handleSendMessage)
			r.Post("/open", h.handleOpenChat)
			r.Delete("/", h.handleDeleteChat)
		})
		r.Get("/notifications", h.handleListNotifications)
		r.Post("/notifications/read-all", h.handleMarkAllRead)
		r.Post("/auth/token", h.handleAuthToken)
		r.Get("/events", h.events.ServeHTTP)
	})
}

// envelope is the {success: bool, ...} response wrapper every endpoint uses.
type envelope map[string]any

func respond(w http.ResponseWriter, code int, data envelope) {
	if data == nil {
		data = envelope{}
	}
	data["success"] = code >= 200 && code < 300
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respond(w, code, envelope{"error": msg})
}

// gatewayStatus maps the gateway error taxonomy onto HTTP codes for the local
// API: credential problems are the caller's to fix, everything else upstream
// is a bad gateway.
func gatewayStatus(err error) int {
	if errors.Is(err, gateway.ErrUnauthenticated) || errors.Is(err, gateway.ErrAuthExpired) {
		return http.StatusUnauthorized
	}
	var httpErr *gateway.HTTPError
	var netErr *gateway.NetworkError
	if errors.As(err, &httpErr) || errors.As(err, &netErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	data := envelope{
		"state":                h.deps.Machine.Current(),
		"workspace":            h.deps.Workspace,
		"focused":              h.deps.Controller.Focused(),
		"unread_chats":         h.deps.Controller.UnreadChats(),
		"unread_notifications": h.deps.Presenter.UnreadCount(),
		"consoles":             h.deps.Hub.Count(),
	}
	if last, ok := h.deps.Engine.LastCycle(); ok {
		data["last_cycle"] = last
	}
	respond(w, http.StatusOK, data)
}

func (h *Handlers) handleListChats(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, envelope{"chats": h.deps.Controller.Chats()})
}

func (h *Handlers) handleListMessages(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	msgs, ok := h.deps.Controller.Messages(chatID)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown chat")
		return
	}
	respond(w, http.StatusOK, envelope{"messages": msgs})
}

func (h *Handlers) handleOpenChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	if _, ok := h.deps.Controller.Chat(chatID); !ok {
		respondError(w, http.StatusNotFound, "unknown chat")
		return
	}
	h.deps.Controller.OpenChat(r.Context(), chatID)
	chat, _ := h.deps.Controller.Chat(chatID)
	respond(w, http.StatusOK, envelope{"chat": chat})
}

func (h *Handlers) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	if _, ok := h.deps.Controller.Chat(chatID); !ok {
		respondError(w, http.StatusNotFound, "unknown chat")
		return
	}
	if err := h.deps.Controller.DeleteChat(r.Context(), chatID); err != nil {
		respondError(w, gatewayStatus(err), err.Error())
		return
	}
	respond(w, http.StatusOK, nil)
}

func (h *Handlers) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	if _, ok := h.deps.Controller.Chat(chatID); !ok {
		respondError(w, http.StatusNotFound, "unknown chat")
		return
	}

	msg, err := h.deps.Controller.SendMessage(r.Context(), chatID, req.Text)
	if err != nil {
		respondError(w, gatewayStatus(err), err.Error())
		return
	}
	respond(w, http.StatusOK, envelope{"message": msg})
}

func (h *Handlers) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("all") == "true" {
		limit := 100
		if l := r.URL.Query().Get("limit"); l != "" {
			if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		records, err := h.deps.DB.ListNotifications(limit)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respond(w, http.StatusOK, envelope{"notifications": records})
		return
	}

	entries := h.deps.Presenter.Visible(h.deps.Tracker.IsOpened)
	respond(w, http.StatusOK, envelope{
		"notifications": entries,
		"unread":        h.deps.Presenter.UnreadCount(),
	})
}

func (h *Handlers) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	h.deps.Presenter.MarkAllRead()
	respond(w, http.StatusOK, nil)
}

// handleAuthToken installs a fresh bearer token and resumes polling if the
// daemon was parked on AuthRequired.
func (h *Handlers) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Token == "" {
		respondError(w, http.StatusBadRequest, "token is required")
		return
	}

	h.deps.Client.SetToken(req.Token)
	h.logger.Info("gateway token updated")
	if h.deps.Machine.Current() == status.AuthRequired {
		if err := h.deps.Engine.Resume(); err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	respond(w, http.StatusOK, envelope{"state": h.deps.Machine.Current()})
}
