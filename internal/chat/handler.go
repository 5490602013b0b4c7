package chat

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"intern-chat/internal/apperr"
	myMiddleware "intern-chat/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

type Handler struct {
	hub      *Hub
	dispatch *Dispatcher
}

func NewHandler(hub *Hub, dispatch *Dispatcher) *Handler {
	return &Handler{
		hub:      hub,
		dispatch: dispatch,
	}
}

// Routes mounts the chat REST surface on an authenticated router group.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/conversations", h.ListConversations)
	r.Get("/api/messages/{counterpart}", h.GetChatHistory)
	r.Post("/api/send-message", h.SendMessage)
	r.Put("/api/message/{id}", h.EditMessage)
	r.Delete("/api/message/{id}", h.RecallMessage)
	r.Post("/api/message/{id}/reaction", h.ReactMessage)
	r.Put("/api/read/{counterpart}", h.MarkRead)
	r.Delete("/api/conversation/{counterpart}", h.DeleteConversation)
	r.Get("/ws", h.ServeWs)
}

func identity(r *http.Request) (string, bool) {
	code, ok := r.Context().Value(myMiddleware.IdentityKey).(string)
	return code, ok && code != ""
}

func writeErr(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), apperr.HTTPStatus(err))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	code, ok := identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	summaries, err := h.dispatch.Conversations(r.Context(), code)
	if err != nil {
		writeErr(w, err)
		return
	}
	if summaries == nil {
		summaries = []ConversationSummary{}
	}
	writeJSON(w, summaries)
}

// GetChatHistory loads the conversation with the counterpart. Side
// effect: everything unread from them flips to read and they receive a
// MessagesRead event.
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	code, ok := identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	counterpart := strings.ToUpper(chi.URLParam(r, "counterpart"))

	messages, err := h.dispatch.History(r.Context(), code, counterpart)
	if err != nil {
		writeErr(w, err)
		return
	}
	if messages == nil {
		messages = []*Message{}
	}
	writeJSON(w, messages)
}

// SendMessage is the REST fallback for when the socket is down.
// Persists and broadcasts exactly like the real-time path.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	code, ok := identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m, err := h.dispatch.Send(r.Context(), code, &req)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, m)
}

func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	code, ok := identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message body is empty", http.StatusBadRequest)
		return
	}

	m, err := h.dispatch.Edit(r.Context(), code, id, req.Message)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, m)
}

func (h *Handler) RecallMessage(w http.ResponseWriter, r *http.Request) {
	code, ok := identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}

	m, err := h.dispatch.Recall(r.Context(), code, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, m)
}

func (h *Handler) ReactMessage(w http.ResponseWriter, r *http.Request) {
	code, ok := identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}

	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m, err := h.dispatch.React(r.Context(), code, id, req.Emoji)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, m)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	code, ok := identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	counterpart := strings.ToUpper(chi.URLParam(r, "counterpart"))

	n, err := h.dispatch.MarkRead(r.Context(), code, counterpart)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]int{"read": n})
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	code, ok := identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	counterpart := strings.ToUpper(chi.URLParam(r, "counterpart"))

	n, err := h.dispatch.DeleteConversation(r.Context(), code, counterpart)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]int{"deleted": n})
}

// ServeWs upgrades an authenticated request to the real-time channel.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	code, ok := identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := &Client{
		Hub:      h.hub,
		Dispatch: h.dispatch,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		Code:     code,
	}
	client.Hub.Register <- client

	// Note: These run in new goroutines, ServeWs returns immediately.
	go client.WritePump()
	go client.ReadPump()
}
