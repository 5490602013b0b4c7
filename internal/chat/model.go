package chat

import (
	"encoding/json"
	"strings"
	"time"

	"intern-chat/internal/apperr"
)

// ---------------------------------------------
// 🗄️ Database & API Models
// ---------------------------------------------

const (
	KindText     = "text"
	KindImage    = "image"
	KindFile     = "file"
	KindRecalled = "recalled"
)

// RecalledPlaceholder replaces the body of a recalled message for every
// reader, sender included.
const RecalledPlaceholder = "This message has been recalled"

type Reaction struct {
	Emoji string `json:"emoji"`
	Actor string `json:"actor"`
}

type Message struct {
	ID            int        `json:"id"`
	Sender        string     `json:"sender"`
	Receiver      string     `json:"receiver"`
	Body          string     `json:"body"`
	Kind          string     `json:"kind"`
	AttachmentURL *string    `json:"attachment_url"`
	ClientToken   string     `json:"client_token,omitempty"` // echoed back so the client can reconcile its optimistic entry
	Read          bool       `json:"read"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
	EditedAt      *time.Time `json:"edited_at,omitempty"`
	Deleted       bool       `json:"deleted"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
	DeletedBy     string     `json:"deleted_by,omitempty"`
	Reactions     []Reaction `json:"reactions"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Validate enforces the create-time invariants: no self-addressed
// messages, no empty text bodies.
func (m *Message) Validate() error {
	if m.Sender == "" || m.Receiver == "" {
		return apperr.Validation("sender and receiver are required")
	}
	if m.Sender == m.Receiver {
		return apperr.Validation("cannot send a message to yourself")
	}
	switch m.Kind {
	case "", KindText:
		if strings.TrimSpace(m.Body) == "" {
			return apperr.Validation("message body is empty")
		}
	case KindImage, KindFile:
		// attachment kinds may carry an empty body
	default:
		return apperr.Validation("unknown message kind " + m.Kind)
	}
	return nil
}

// Present applies the recall masking before a message leaves the server.
// Recalled rows are already blanked in storage; this keeps the wire
// shape fixed regardless.
func (m *Message) Present() *Message {
	if m.Deleted {
		m.Body = RecalledPlaceholder
		m.AttachmentURL = nil
		m.Kind = KindRecalled
	}
	return m
}

// Between reports whether the message belongs to the conversation of
// the two identities, in either direction.
func (m *Message) Between(a, b string) bool {
	return (m.Sender == a && m.Receiver == b) || (m.Sender == b && m.Receiver == a)
}

// ConversationSummary is the derived view: no identity of its own,
// recomputed from messages on demand.
type ConversationSummary struct {
	Counterpart string   `json:"counterpart"`
	LastMessage *Message `json:"last_message"`
	UnreadCount int      `json:"unread_count"`
}

// ---------------------------------------------
// ⚡ Real-Time Events
// ---------------------------------------------

const (
	EventNewMessage      = "NewMessage"
	EventMessageUpdated  = "MessageUpdated"
	EventMessageDeleted  = "MessageDeleted"
	EventMessageReaction = "MessageReaction"
	EventMessagesRead    = "MessagesRead"
)

// Event is the frame exchanged on the websocket, both directions.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// SendRequest is what the frontend sends to us, over the socket
// (as a NewMessage frame) or over POST /api/send-message when the
// socket is down. TempID is the client-generated idempotency token.
type SendRequest struct {
	To            string `json:"to"`
	Message       string `json:"message"`
	Type          string `json:"type"`
	AttachmentURL string `json:"attachment_url,omitempty"`
	TempID        string `json:"tempId,omitempty"`
}

// ReadReceipt is the MessagesRead payload: tells the counterpart that
// Reader has seen Count of their messages.
type ReadReceipt struct {
	Reader string    `json:"reader"`
	Count  int       `json:"count"`
	ReadAt time.Time `json:"read_at"`
}

// Envelope is the internal routing unit: an event addressed to a
// logical identity, not a connection. It is what travels over Redis
// between instances.
type Envelope struct {
	To    string          `json:"to"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
