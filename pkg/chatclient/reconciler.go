package chatclient

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"intern-chat/internal/chat"
)

// Entry is one rendered line of a conversation: either a canonical
// server record or a local optimistic placeholder still waiting for
// its confirmation.
type Entry struct {
	Msg          *chat.Message
	TempID       string
	IsOptimistic bool
}

// FetchTicket pins a history fetch to the conversation that was open
// when the fetch started. A late response for a conversation the user
// has already left is discarded by comparing the ticket, never by
// reading "currently open" after the fact.
type FetchTicket struct {
	Counterpart string
}

// Reconciler owns the authoritative client-side view of the open
// conversation. REST snapshots, optimistic local sends, and real-time
// events all feed it, and it keeps one ordered, duplicate-free list.
type Reconciler struct {
	mu sync.Mutex

	me      string
	current string // open conversation counterpart, "" when none

	canonical []*chat.Message   // confirmed records, by server id
	pending   map[string]*Entry // optimistic entries, by client token
	unread    *UnreadCounter

	// onAutoRead fires when a NewMessage lands in the conversation that
	// is already open: the owner should issue a mark-read call instead
	// of counting it unread.
	onAutoRead func(counterpart string)
}

func NewReconciler(me string) *Reconciler {
	return &Reconciler{
		me:      me,
		pending: make(map[string]*Entry),
		unread:  NewUnreadCounter(),
	}
}

func (r *Reconciler) SetAutoRead(fn func(counterpart string)) {
	r.mu.Lock()
	r.onAutoRead = fn
	r.mu.Unlock()
}

func (r *Reconciler) Unread() *UnreadCounter { return r.unread }

// Open switches to the conversation with counterpart: previous state is
// torn down, the local unread count clears optimistically, and the
// returned ticket pins any fetch started now to this conversation.
func (r *Reconciler) Open(counterpart string) FetchTicket {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.current = counterpart
	r.canonical = nil
	r.pending = make(map[string]*Entry)
	r.unread.Clear(counterpart)
	return FetchTicket{Counterpart: counterpart}
}

// Close leaves the current conversation.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = ""
	r.canonical = nil
	r.pending = make(map[string]*Entry)
}

// Current returns the open conversation counterpart, or "".
func (r *Reconciler) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// ApplySnapshot replaces the canonical set with a REST fetch result.
// Returns false when the ticket is stale (the user switched away while
// the fetch was in flight); the response is dropped whole.
func (r *Reconciler) ApplySnapshot(t FetchTicket, msgs []*chat.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.Counterpart != r.current {
		return false
	}

	r.canonical = r.canonical[:0]
	for _, m := range msgs {
		if m.Between(r.me, r.current) {
			r.canonical = append(r.canonical, m)
		}
	}
	r.prunePending()
	return true
}

// SendOptimistic appends a placeholder for a message the user just
// typed, before any network round-trip. The token it carries must go
// out with the send so the server can echo it back.
func (r *Reconciler) SendOptimistic(to, body, kind string) *Entry {
	if kind == "" {
		kind = chat.KindText
	}
	entry := &Entry{
		Msg: &chat.Message{
			Sender:      r.me,
			Receiver:    to,
			Body:        body,
			Kind:        kind,
			ClientToken: uuid.NewString(),
			Reactions:   []chat.Reaction{},
			CreatedAt:   time.Now(),
		},
		IsOptimistic: true,
	}
	entry.TempID = entry.Msg.ClientToken

	r.mu.Lock()
	r.pending[entry.TempID] = entry
	r.mu.Unlock()
	return entry
}

// HandleEvent applies one real-time event. Malformed payloads are
// logged and dropped; they never corrupt the canonical state.
func (r *Reconciler) HandleEvent(ev chat.Event) error {
	switch ev.Name {
	case chat.EventNewMessage:
		m := &chat.Message{}
		if err := json.Unmarshal(ev.Data, m); err != nil {
			return fmt.Errorf("malformed %s payload: %w", ev.Name, err)
		}
		r.handleNewMessage(m)

	case chat.EventMessageUpdated, chat.EventMessageDeleted, chat.EventMessageReaction:
		m := &chat.Message{}
		if err := json.Unmarshal(ev.Data, m); err != nil {
			return fmt.Errorf("malformed %s payload: %w", ev.Name, err)
		}
		r.patchCanonical(m)

	case chat.EventMessagesRead:
		receipt := chat.ReadReceipt{}
		if err := json.Unmarshal(ev.Data, &receipt); err != nil {
			return fmt.Errorf("malformed %s payload: %w", ev.Name, err)
		}
		r.applyReadReceipt(receipt)

	default:
		log.Printf("dropping unknown event %q", ev.Name)
	}
	return nil
}

func (r *Reconciler) handleNewMessage(m *chat.Message) {
	r.mu.Lock()

	if r.current != "" && m.Between(r.me, r.current) {
		r.upsertCanonical(m)
		r.prunePending()
		autoRead := r.onAutoRead
		counterpart := r.current
		fromThem := m.Sender != r.me
		r.mu.Unlock()

		// An incoming message in the open conversation is read on
		// sight: trigger the mark-read call rather than counting it.
		if fromThem && autoRead != nil {
			autoRead(counterpart)
		}
		return
	}

	// Some other conversation: just bump its badge.
	if m.Receiver == r.me {
		r.unread.Inc(m.Sender)
	}
	r.mu.Unlock()
}

// upsertCanonical inserts or replaces by server id. Idempotent, so a
// redelivered event is harmless.
func (r *Reconciler) upsertCanonical(m *chat.Message) {
	for i, c := range r.canonical {
		if c.ID == m.ID {
			r.canonical[i] = m
			return
		}
	}
	r.canonical = append(r.canonical, m)
}

func (r *Reconciler) patchCanonical(m *chat.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.canonical {
		if c.ID == m.ID {
			r.canonical[i] = m
			return
		}
	}
	// Edits and reactions for conversations we don't have open are
	// fine to ignore: the next fetch re-derives everything.
}

func (r *Reconciler) applyReadReceipt(receipt chat.ReadReceipt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if receipt.Reader != r.current {
		return
	}
	at := receipt.ReadAt
	for _, c := range r.canonical {
		if c.Sender == r.me && !c.Read {
			c.Read = true
			c.ReadAt = &at
		}
	}
}

// prunePending drops every optimistic entry whose canonical twin has
// arrived. The echoed client token is the exact match; the
// sender+receiver+trimmed-body triple only covers records that carry
// no token. Callers hold the lock.
func (r *Reconciler) prunePending() {
	for token, entry := range r.pending {
		for _, c := range r.canonical {
			if c.ClientToken == token {
				delete(r.pending, token)
				break
			}
			if c.ClientToken == "" &&
				c.Sender == entry.Msg.Sender &&
				c.Receiver == entry.Msg.Receiver &&
				strings.TrimSpace(c.Body) == strings.TrimSpace(entry.Msg.Body) {
				delete(r.pending, token)
				break
			}
		}
	}
}

// Messages returns the merged view: canonical plus surviving pending
// entries, sorted by timestamp ascending. The sort is stable so equal
// timestamps keep arrival order, pending after canonical.
func (r *Reconciler) Messages() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	merged := make([]Entry, 0, len(r.canonical)+len(r.pending))
	for _, c := range r.canonical {
		merged = append(merged, Entry{Msg: c})
	}

	pending := make([]*Entry, 0, len(r.pending))
	for _, e := range r.pending {
		pending = append(pending, e)
	}
	sort.Slice(pending, func(i, j int) bool {
		// Map order is random; tokens break ties for determinism.
		if pending[i].Msg.CreatedAt.Equal(pending[j].Msg.CreatedAt) {
			return pending[i].TempID < pending[j].TempID
		}
		return pending[i].Msg.CreatedAt.Before(pending[j].Msg.CreatedAt)
	})
	for _, e := range pending {
		merged = append(merged, *e)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Msg.CreatedAt.Before(merged[j].Msg.CreatedAt)
	})
	return merged
}
