package chat

import (
	"context"
	"fmt"
	"time"

	"intern-chat/internal/apperr"
)

// Sink is where canonical events go after persistence. The Hub is the
// real one; tests capture events with a fake.
type Sink interface {
	Send(to string, event string, payload any)
}

// Dispatcher implements the persist-then-broadcast rule for every
// mutating chat operation. A precondition failure persists nothing and
// broadcasts nothing; an offline target is never a failure.
type Dispatcher struct {
	store Store
	sink  Sink
}

func NewDispatcher(store Store, sink Sink) *Dispatcher {
	return &Dispatcher{store: store, sink: sink}
}

// both pushes the same event to the two participants of a message.
func (d *Dispatcher) both(m *Message, event string) {
	d.sink.Send(m.Sender, event, m)
	d.sink.Send(m.Receiver, event, m)
}

// Send persists a new message and pushes NewMessage to both sides.
// The client token from the request is echoed in the canonical record
// so the sender can retire its optimistic entry by exact match.
func (d *Dispatcher) Send(ctx context.Context, from string, req *SendRequest) (*Message, error) {
	m := &Message{
		Sender:      from,
		Receiver:    req.To,
		Body:        req.Message,
		Kind:        req.Type,
		ClientToken: req.TempID,
	}
	if req.AttachmentURL != "" {
		m.AttachmentURL = &req.AttachmentURL
	}
	if m.Kind == "" {
		m.Kind = KindText
	}

	m, err := d.store.Create(ctx, m)
	if err != nil {
		return nil, err
	}

	d.both(m, EventNewMessage)
	return m, nil
}

// Edit rewrites the body. Only the original sender may edit, and never
// after a recall.
func (d *Dispatcher) Edit(ctx context.Context, actor string, id int, body string) (*Message, error) {
	m, err := d.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Sender != actor {
		return nil, apperr.Forbidden("only the sender can edit a message")
	}
	if m.Deleted {
		return nil, apperr.Validation("cannot edit a recalled message")
	}

	now := time.Now()
	if err := d.store.Edit(ctx, id, body, now); err != nil {
		return nil, err
	}
	m.Body = body
	m.EditedAt = &now

	d.both(m, EventMessageUpdated)
	return m, nil
}

// Recall soft-deletes: the record survives with its content hidden
// from everyone.
func (d *Dispatcher) Recall(ctx context.Context, actor string, id int) (*Message, error) {
	m, err := d.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Sender != actor {
		return nil, apperr.Forbidden("only the sender can recall a message")
	}

	now := time.Now()
	if err := d.store.Recall(ctx, id, actor, now); err != nil {
		return nil, err
	}
	m.Deleted = true
	m.DeletedAt = &now
	m.DeletedBy = actor
	m.Present()

	d.both(m, EventMessageDeleted)
	return m, nil
}

// React toggles the (emoji, actor) entry on the message.
func (d *Dispatcher) React(ctx context.Context, actor string, id int, emoji string) (*Message, error) {
	if emoji == "" {
		return nil, apperr.Validation("emoji is required")
	}
	m, err := d.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	reactions, err := d.store.ToggleReaction(ctx, id, emoji, actor)
	if err != nil {
		return nil, err
	}
	m.Reactions = reactions

	d.both(m, EventMessageReaction)
	return m, nil
}

// MarkRead flips the owner's unread messages from counterpart and, if
// anything actually flipped, tells the counterpart so their UI can show
// the read receipt. Only the counterpart is notified.
func (d *Dispatcher) MarkRead(ctx context.Context, owner, counterpart string) (int, error) {
	n, err := d.store.MarkRead(ctx, counterpart, owner)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		d.sink.Send(counterpart, EventMessagesRead, ReadReceipt{
			Reader: owner,
			Count:  n,
			ReadAt: time.Now(),
		})
	}
	return n, nil
}

// History returns the full conversation, oldest first, and marks it
// read as a side effect (opening a conversation is reading it).
func (d *Dispatcher) History(ctx context.Context, owner, counterpart string) ([]*Message, error) {
	messages, err := d.store.Conversation(ctx, owner, counterpart)
	if err != nil {
		return nil, err
	}
	if _, err := d.MarkRead(ctx, owner, counterpart); err != nil {
		return nil, fmt.Errorf("mark read on fetch: %w", err)
	}
	return messages, nil
}

func (d *Dispatcher) Conversations(ctx context.Context, owner string) ([]ConversationSummary, error) {
	return d.store.ListConversations(ctx, owner)
}

func (d *Dispatcher) DeleteConversation(ctx context.Context, owner, counterpart string) (int, error) {
	return d.store.DeleteConversation(ctx, owner, counterpart)
}
