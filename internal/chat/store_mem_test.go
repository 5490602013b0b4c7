package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"intern-chat/internal/apperr"
)

// memStore mirrors the Repository semantics without Postgres: same
// validation, same recall blanking, same derived conversation view.
type memStore struct {
	mu   sync.Mutex
	seq  int
	msgs []*Message

	// clock lets tests control created_at for deterministic ordering.
	clock func() time.Time
}

func newMemStore() *memStore {
	return &memStore{clock: time.Now}
}

func cloneMessage(m *Message) *Message {
	c := *m
	c.Reactions = append([]Reaction(nil), m.Reactions...)
	return &c
}

func (s *memStore) Create(_ context.Context, m *Message) (*Message, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.Kind == "" {
		m.Kind = KindText
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	m.ID = s.seq
	m.CreatedAt = s.clock()
	m.Reactions = []Reaction{}
	s.msgs = append(s.msgs, cloneMessage(m))
	return m, nil
}

func (s *memStore) find(id int) (*Message, error) {
	for _, m := range s.msgs {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, fmt.Errorf("message %d: %w", id, apperr.ErrNotFound)
}

func (s *memStore) Get(_ context.Context, id int) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.find(id)
	if err != nil {
		return nil, err
	}
	return cloneMessage(m).Present(), nil
}

func (s *memStore) Conversation(_ context.Context, userA, userB string) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Message
	for _, m := range s.msgs {
		if m.Between(userA, userB) {
			out = append(out, cloneMessage(m).Present())
		}
	}
	return out, nil
}

func (s *memStore) MarkRead(_ context.Context, counterpart, owner string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	now := s.clock()
	for _, m := range s.msgs {
		if m.Sender == counterpart && m.Receiver == owner && !m.Read {
			m.Read = true
			m.ReadAt = &now
			n++
		}
	}
	return n, nil
}

func (s *memStore) Edit(_ context.Context, id int, body string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.find(id)
	if err != nil {
		return err
	}
	m.Body = body
	m.EditedAt = &at
	return nil
}

func (s *memStore) Recall(_ context.Context, id int, by string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.find(id)
	if err != nil {
		return err
	}
	m.Deleted = true
	m.DeletedAt = &at
	m.DeletedBy = by
	m.Body = ""
	m.AttachmentURL = nil
	return nil
}

func (s *memStore) ToggleReaction(_ context.Context, id int, emoji, actor string) ([]Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.find(id)
	if err != nil {
		return nil, err
	}
	m.Reactions = toggleReaction(m.Reactions, emoji, actor)
	return append([]Reaction(nil), m.Reactions...), nil
}

func (s *memStore) DeleteConversation(_ context.Context, userA, userB string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.msgs[:0]
	n := 0
	for _, m := range s.msgs {
		if m.Between(userA, userB) {
			n++
			continue
		}
		kept = append(kept, m)
	}
	s.msgs = kept
	return n, nil
}

func (s *memStore) ListConversations(_ context.Context, owner string) ([]ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := make(map[string]*Message)
	unread := make(map[string]int)
	for _, m := range s.msgs {
		var counterpart string
		switch {
		case m.Sender == owner:
			counterpart = m.Receiver
		case m.Receiver == owner:
			counterpart = m.Sender
		default:
			continue
		}
		last := latest[counterpart]
		if last == nil || m.CreatedAt.After(last.CreatedAt) ||
			(m.CreatedAt.Equal(last.CreatedAt) && m.ID > last.ID) {
			latest[counterpart] = m
		}
		if m.Receiver == owner && !m.Read {
			unread[counterpart]++
		}
	}

	var summaries []ConversationSummary
	for counterpart, m := range latest {
		summaries = append(summaries, ConversationSummary{
			Counterpart: counterpart,
			LastMessage: cloneMessage(m).Present(),
			UnreadCount: unread[counterpart],
		})
	}
	sortSummaries(summaries)
	return summaries, nil
}

// captureSink records every broadcast the dispatcher emits.
type captureSink struct {
	mu     sync.Mutex
	events []sentEvent
}

type sentEvent struct {
	To      string
	Event   string
	Payload any
}

func (s *captureSink) Send(to string, event string, payload any) {
	s.mu.Lock()
	s.events = append(s.events, sentEvent{To: to, Event: event, Payload: payload})
	s.mu.Unlock()
}

func (s *captureSink) all() []sentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentEvent(nil), s.events...)
}

func (s *captureSink) forTarget(to string) []sentEvent {
	var out []sentEvent
	for _, e := range s.all() {
		if e.To == to {
			out = append(out, e)
		}
	}
	return out
}

func (s *captureSink) reset() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}
