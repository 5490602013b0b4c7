package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"intern-chat/internal/apperr"
)

// Store is what the dispatcher and handlers need from persistence.
// The Postgres Repository below is the real one; tests swap in a
// memory-backed double.
type Store interface {
	Create(ctx context.Context, m *Message) (*Message, error)
	Get(ctx context.Context, id int) (*Message, error)
	Conversation(ctx context.Context, userA, userB string) ([]*Message, error)
	MarkRead(ctx context.Context, counterpart, owner string) (int, error)
	Edit(ctx context.Context, id int, body string, at time.Time) error
	Recall(ctx context.Context, id int, by string, at time.Time) error
	ToggleReaction(ctx context.Context, id int, emoji, actor string) ([]Reaction, error)
	DeleteConversation(ctx context.Context, userA, userB string) (int, error)
	ListConversations(ctx context.Context, owner string) ([]ConversationSummary, error)
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const messageColumns = `id, sender_code, receiver_code, body, kind, attachment_url,
    COALESCE(client_token, ''), read, read_at, edited_at,
    deleted, deleted_at, COALESCE(deleted_by, ''), reactions, created_at`

func scanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	m := &Message{}
	var reactions []byte
	err := row.Scan(&m.ID, &m.Sender, &m.Receiver, &m.Body, &m.Kind, &m.AttachmentURL,
		&m.ClientToken, &m.Read, &m.ReadAt, &m.EditedAt,
		&m.Deleted, &m.DeletedAt, &m.DeletedBy, &reactions, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(reactions, &m.Reactions); err != nil {
		return nil, fmt.Errorf("decode reactions for message %d: %w", m.ID, err)
	}
	return m, nil
}

func (r *Repository) Create(ctx context.Context, m *Message) (*Message, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.Kind == "" {
		m.Kind = KindText
	}

	query := `INSERT INTO messages (sender_code, receiver_code, body, kind, attachment_url, client_token)
              VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
              RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query,
		m.Sender, m.Receiver, m.Body, m.Kind, m.AttachmentURL, m.ClientToken).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.Reactions = []Reaction{}
	return m, nil
}

func (r *Repository) Get(ctx context.Context, id int) (*Message, error) {
	query := "SELECT " + messageColumns + " FROM messages WHERE id = $1"
	m, err := scanMessage(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	return m.Present(), nil
}

// Conversation returns every message between the two identities,
// oldest first.
func (r *Repository) Conversation(ctx context.Context, userA, userB string) ([]*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
              WHERE (sender_code = $1 AND receiver_code = $2)
                 OR (sender_code = $2 AND receiver_code = $1)
              ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, userA, userB)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m.Present())
	}
	return messages, rows.Err()
}

// MarkRead flips every unread message from counterpart to owner.
// Idempotent: a second call flips nothing and returns 0.
func (r *Repository) MarkRead(ctx context.Context, counterpart, owner string) (int, error) {
	query := `UPDATE messages SET read = TRUE, read_at = $3
              WHERE sender_code = $1 AND receiver_code = $2 AND read = FALSE`
	res, err := r.db.ExecContext(ctx, query, counterpart, owner, time.Now())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *Repository) Edit(ctx context.Context, id int, body string, at time.Time) error {
	query := "UPDATE messages SET body = $2, edited_at = $3 WHERE id = $1"
	_, err := r.db.ExecContext(ctx, query, id, body, at)
	return err
}

// Recall blanks the stored content on top of flagging the row: the
// original body is unrecoverable once recalled.
func (r *Repository) Recall(ctx context.Context, id int, by string, at time.Time) error {
	query := `UPDATE messages SET deleted = TRUE, deleted_at = $3, deleted_by = $2,
              body = '', attachment_url = NULL WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, by, at)
	return err
}

// ToggleReaction adds the (emoji, actor) entry, or removes it if
// already present. The row lock serializes concurrent toggles on the
// same message so the read-modify-write cannot lose one.
func (r *Repository) ToggleReaction(ctx context.Context, id int, emoji, actor string) ([]Reaction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.QueryRowContext(ctx, "SELECT reactions FROM messages WHERE id = $1 FOR UPDATE", id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}

	var reactions []Reaction
	if err := json.Unmarshal(raw, &reactions); err != nil {
		return nil, err
	}
	reactions = toggleReaction(reactions, emoji, actor)

	updated, err := json.Marshal(reactions)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE messages SET reactions = $2 WHERE id = $1", id, updated); err != nil {
		return nil, err
	}
	return reactions, tx.Commit()
}

// toggleReaction is the shared add-or-remove rule: reacting twice with
// the same emoji cancels out.
func toggleReaction(reactions []Reaction, emoji, actor string) []Reaction {
	for i, re := range reactions {
		if re.Emoji == emoji && re.Actor == actor {
			return append(reactions[:i], reactions[i+1:]...)
		}
	}
	return append(reactions, Reaction{Emoji: emoji, Actor: actor})
}

// DeleteConversation is the one operation that physically removes rows.
func (r *Repository) DeleteConversation(ctx context.Context, userA, userB string) (int, error) {
	query := `DELETE FROM messages
              WHERE (sender_code = $1 AND receiver_code = $2)
                 OR (sender_code = $2 AND receiver_code = $1)`
	res, err := r.db.ExecContext(ctx, query, userA, userB)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ListConversations materializes the derived view: one row per
// counterpart with the latest message, plus the unread count of
// messages they sent that the owner has not read.
func (r *Repository) ListConversations(ctx context.Context, owner string) ([]ConversationSummary, error) {
	query := `SELECT DISTINCT ON (counterpart) ` + messageColumns + `, counterpart FROM (
                  SELECT *, CASE WHEN sender_code = $1 THEN receiver_code ELSE sender_code END AS counterpart
                  FROM messages
                  WHERE sender_code = $1 OR receiver_code = $1
              ) t
              ORDER BY counterpart, created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []ConversationSummary
	for rows.Next() {
		m := &Message{}
		var reactions []byte
		var counterpart string
		err := rows.Scan(&m.ID, &m.Sender, &m.Receiver, &m.Body, &m.Kind, &m.AttachmentURL,
			&m.ClientToken, &m.Read, &m.ReadAt, &m.EditedAt,
			&m.Deleted, &m.DeletedAt, &m.DeletedBy, &reactions, &m.CreatedAt, &counterpart)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(reactions, &m.Reactions); err != nil {
			return nil, err
		}
		summaries = append(summaries, ConversationSummary{
			Counterpart: counterpart,
			LastMessage: m.Present(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	unread, err := r.unreadCounts(ctx, owner)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		summaries[i].UnreadCount = unread[summaries[i].Counterpart]
	}

	sortSummaries(summaries)
	return summaries, nil
}

func (r *Repository) unreadCounts(ctx context.Context, owner string) (map[string]int, error) {
	query := `SELECT sender_code, COUNT(*) FROM messages
              WHERE receiver_code = $1 AND read = FALSE
              GROUP BY sender_code`
	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var code string
		var n int
		if err := rows.Scan(&code, &n); err != nil {
			return nil, err
		}
		counts[code] = n
	}
	return counts, rows.Err()
}

// sortSummaries orders by latest activity, newest first. Equal
// timestamps fall back to counterpart code ascending so the order is
// deterministic.
func sortSummaries(summaries []ConversationSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i].LastMessage.CreatedAt, summaries[j].LastMessage.CreatedAt
		if a.Equal(b) {
			return summaries[i].Counterpart < summaries[j].Counterpart
		}
		return a.After(b)
	})
}
