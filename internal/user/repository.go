package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"intern-chat/internal/apperr"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, user *User) (*User, error) {
	query := "INSERT INTO users (code, display_name, avatar_url, password) VALUES ($1, $2, $3, $4)"

	_, err := r.db.ExecContext(ctx, query, user.Code, user.DisplayName, user.AvatarURL, user.Password)
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (r *Repository) GetUserByCode(ctx context.Context, code string) (*User, error) {
	u := &User{}
	query := "SELECT code, display_name, avatar_url, password FROM users WHERE code = $1"

	err := r.db.QueryRowContext(ctx, query, code).Scan(&u.Code, &u.DisplayName, &u.AvatarURL, &u.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", code, apperr.ErrNotFound)
		}
		return nil, err
	}

	return u, nil
}

func (r *Repository) SearchUsers(ctx context.Context, query string) ([]User, error) {
	// We limit to 10 to keep it fast
	q := `SELECT code, display_name, avatar_url FROM users
          WHERE code ILIKE $1 OR display_name ILIKE $1 LIMIT 10`
	rows, err := r.db.QueryContext(ctx, q, "%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Code, &u.DisplayName, &u.AvatarURL); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}
