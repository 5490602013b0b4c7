package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) AutoMigrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            code VARCHAR(20) PRIMARY KEY,
            display_name VARCHAR(100) NOT NULL,
            avatar_url TEXT NOT NULL DEFAULT '',
            password VARCHAR(255) NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS messages (
            id SERIAL PRIMARY KEY,
            sender_code VARCHAR(20) NOT NULL REFERENCES users(code) ON DELETE CASCADE,
            receiver_code VARCHAR(20) NOT NULL REFERENCES users(code) ON DELETE CASCADE,
            body TEXT NOT NULL DEFAULT '',
            kind VARCHAR(10) CHECK (kind IN ('text', 'image', 'file', 'recalled')) DEFAULT 'text',
            attachment_url TEXT,
            client_token VARCHAR(64),
            read BOOLEAN NOT NULL DEFAULT FALSE,
            read_at TIMESTAMP,
            edited_at TIMESTAMP,
            deleted BOOLEAN NOT NULL DEFAULT FALSE,
            deleted_at TIMESTAMP,
            deleted_by VARCHAR(20),
            reactions JSONB NOT NULL DEFAULT '[]',
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,

		// Conversation fetches filter on the pair in both directions.
		`CREATE INDEX IF NOT EXISTS idx_messages_pair
            ON messages (sender_code, receiver_code, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pair_rev
            ON messages (receiver_code, sender_code, created_at)`,
	}

	for _, query := range queries {
		_, err := d.Conn.Exec(query)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
