package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	database, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(database); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return database, nil
}

func runMigrations(database *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS chats (
            chat_id TEXT NOT NULL,
            tenant_id TEXT NOT NULL,
            participants TEXT[] NOT NULL DEFAULT '{}',
            last_message TIMESTAMPTZ NOT NULL,
            last_message_content TEXT NOT NULL DEFAULT '',
            unread_count INT NOT NULL DEFAULT 0 CHECK (unread_count >= 0),
            metadata JSONB NOT NULL DEFAULT '{}',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (tenant_id, chat_id)
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            message_id TEXT NOT NULL UNIQUE,
            chat_id TEXT NOT NULL,
            tenant_id TEXT NOT NULL,
            ts TIMESTAMPTZ NOT NULL,
            sender TEXT NOT NULL,
            recipient TEXT NOT NULL DEFAULT '',
            direction TEXT NOT NULL,
            type TEXT NOT NULL,
            content JSONB NOT NULL,
            status TEXT NOT NULL,
            raw_payload JSONB,
            media_provider_id TEXT,
            media_mime_type TEXT,
            media_sha256 TEXT,
            media_status TEXT,
            media_public_url TEXT,
            media_storage_id TEXT,
            media_size_bytes BIGINT,
            media_processed_at TIMESTAMPTZ,
            media_error TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat_ts ON messages (tenant_id, chat_id, ts DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_status ON messages (status);`,
		`CREATE INDEX IF NOT EXISTS idx_chats_last_message ON chats (tenant_id, last_message DESC);`,
	}

	for _, m := range migrations {
		if _, err := database.Exec(m); err != nil {
			return err
		}
	}
	return nil
}
