package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"wa-gateway/internal/models"
)

var ErrChatNotFound = errors.New("chat not found")

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	// ApplyMessage creates the chat on first contact or extends it on every
	// later message. incrementUnread is set only for incoming messages.
	ApplyMessage(ctx context.Context, tenantID, chatID, participant string, ts time.Time, preview string, incrementUnread bool, meta models.Metadata) (models.Chat, error)
	Get(ctx context.Context, tenantID, chatID string) (models.Chat, error)
	List(ctx context.Context, tenantID string, limit int, unreadOnly bool) ([]models.Chat, error)
	// MarkRead resets the unread counter to zero.
	MarkRead(ctx context.Context, tenantID, chatID string) error
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

const chatColumns = `chat_id, tenant_id, participants, last_message, last_message_content,
    unread_count, metadata, created_at, updated_at`

// ApplyMessage upserts the chat in a single statement so interleaved webhook
// deliveries cannot lose an unread increment.
func (r *ChatRepo) ApplyMessage(ctx context.Context, tenantID, chatID, participant string, ts time.Time, preview string, incrementUnread bool, meta models.Metadata) (models.Chat, error) {
	increment := 0
	if incrementUnread {
		increment = 1
	}
	if meta == nil {
		meta = models.Metadata{}
	}

	var chat models.Chat
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO chats (chat_id, tenant_id, participants, last_message, last_message_content, unread_count, metadata)
         VALUES ($1, $2, $3, $4, $5, $6, $7)
         ON CONFLICT (tenant_id, chat_id) DO UPDATE SET
            last_message = EXCLUDED.last_message,
            last_message_content = EXCLUDED.last_message_content,
            unread_count = chats.unread_count + $6,
            updated_at = NOW()
         RETURNING `+chatColumns,
		chatID, tenantID, pq.StringArray{participant}, ts, preview, increment, meta).
		StructScan(&chat)
	if err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// Get fetches a chat by id within a tenant.
func (r *ChatRepo) Get(ctx context.Context, tenantID, chatID string) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat,
		`SELECT `+chatColumns+` FROM chats WHERE tenant_id=$1 AND chat_id=$2`, tenantID, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// List returns the tenant's chats ordered by last activity.
func (r *ChatRepo) List(ctx context.Context, tenantID string, limit int, unreadOnly bool) ([]models.Chat, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + chatColumns + ` FROM chats WHERE tenant_id=$1`
	if unreadOnly {
		query += ` AND unread_count > 0`
	}
	query += ` ORDER BY last_message DESC LIMIT $2`

	rows, err := r.db.QueryxContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Chat
	for rows.Next() {
		var chat models.Chat
		if err := rows.StructScan(&chat); err != nil {
			return nil, err
		}
		result = append(result, chat)
	}
	return result, rows.Err()
}

// MarkRead resets the unread counter.
func (r *ChatRepo) MarkRead(ctx context.Context, tenantID, chatID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chats SET unread_count = 0, updated_at = NOW() WHERE tenant_id=$1 AND chat_id=$2`,
		tenantID, chatID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrChatNotFound
	}
	return nil
}
