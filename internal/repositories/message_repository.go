package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"wa-gateway/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	// ErrMediaNotPending is returned when an enrichment writeback targets a
	// media sub-record that already reached a terminal state.
	ErrMediaNotPending = errors.New("media sub-record is not pending")
)

// MessageRepository abstracts message persistence.
type MessageRepository interface {
	// Insert stores a message keyed by its external id. It returns false with
	// a nil error when the id was already persisted (idempotent re-delivery).
	Insert(ctx context.Context, msg models.Message) (bool, error)
	GetByMessageID(ctx context.Context, tenantID, messageID string) (models.Message, error)
	// AdvanceStatus moves the delivery status of the tenant's message with the
	// given external id and returns its conversation reference.
	AdvanceStatus(ctx context.Context, tenantID, messageID string, status models.Status) (models.Message, error)
	ListByChat(ctx context.Context, tenantID, chatID string, limit, offset int) ([]models.Message, error)
	// MarkChatRead flips every non-terminal incoming status in the chat to read.
	MarkChatRead(ctx context.Context, tenantID, chatID string) error
	// SetMediaProcessed writes enrichment results onto the media columns only.
	// It never touches the rest of the row and refuses non-pending records.
	SetMediaProcessed(ctx context.Context, messageID, publicURL, storageID string, sizeBytes int64) error
	// SetMediaError records a terminal enrichment failure.
	SetMediaError(ctx context.Context, messageID, detail string) error
}

// MessageRepo is a sqlx implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// messageRow mirrors the messages table including nullable media columns.
type messageRow struct {
	ID          int64                 `db:"id"`
	MessageID   string                `db:"message_id"`
	ChatID      string                `db:"chat_id"`
	TenantID    string                `db:"tenant_id"`
	Timestamp   time.Time             `db:"ts"`
	Sender      string                `db:"sender"`
	Recipient   string                `db:"recipient"`
	Direction   string                `db:"direction"`
	Type        string                `db:"type"`
	Content     models.MessageContent `db:"content"`
	Status      string                `db:"status"`
	RawPayload  []byte                `db:"raw_payload"`
	MediaID     sql.NullString        `db:"media_provider_id"`
	MediaMIME   sql.NullString        `db:"media_mime_type"`
	MediaSHA    sql.NullString        `db:"media_sha256"`
	MediaStatus sql.NullString        `db:"media_status"`
	MediaURL    sql.NullString        `db:"media_public_url"`
	MediaStore  sql.NullString        `db:"media_storage_id"`
	MediaSize   sql.NullInt64         `db:"media_size_bytes"`
	MediaDone   sql.NullTime          `db:"media_processed_at"`
	MediaError  sql.NullString        `db:"media_error"`
	CreatedAt   time.Time             `db:"created_at"`
	UpdatedAt   time.Time             `db:"updated_at"`
}

const messageColumns = `id, message_id, chat_id, tenant_id, ts, sender, recipient, direction, type,
    content, status, raw_payload, media_provider_id, media_mime_type, media_sha256, media_status,
    media_public_url, media_storage_id, media_size_bytes, media_processed_at, media_error,
    created_at, updated_at`

func (r *messageRow) toModel() models.Message {
	msg := models.Message{
		ID:         r.ID,
		MessageID:  r.MessageID,
		ChatID:     r.ChatID,
		TenantID:   r.TenantID,
		Timestamp:  r.Timestamp,
		From:       r.Sender,
		To:         r.Recipient,
		Direction:  models.Direction(r.Direction),
		Type:       models.MessageType(r.Type),
		Content:    r.Content,
		Status:     models.Status(r.Status),
		RawPayload: json.RawMessage(r.RawPayload),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	// The media columns are authoritative for enrichment state; overlay them
	// onto the content union so readers see one consistent sub-record.
	if r.MediaID.Valid {
		media := &models.MediaAttachment{
			ProviderID: r.MediaID.String,
			MIMEType:   r.MediaMIME.String,
			SHA256:     r.MediaSHA.String,
			Status:     models.MediaStatus(r.MediaStatus.String),
			PublicURL:  r.MediaURL.String,
			StorageID:  r.MediaStore.String,
			SizeBytes:  r.MediaSize.Int64,
			Error:      r.MediaError.String,
		}
		if msg.Content.Media != nil {
			media.Caption = msg.Content.Media.Caption
		}
		if r.MediaDone.Valid {
			t := r.MediaDone.Time
			media.ProcessedAt = &t
		}
		msg.Content.Media = media
	}
	return msg
}

// Insert stores the message, treating a duplicate external id as already
// applied.
func (r *MessageRepo) Insert(ctx context.Context, msg models.Message) (bool, error) {
	var media *models.MediaAttachment
	if msg.Type.HasMedia() {
		media = msg.Content.Media
	}

	query := `INSERT INTO messages (message_id, chat_id, tenant_id, ts, sender, recipient, direction,
        type, content, status, raw_payload, media_provider_id, media_mime_type, media_sha256, media_status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
        ON CONFLICT (message_id) DO NOTHING`

	var mediaID, mediaMIME, mediaSHA, mediaStatus any
	if media != nil {
		mediaID, mediaMIME, mediaSHA, mediaStatus = media.ProviderID, media.MIMEType, media.SHA256, string(models.MediaPending)
	}

	var raw any
	if len(msg.RawPayload) > 0 {
		raw = []byte(msg.RawPayload)
	}

	res, err := r.db.ExecContext(ctx, query,
		msg.MessageID, msg.ChatID, msg.TenantID, msg.Timestamp, msg.From, msg.To,
		string(msg.Direction), string(msg.Type), msg.Content, string(msg.Status), raw,
		mediaID, mediaMIME, mediaSHA, mediaStatus)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetByMessageID fetches a tenant's message by its external id. External ids
// are globally unique upstream; the tenant predicate keeps row access
// tenant-scoped regardless.
func (r *MessageRepo) GetByMessageID(ctx context.Context, tenantID, messageID string) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM messages WHERE tenant_id=$1 AND message_id=$2`, tenantID, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return row.toModel(), nil
}

// AdvanceStatus updates the delivery status by external id within the tenant.
func (r *MessageRepo) AdvanceStatus(ctx context.Context, tenantID, messageID string, status models.Status) (models.Message, error) {
	var row messageRow
	err := r.db.QueryRowxContext(ctx,
		`UPDATE messages SET status=$3, updated_at=NOW() WHERE tenant_id=$1 AND message_id=$2 RETURNING `+messageColumns,
		tenantID, messageID, string(status)).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return row.toModel(), nil
}

// ListByChat returns chat messages in chronological order.
func (r *MessageRepo) ListByChat(ctx context.Context, tenantID, chatID string, limit, offset int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryxContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE tenant_id=$1 AND chat_id=$2
         ORDER BY ts DESC LIMIT $3 OFFSET $4`, tenantID, chatID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Message
	for rows.Next() {
		var row messageRow
		if err := rows.StructScan(&row); err != nil {
			return nil, err
		}
		result = append(result, row.toModel())
	}
	// chronological order for clients
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, rows.Err()
}

// MarkChatRead flips sent/delivered/received statuses in the chat to read.
func (r *MessageRepo) MarkChatRead(ctx context.Context, tenantID, chatID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET status='read', updated_at=NOW()
         WHERE tenant_id=$1 AND chat_id=$2 AND status IN ('sent','delivered','received')`,
		tenantID, chatID)
	return err
}

// SetMediaProcessed writes the enrichment result. Only the media columns are
// touched so concurrent status updates are never clobbered.
func (r *MessageRepo) SetMediaProcessed(ctx context.Context, messageID, publicURL, storageID string, sizeBytes int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET media_status='processed', media_public_url=$2, media_storage_id=$3,
            media_size_bytes=$4, media_processed_at=NOW(), updated_at=NOW()
         WHERE message_id=$1 AND media_status='pending'`,
		messageID, publicURL, storageID, sizeBytes)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMediaNotPending
	}
	return nil
}

// SetMediaError records a terminal enrichment failure.
func (r *MessageRepo) SetMediaError(ctx context.Context, messageID, detail string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET media_status='error', media_error=$2, media_processed_at=NOW(), updated_at=NOW()
         WHERE message_id=$1 AND media_status='pending'`,
		messageID, detail)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMediaNotPending
	}
	return nil
}
