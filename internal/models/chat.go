package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Metadata is the free-form chat metadata stored as jsonb.
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	case nil:
		*m = Metadata{}
		return nil
	}
	return fmt.Errorf("unsupported metadata source %T", src)
}

// Chat is one counterparty's conversation with a tenant's number. ChatID is
// derived from the counterparty address for incoming traffic. UnreadCount is
// incremented once per incoming message and reset by an explicit mark-read.
type Chat struct {
	ChatID             string         `db:"chat_id" json:"chat_id"`
	TenantID           string         `db:"tenant_id" json:"tenant_id"`
	Participants       pq.StringArray `db:"participants" json:"participants"`
	LastMessage        time.Time      `db:"last_message" json:"last_message"`
	LastMessageContent string         `db:"last_message_content" json:"last_message_content"`
	UnreadCount        int            `db:"unread_count" json:"unread_count"`
	Metadata           Metadata       `db:"metadata" json:"metadata"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}
