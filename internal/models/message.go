package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Direction distinguishes traffic relative to the tenant's number.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Status is the delivery status of a message.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
	StatusReceived  Status = "received"
)

// MessageType tags the content union.
type MessageType string

const (
	TypeText        MessageType = "text"
	TypeImage       MessageType = "image"
	TypeAudio       MessageType = "audio"
	TypeDocument    MessageType = "document"
	TypeVideo       MessageType = "video"
	TypeSticker     MessageType = "sticker"
	TypeLocation    MessageType = "location"
	TypeContacts    MessageType = "contacts"
	TypeInteractive MessageType = "interactive"
	TypeButton      MessageType = "button"
	TypeReaction    MessageType = "reaction"
	TypeUnknown     MessageType = "unknown"
	TypeUnsupported MessageType = "unsupported"
)

// HasMedia reports whether the type carries a downloadable attachment.
func (t MessageType) HasMedia() bool {
	switch t {
	case TypeImage, TypeAudio, TypeDocument, TypeVideo, TypeSticker:
		return true
	}
	return false
}

// MediaStatus is the enrichment lifecycle of an attachment. Transitions are
// one-way: pending to processed or error.
type MediaStatus string

const (
	MediaPending   MediaStatus = "pending"
	MediaProcessed MediaStatus = "processed"
	MediaError     MediaStatus = "error"
)

// MediaAttachment is the media sub-record of a message.
type MediaAttachment struct {
	ProviderID  string      `json:"provider_id"`
	MIMEType    string      `json:"mime_type"`
	SHA256      string      `json:"sha256"`
	Caption     string      `json:"caption,omitempty"`
	Status      MediaStatus `json:"status"`
	PublicURL   string      `json:"public_url,omitempty"`
	StorageID   string      `json:"storage_id,omitempty"`
	SizeBytes   int64       `json:"size_bytes,omitempty"`
	ProcessedAt *time.Time  `json:"processed_at,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// TextContent is the body of a text message.
type TextContent struct {
	Body string `json:"body"`
}

// LocationContent is a shared location.
type LocationContent struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// InteractiveContent is a list or button reply.
type InteractiveContent struct {
	Type        string `json:"type"`
	ReplyID     string `json:"reply_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ButtonContent is a quick-reply button press.
type ButtonContent struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// ReactionContent is an emoji reaction to an earlier message.
type ReactionContent struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// ContactCard is a shared contact entry.
type ContactCard struct {
	FormattedName string   `json:"formatted_name"`
	Phones        []string `json:"phones,omitempty"`
	Organization  string   `json:"organization,omitempty"`
}

// MessageContent is a closed union tagged by Type. Exactly one branch is set
// for the tagged type; unknown and unsupported payloads keep their raw form.
type MessageContent struct {
	Type        MessageType         `json:"type"`
	Text        *TextContent        `json:"text,omitempty"`
	Media       *MediaAttachment    `json:"media,omitempty"`
	Location    *LocationContent    `json:"location,omitempty"`
	Contacts    []ContactCard       `json:"contacts,omitempty"`
	Interactive *InteractiveContent `json:"interactive,omitempty"`
	Button      *ButtonContent      `json:"button,omitempty"`
	Reaction    *ReactionContent    `json:"reaction,omitempty"`
	Raw         json.RawMessage     `json:"raw,omitempty"`
}

// Value serializes the content union for a jsonb column.
func (c MessageContent) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan reads the content union from a jsonb column.
func (c *MessageContent) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	case nil:
		*c = MessageContent{}
		return nil
	}
	return fmt.Errorf("unsupported content source %T", src)
}

// Preview returns the short display text used for chat list previews.
func (c MessageContent) Preview() string {
	switch c.Type {
	case TypeText:
		if c.Text != nil && c.Text.Body != "" {
			return c.Text.Body
		}
		return "Text message"
	case TypeImage:
		if c.Media != nil && c.Media.Caption != "" {
			return c.Media.Caption
		}
		return "Image"
	case TypeAudio:
		return "Audio"
	case TypeDocument:
		return "Document"
	case TypeVideo:
		return "Video"
	case TypeSticker:
		return "Sticker"
	case TypeLocation:
		return "Location"
	case TypeContacts:
		return "Contact"
	case TypeInteractive:
		return "Interactive message"
	case TypeButton:
		return "Button"
	case TypeReaction:
		if c.Reaction != nil && c.Reaction.Emoji != "" {
			return c.Reaction.Emoji + " Reaction"
		}
		return "Reaction"
	default:
		return "Message"
	}
}

// Message is the canonical persisted message. MessageID is the external
// platform id and the idempotency key: a second ingestion of the same id is a
// no-op. Rows are mutated only to advance Status or to attach enrichment
// results; they are never deleted.
type Message struct {
	ID         int64           `db:"id" json:"id"`
	MessageID  string          `db:"message_id" json:"message_id"`
	ChatID     string          `db:"chat_id" json:"chat_id"`
	TenantID   string          `db:"tenant_id" json:"tenant_id"`
	Timestamp  time.Time       `db:"ts" json:"timestamp"`
	From       string          `db:"sender" json:"from"`
	To         string          `db:"recipient" json:"to,omitempty"`
	Direction  Direction       `db:"direction" json:"direction"`
	Type       MessageType     `db:"type" json:"type"`
	Content    MessageContent  `db:"content" json:"content"`
	Status     Status          `db:"status" json:"status"`
	RawPayload json.RawMessage `db:"raw_payload" json:"-"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}
