package models

import "time"

// Event names pushed to realtime sessions.
const (
	EventNewMessage       = "new_message"
	EventMessageStatus    = "message_status"
	EventChatUpdated      = "chat_updated"
	EventMediaProcessed   = "media_processed"
	EventAuthenticated    = "authenticated"
	EventAuthFailed       = "authentication_failed"
	EventAuthTimeout      = "auth_timeout"
	EventChatSubscribed   = "chat_subscribed"
	EventChatUnsubscribed = "chat_unsubscribed"
	EventChatMarkedRead   = "chat_marked_read"
	EventChatMessages     = "chat_messages"
	EventChatList         = "chat_list"
	EventError            = "error"
	EventPong             = "pong"
)

// WSEvent is the server-initiated envelope written to sessions.
type WSEvent struct {
	Type      string    `json:"type"`
	ChatID    string    `json:"chat_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusUpdate is the payload of a message_status event.
type StatusUpdate struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
	Status    Status `json:"status"`
}

// ChatUpdate is the payload of a chat_updated event.
type ChatUpdate struct {
	ChatID             string    `json:"chat_id"`
	LastMessage        time.Time `json:"last_message"`
	LastMessageContent string    `json:"last_message_content"`
	UnreadCount        int       `json:"unread_count"`
}

// MediaResult is the payload of a media_processed event.
type MediaResult struct {
	MessageID string      `json:"message_id"`
	ChatID    string      `json:"chat_id"`
	Status    MediaStatus `json:"status"`
	PublicURL string      `json:"public_url,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// ErrorEvent carries a stable code to realtime clients. No internal detail
// crosses this boundary.
type ErrorEvent struct {
	Code   string `json:"code"`
	Action string `json:"action,omitempty"`
	ChatID string `json:"chat_id,omitempty"`
}

// Stable error codes surfaced to sessions.
const (
	CodeAuthRequired    = "AUTH_REQUIRED"
	CodeAuthTimeout     = "AUTH_TIMEOUT"
	CodeTokenMissing    = "TOKEN_MISSING"
	CodeTokenExpired    = "TOKEN_EXPIRED"
	CodeTokenInvalid    = "TOKEN_INVALID"
	CodeTenantUnknown   = "TENANT_UNKNOWN"
	CodeTenantForbidden = "TENANT_FORBIDDEN"
	CodeBadRequest      = "BAD_REQUEST"
	CodeInternal        = "INTERNAL"
)
