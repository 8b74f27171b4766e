package whatsapp

import "encoding/json"

// Webhook is the top-level inbound payload from the platform.
type Webhook struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the changes for one business account.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change carries one field update. Unrecognized fields are ignored upstream.
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// Change fields the pipeline dispatches on.
const (
	FieldMessages             = "messages"
	FieldTemplateStatusUpdate = "message_template_status_update"
	FieldAccountUpdate        = "account_update"
)

// ChangeValue holds inbound messages and status updates.
type ChangeValue struct {
	MessagingProduct string    `json:"messaging_product"`
	Metadata         Metadata  `json:"metadata"`
	Contacts         []Contact `json:"contacts,omitempty"`
	Messages         []Message `json:"messages,omitempty"`
	Statuses         []Status  `json:"statuses,omitempty"`
}

// Metadata identifies the tenant's number the traffic belongs to.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Contact is the sender's profile information.
type Contact struct {
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
	WaID string `json:"wa_id"`
}

// Message is one inbound message in its provider-specific shape.
type Message struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`

	Text        *TextBody        `json:"text,omitempty"`
	Image       *Media           `json:"image,omitempty"`
	Audio       *Media           `json:"audio,omitempty"`
	Document    *Media           `json:"document,omitempty"`
	Video       *Media           `json:"video,omitempty"`
	Sticker     *Media           `json:"sticker,omitempty"`
	Location    *Location        `json:"location,omitempty"`
	Contacts    []ContactMessage `json:"contacts,omitempty"`
	Interactive *Interactive     `json:"interactive,omitempty"`
	Button      *Button          `json:"button,omitempty"`
	Reaction    *Reaction        `json:"reaction,omitempty"`

	Errors []Error `json:"errors,omitempty"`
}

// MediaRef returns the media descriptor for media-carrying types.
func (m Message) MediaRef() *Media {
	switch m.Type {
	case "image":
		return m.Image
	case "audio":
		return m.Audio
	case "document":
		return m.Document
	case "video":
		return m.Video
	case "sticker":
		return m.Sticker
	}
	return nil
}

// TextBody is the text content.
type TextBody struct {
	Body string `json:"body"`
}

// Media is the provider-side attachment descriptor.
type Media struct {
	ID       string `json:"id"`
	MIMEType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	Caption  string `json:"caption,omitempty"`
}

// Location is a shared position.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// Interactive is a list or button reply.
type Interactive struct {
	Type      string `json:"type"`
	ListReply *struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description,omitempty"`
	} `json:"list_reply,omitempty"`
	ButtonReply *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"button_reply,omitempty"`
}

// Button is a quick-reply button press.
type Button struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// Reaction is an emoji reaction.
type Reaction struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// ContactMessage is a shared contact card.
type ContactMessage struct {
	Name struct {
		FormattedName string `json:"formatted_name"`
	} `json:"name"`
	Phones []struct {
		Phone string `json:"phone"`
		WaID  string `json:"wa_id,omitempty"`
	} `json:"phones,omitempty"`
	Org *struct {
		Company string `json:"company,omitempty"`
	} `json:"org,omitempty"`
}

// Status is a delivery status update for an earlier outbound message.
type Status struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	Timestamp   string  `json:"timestamp"`
	RecipientID string  `json:"recipient_id"`
	Errors      []Error `json:"errors,omitempty"`
}

// Error is the platform's error detail shape.
type Error struct {
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
}

// RawMessage re-marshals the provider message for raw-payload backup.
func (m Message) RawMessage() json.RawMessage {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return raw
}
