package whatsapp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookDecode(t *testing.T) {
	raw := `{
        "object": "whatsapp_business_account",
        "entry": [{
            "id": "123",
            "changes": [{
                "field": "messages",
                "value": {
                    "messaging_product": "whatsapp",
                    "metadata": {"display_phone_number": "15550001111", "phone_number_id": "987"},
                    "contacts": [{"profile": {"name": "Ada"}, "wa_id": "491700000001"}],
                    "messages": [{
                        "from": "491700000001",
                        "id": "wamid.abc",
                        "timestamp": "1700000000",
                        "type": "image",
                        "image": {"id": "media-1", "mime_type": "image/jpeg", "sha256": "digest", "caption": "receipt"}
                    }]
                }
            }]
        }]
    }`

	var payload Webhook
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	require.Len(t, payload.Entry, 1)
	require.Len(t, payload.Entry[0].Changes, 1)

	change := payload.Entry[0].Changes[0]
	assert.Equal(t, FieldMessages, change.Field)
	assert.Equal(t, "987", change.Value.Metadata.PhoneNumberID)
	require.Len(t, change.Value.Messages, 1)

	msg := change.Value.Messages[0]
	assert.Equal(t, "wamid.abc", msg.ID)
	require.NotNil(t, msg.MediaRef())
	assert.Equal(t, "media-1", msg.MediaRef().ID)
	assert.Equal(t, "receipt", msg.MediaRef().Caption)
}

func TestMediaRefPerType(t *testing.T) {
	media := &Media{ID: "m"}

	assert.Equal(t, media, Message{Type: "image", Image: media}.MediaRef())
	assert.Equal(t, media, Message{Type: "audio", Audio: media}.MediaRef())
	assert.Equal(t, media, Message{Type: "document", Document: media}.MediaRef())
	assert.Equal(t, media, Message{Type: "video", Video: media}.MediaRef())
	assert.Equal(t, media, Message{Type: "sticker", Sticker: media}.MediaRef())
	assert.Nil(t, Message{Type: "text"}.MediaRef())
}

func TestStatusDecode(t *testing.T) {
	raw := `{"id": "wamid.out", "status": "delivered", "timestamp": "1700000001", "recipient_id": "491700000001"}`

	var status Status
	require.NoError(t, json.Unmarshal([]byte(raw), &status))
	assert.Equal(t, "wamid.out", status.ID)
	assert.Equal(t, "delivered", status.Status)
}
