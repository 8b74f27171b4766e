package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"wa-gateway/internal/models"
	"wa-gateway/internal/observability"
	"wa-gateway/internal/telemetry"
	"wa-gateway/internal/tenant"
	"wa-gateway/internal/whatsapp"
)

// Ingestor consumes one parsed webhook payload for a tenant.
type Ingestor interface {
	Ingest(ctx context.Context, payload whatsapp.Webhook, tenant models.TenantIdentity)
}

// WebhookHandler terminates the platform's webhook traffic.
type WebhookHandler struct {
	pipeline  Ingestor
	directory *tenant.Directory
	audit     *telemetry.AuditEmitter
	log       zerolog.Logger
}

// NewWebhookHandler constructs the handler.
func NewWebhookHandler(pipeline Ingestor, directory *tenant.Directory, audit *telemetry.AuditEmitter, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		pipeline:  pipeline,
		directory: directory,
		audit:     audit,
		log:       log.With().Str("component", "webhook").Logger(),
	}
}

// Verify handles GET /webhook, the platform's subscription handshake. The
// challenge is echoed back only when the mode and the tenant's verify
// credential both match.
func (h *WebhookHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	identity := h.resolve(c)
	log := h.log.With().Str("tenant", identity.ID).Logger()

	if mode != "subscribe" || token == "" {
		log.Warn().Str("mode", mode).Msg("malformed verification request")
		c.String(http.StatusForbidden, "verification failed")
		return
	}

	if !identity.Known || !identity.Active {
		log.Warn().Str("host", identity.OriginalHost).Msg("verification for unknown tenant")
		c.String(http.StatusForbidden, "verification failed")
		return
	}

	secrets, err := h.directory.FetchSecrets(c.Request.Context(), identity.ID)
	if err != nil || secrets == nil || secrets.VerifyToken == "" {
		log.Warn().Err(err).Msg("no verify credential available")
		c.String(http.StatusForbidden, "verification failed")
		return
	}
	if token != secrets.VerifyToken {
		log.Warn().Msg("verify token mismatch")
		c.String(http.StatusForbidden, "verification failed")
		return
	}

	log.Info().Msg("webhook verified")
	c.String(http.StatusOK, challenge)
}

// Ingest handles POST /webhook. The response is 200 no matter what happens
// inside: a non-2xx answer makes the platform redeliver the same payload,
// which the pipeline would only have to deduplicate again.
func (h *WebhookHandler) Ingest(c *gin.Context) {
	identity := h.resolve(c)
	log := h.log.With().
		Str("tenant", identity.ID).
		Str("request_id", observability.RequestIDFromRequest(c.Request)).
		Logger()

	var payload whatsapp.Webhook
	if err := json.NewDecoder(c.Request.Body).Decode(&payload); err != nil {
		log.Warn().Err(err).Msg("undecodable webhook body")
		c.Status(http.StatusOK)
		return
	}

	if !identity.Known {
		log.Warn().Str("host", identity.OriginalHost).Msg("payload for unknown tenant dropped")
		h.audit.Emit(c.Request.Context(), "warn", "webhook for unknown tenant", identity.ID, map[string]any{
			"host": identity.OriginalHost,
			"ip":   identity.ClientIP,
		})
		c.Status(http.StatusOK)
		return
	}

	h.pipeline.Ingest(c.Request.Context(), payload, identity)
	h.audit.Emit(c.Request.Context(), "info", "webhook ingested", identity.ID, map[string]any{
		"entries": len(payload.Entry),
	})
	c.Status(http.StatusOK)
}

func (h *WebhookHandler) resolve(c *gin.Context) models.TenantIdentity {
	return h.directory.Resolve(tenant.RequestMeta{
		Host:      observability.HostFromRequest(c.Request),
		Origin:    c.Request.Header.Get("Origin"),
		UserAgent: c.Request.UserAgent(),
		ClientIP:  observability.IPFromRequest(c.Request),
	})
}
