package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"wa-gateway/internal/config"
	"wa-gateway/internal/mocks"
	"wa-gateway/internal/models"
	"wa-gateway/internal/telemetry"
	"wa-gateway/internal/tenant"
	"wa-gateway/internal/whatsapp"
)

type ingestorMock struct {
	mock.Mock
}

func (m *ingestorMock) Ingest(ctx context.Context, payload whatsapp.Webhook, identity models.TenantIdentity) {
	m.Called(ctx, payload, identity)
}

func newTestDirectory(configs *mocks.ConfigRepositoryMock) *tenant.Directory {
	tenants := []config.TenantConfig{
		{ID: "clinic_a", Name: "Clinic A", Host: "clinic-a.example.com", SchemaName: "clinic_a", Active: true},
	}
	return tenant.NewDirectory(tenants, configs, zerolog.Nop())
}

func setupWebhookRouter(handler *WebhookHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/webhook", handler.Verify)
	r.POST("/webhook", handler.Ingest)
	return r
}

func newTestHandler(pipeline Ingestor, configs *mocks.ConfigRepositoryMock, publisher telemetry.Publisher) *WebhookHandler {
	audit := telemetry.NewAuditEmitter(publisher, "gateway.audit", "wa-gateway", "test", zerolog.Nop())
	return NewWebhookHandler(pipeline, newTestDirectory(configs), audit, zerolog.Nop())
}

func TestVerifyEchoesChallenge(t *testing.T) {
	configs := new(mocks.ConfigRepositoryMock)
	handler := newTestHandler(new(ingestorMock), configs, nil)
	router := setupWebhookRouter(handler)

	configs.On("FetchActiveConfig", mock.Anything, "clinic_a").
		Return(models.TenantSecrets{AccessToken: "tok", VerifyToken: "expected"}, nil).Once()

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=expected&hub.challenge=12345", nil)
	req.Host = "clinic-a.example.com"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12345", rec.Body.String())
	configs.AssertExpectations(t)
}

func TestVerifyRejectsWrongToken(t *testing.T) {
	configs := new(mocks.ConfigRepositoryMock)
	handler := newTestHandler(new(ingestorMock), configs, nil)
	router := setupWebhookRouter(handler)

	configs.On("FetchActiveConfig", mock.Anything, "clinic_a").
		Return(models.TenantSecrets{VerifyToken: "expected"}, nil).Once()

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	req.Host = "clinic-a.example.com"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestVerifyRejectsUnknownTenant(t *testing.T) {
	handler := newTestHandler(new(ingestorMock), new(mocks.ConfigRepositoryMock), nil)
	router := setupWebhookRouter(handler)

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=expected&hub.challenge=12345", nil)
	req.Host = "somewhere-else.example.net"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestVerifyRejectsWrongMode(t *testing.T) {
	handler := newTestHandler(new(ingestorMock), new(mocks.ConfigRepositoryMock), nil)
	router := setupWebhookRouter(handler)

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=unsubscribe&hub.verify_token=expected&hub.challenge=12345", nil)
	req.Host = "clinic-a.example.com"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestIngestDispatchesToPipeline(t *testing.T) {
	pipeline := new(ingestorMock)
	publisher := new(mocks.PublisherMock)
	handler := newTestHandler(pipeline, new(mocks.ConfigRepositoryMock), publisher)
	router := setupWebhookRouter(handler)

	pipeline.On("Ingest", mock.Anything, mock.MatchedBy(func(p whatsapp.Webhook) bool {
		return len(p.Entry) == 1
	}), mock.MatchedBy(func(identity models.TenantIdentity) bool {
		return identity.ID == "clinic_a" && identity.Known
	})).Once()
	publisher.On("Publish", mock.Anything, "gateway.audit", mock.Anything).Return(nil).Once()

	body := bytes.NewBufferString(`{"object":"whatsapp_business_account","entry":[{"id":"e1","changes":[]}]}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", body)
	req.Host = "clinic-a.example.com"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	pipeline.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestIngestAlwaysAcksMalformedBody(t *testing.T) {
	pipeline := new(ingestorMock)
	handler := newTestHandler(pipeline, new(mocks.ConfigRepositoryMock), nil)
	router := setupWebhookRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString("{not json"))
	req.Host = "clinic-a.example.com"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	pipeline.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestDropsUnknownTenantButAcks(t *testing.T) {
	pipeline := new(ingestorMock)
	publisher := new(mocks.PublisherMock)
	handler := newTestHandler(pipeline, new(mocks.ConfigRepositoryMock), publisher)
	router := setupWebhookRouter(handler)

	publisher.On("Publish", mock.Anything, "gateway.audit", mock.Anything).Return(nil).Once()

	body := bytes.NewBufferString(`{"object":"whatsapp_business_account","entry":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", body)
	req.Host = "intruder.example.net"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	pipeline.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything, mock.Anything)
	publisher.AssertExpectations(t)
}
