package media

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"wa-gateway/internal/models"
	"wa-gateway/internal/observability"
	"wa-gateway/internal/repositories"
	"wa-gateway/internal/whatsapp"
)

// ErrIntegrity is the terminal digest-mismatch failure. Nothing is uploaded
// or written when it fires.
var ErrIntegrity = errors.New("media integrity check failed")

// UploadResult is what the blob store hands back for stored bytes.
type UploadResult struct {
	StorageID string
	PublicURL string
}

// BlobStore is the consumed blob storage contract.
type BlobStore interface {
	Upload(ctx context.Context, data []byte, mimeType, folder string) (UploadResult, error)
	Delete(ctx context.Context, storageID string) (bool, error)
}

// SecretSource provides tenant access credentials for platform API calls.
type SecretSource interface {
	FetchSecrets(ctx context.Context, tenantID string) (*models.TenantSecrets, error)
}

// Notifier receives the enrichment broadcast.
type Notifier interface {
	BroadcastMediaProcessed(tenantID string, result models.MediaResult)
}

// Job is one enrichment unit, scoped to a single message.
type Job struct {
	MessageID string
	TenantID  string
	ChatID    string
	Media     models.MediaAttachment
	Folder    string
}

// Enricher downloads, verifies and relocates attachments off the ingestion
// path. Failures are terminal per job; the enricher schedules no retries.
type Enricher struct {
	api      whatsapp.MediaAPI
	blobs    BlobStore
	messages repositories.MessageRepository
	secrets  SecretSource
	notifier Notifier
	folder   string
	sem      *semaphore.Weighted
	timeout  time.Duration
	log      zerolog.Logger
}

// NewEnricher constructs an enricher with a bounded worker pool.
func NewEnricher(api whatsapp.MediaAPI, blobs BlobStore, messages repositories.MessageRepository, secrets SecretSource, notifier Notifier, folder string, concurrency int64, log zerolog.Logger) *Enricher {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Enricher{
		api:      api,
		blobs:    blobs,
		messages: messages,
		secrets:  secrets,
		notifier: notifier,
		folder:   folder,
		sem:      semaphore.NewWeighted(concurrency),
		timeout:  2 * time.Minute,
		log:      log.With().Str("component", "media_enricher").Logger(),
	}
}

// Enqueue schedules the job and returns immediately. The result is observed
// only through the persistence and broadcast side effects. Enrichment is not
// cancellable once started: results are conversation-scoped, not tied to any
// session.
func (e *Enricher) Enqueue(job Job) {
	go func() {
		ctx := context.Background()
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer e.sem.Release(1)

		ctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		e.process(ctx, job)
	}()
}

// Enrich runs the job synchronously. Exposed for callers that manage their
// own scheduling; Enqueue is the normal entry point.
func (e *Enricher) Enrich(ctx context.Context, job Job) {
	e.process(ctx, job)
}

func (e *Enricher) process(ctx context.Context, job Job) {
	log := e.log.With().
		Str("message_id", job.MessageID).
		Str("tenant", job.TenantID).
		Str("media_id", job.Media.ProviderID).
		Logger()

	result, err := e.enrich(ctx, job)
	if err != nil {
		log.Warn().Err(err).Msg("media enrichment failed")
		observability.IncMediaEnrichment("error")
		if writeErr := e.messages.SetMediaError(ctx, job.MessageID, err.Error()); writeErr != nil {
			log.Error().Err(writeErr).Msg("media error writeback failed")
		}
		return
	}

	observability.IncMediaEnrichment("processed")
	log.Info().Str("public_url", result.PublicURL).Msg("media processed")
	e.notifier.BroadcastMediaProcessed(job.TenantID, models.MediaResult{
		MessageID: job.MessageID,
		ChatID:    job.ChatID,
		Status:    models.MediaProcessed,
		PublicURL: result.PublicURL,
	})
}

func (e *Enricher) enrich(ctx context.Context, job Job) (UploadResult, error) {
	secrets, err := e.secrets.FetchSecrets(ctx, job.TenantID)
	if err != nil {
		return UploadResult{}, fmt.Errorf("fetch secrets: %w", err)
	}
	if secrets == nil || secrets.AccessToken == "" {
		return UploadResult{}, fmt.Errorf("no access credential for tenant %s", job.TenantID)
	}

	url, err := e.api.ResolveDownloadURL(ctx, job.Media.ProviderID, secrets.AccessToken)
	if err != nil {
		return UploadResult{}, err
	}

	data, err := e.api.Download(ctx, url, secrets.AccessToken)
	if err != nil {
		return UploadResult{}, err
	}

	if err := verifyDigest(data, job.Media.SHA256); err != nil {
		return UploadResult{}, err
	}

	folder := e.folder
	if job.Folder != "" {
		folder = job.Folder
	}
	upload, err := e.blobs.Upload(ctx, data, job.Media.MIMEType, folder)
	if err != nil {
		return UploadResult{}, fmt.Errorf("blob upload: %w", err)
	}

	if err := e.messages.SetMediaProcessed(ctx, job.MessageID, upload.PublicURL, upload.StorageID, int64(len(data))); err != nil {
		// The record moved to a terminal state first; the stored bytes would
		// be unreferenced, so drop them.
		if _, delErr := e.blobs.Delete(ctx, upload.StorageID); delErr != nil {
			e.log.Warn().Err(delErr).Str("storage_id", upload.StorageID).Msg("orphan blob cleanup failed")
		}
		return UploadResult{}, fmt.Errorf("media writeback: %w", err)
	}

	return upload, nil
}

// verifyDigest compares sha256(data) against the platform-declared digest.
// The platform sends base64; hex is accepted as well.
func verifyDigest(data []byte, declared string) error {
	if declared == "" {
		return nil
	}
	sum := sha256.Sum256(data)
	if base64.StdEncoding.EncodeToString(sum[:]) == declared {
		return nil
	}
	if strings.EqualFold(hex.EncodeToString(sum[:]), declared) {
		return nil
	}
	return ErrIntegrity
}
