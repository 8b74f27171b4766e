package tenant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wa-gateway/internal/config"
	"wa-gateway/internal/models"
	"wa-gateway/internal/repositories"
)

// SecretTTL bounds how long cached tenant credentials are served before the
// authoritative store is consulted again.
const SecretTTL = 5 * time.Minute

// Directory resolves tenant identities from connection metadata and caches
// their dynamic credentials. One instance lives for the whole process and is
// handed to collaborators at startup.
type Directory struct {
	tenants []config.TenantConfig
	configs repositories.ConfigRepository
	log     zerolog.Logger
	ttl     time.Duration

	mu    sync.RWMutex
	cache map[string]secretEntry
}

// secretEntry caches a credential pair, or its confirmed absence when
// secrets is nil, until the TTL elapses.
type secretEntry struct {
	secrets   *models.TenantSecrets
	refreshed time.Time
}

// NewDirectory constructs the process-wide tenant directory.
func NewDirectory(tenants []config.TenantConfig, configs repositories.ConfigRepository, log zerolog.Logger) *Directory {
	return &Directory{
		tenants: tenants,
		configs: configs,
		log:     log.With().Str("component", "tenant_directory").Logger(),
		ttl:     SecretTTL,
		cache:   make(map[string]secretEntry),
	}
}

// RequestMeta is the connection metadata a tenant is resolved from. It is
// matching input only; no trust decision is taken beyond pattern matching.
type RequestMeta struct {
	Host      string
	Origin    string
	UserAgent string
	ClientIP  string
}

// Resolve matches the host header against configured tenant hosts, falling
// back to the origin header. Unmatched metadata yields an unknown identity
// rather than an error; unknown tenants are safe to log but unauthorized to
// write.
func (d *Directory) Resolve(meta RequestMeta) models.TenantIdentity {
	identity := models.TenantIdentity{
		ID:           "unknown",
		Name:         "unknown",
		Host:         meta.Host,
		Known:        false,
		Active:       false,
		OriginalHost: meta.Host,
		UserAgent:    meta.UserAgent,
		ClientIP:     meta.ClientIP,
	}

	if t, ok := d.matchHost(meta.Host); ok {
		return d.identityFor(t, meta)
	}
	if t, ok := d.matchHost(meta.Origin); ok {
		return d.identityFor(t, meta)
	}

	d.log.Debug().Str("host", meta.Host).Str("origin", meta.Origin).Msg("unknown tenant")
	return identity
}

func (d *Directory) matchHost(value string) (config.TenantConfig, bool) {
	if value == "" {
		return config.TenantConfig{}, false
	}
	for _, t := range d.tenants {
		if strings.Contains(value, t.Host) {
			return t, true
		}
	}
	return config.TenantConfig{}, false
}

func (d *Directory) identityFor(t config.TenantConfig, meta RequestMeta) models.TenantIdentity {
	return models.TenantIdentity{
		ID:           t.ID,
		Name:         t.Name,
		Host:         t.Host,
		Subdomain:    t.Subdomain,
		SchemaName:   t.SchemaName,
		Active:       t.Active,
		Known:        true,
		OriginalHost: meta.Host,
		UserAgent:    meta.UserAgent,
		ClientIP:     meta.ClientIP,
	}
}

// ErrUnknownTenant is returned by FetchSecrets for ids outside the static
// tenant table.
var ErrUnknownTenant = errors.New("unknown tenant")

// FetchSecrets returns the tenant's credential pair, serving from the cache
// until the TTL elapses. A confirmed-empty result is cached as absence so the
// store is not hammered on every call; concurrent misses may refresh
// redundantly, last writer wins.
func (d *Directory) FetchSecrets(ctx context.Context, tenantID string) (*models.TenantSecrets, error) {
	t, ok := d.tenantByID(tenantID)
	if !ok {
		return nil, ErrUnknownTenant
	}

	d.mu.RLock()
	entry, cached := d.cache[tenantID]
	d.mu.RUnlock()
	if cached && time.Since(entry.refreshed) < d.ttl {
		return entry.secrets, nil
	}

	secrets, err := d.configs.FetchActiveConfig(ctx, t.SchemaName)
	if err != nil {
		if errors.Is(err, repositories.ErrNoActiveConfig) {
			d.store(tenantID, nil)
			return nil, nil
		}
		d.log.Error().Err(err).Str("tenant", tenantID).Msg("config lookup failed")
		return nil, err
	}

	secrets.RefreshedAt = time.Now()
	d.store(tenantID, &secrets)
	return &secrets, nil
}

func (d *Directory) store(tenantID string, secrets *models.TenantSecrets) {
	d.mu.Lock()
	d.cache[tenantID] = secretEntry{secrets: secrets, refreshed: time.Now()}
	d.mu.Unlock()
}

func (d *Directory) tenantByID(tenantID string) (config.TenantConfig, bool) {
	for _, t := range d.tenants {
		if t.ID == tenantID {
			return t, true
		}
	}
	return config.TenantConfig{}, false
}

// CacheStats reports cache size and keys, exposed on the health endpoint.
type CacheStats struct {
	Size    int      `json:"size"`
	Entries []string `json:"entries"`
}

// Stats snapshots the secret cache.
func (d *Directory) Stats() CacheStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	stats := CacheStats{Size: len(d.cache), Entries: make([]string, 0, len(d.cache))}
	for id := range d.cache {
		stats.Entries = append(stats.Entries, id)
	}
	return stats
}
