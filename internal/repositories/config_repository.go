package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"

	"wa-gateway/internal/models"
)

var (
	// ErrNoActiveConfig signals an empty result, which callers cache as
	// absence rather than retrying on every lookup.
	ErrNoActiveConfig = errors.New("no active tenant configuration")
	// ErrInvalidSchemaName is a programming-invariant violation: the schema
	// name came from tenant configuration and must match the allow-list.
	ErrInvalidSchemaName = errors.New("invalid tenant schema name")
)

// Schema names are interpolated into SQL and therefore restricted to a strict
// allow-list.
var schemaNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ConfigRepository reads dynamic tenant credentials from the authoritative
// relational store.
type ConfigRepository interface {
	FetchActiveConfig(ctx context.Context, schemaName string) (models.TenantSecrets, error)
}

// ConfigRepo is a sqlx implementation of ConfigRepository.
type ConfigRepo struct {
	db *sqlx.DB
}

// NewConfigRepo constructs a ConfigRepo.
func NewConfigRepo(db *sqlx.DB) *ConfigRepo {
	return &ConfigRepo{db: db}
}

// FetchActiveConfig returns the active credential pair from the tenant's
// configuration schema.
func (r *ConfigRepo) FetchActiveConfig(ctx context.Context, schemaName string) (models.TenantSecrets, error) {
	if !schemaNamePattern.MatchString(schemaName) {
		return models.TenantSecrets{}, fmt.Errorf("%w: %q", ErrInvalidSchemaName, schemaName)
	}

	var row struct {
		AccessToken string `db:"access_token"`
		VerifyToken string `db:"verify_token"`
	}
	query := fmt.Sprintf(
		`SELECT access_token, verify_token FROM %s.tenant_config WHERE active = TRUE LIMIT 1`,
		schemaName)
	err := r.db.GetContext(ctx, &row, query)
	if errors.Is(err, sql.ErrNoRows) {
		return models.TenantSecrets{}, ErrNoActiveConfig
	}
	if err != nil {
		return models.TenantSecrets{}, err
	}
	return models.TenantSecrets{AccessToken: row.AccessToken, VerifyToken: row.VerifyToken}, nil
}
