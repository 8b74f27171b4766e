package models

import "time"

// TenantIdentity is the result of resolving connection metadata against the
// static tenant table. Unknown callers resolve to an identity with
// Known=false rather than an error; they may be logged but never written for.
type TenantIdentity struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Host         string `json:"host"`
	Subdomain    string `json:"subdomain,omitempty"`
	SchemaName   string `json:"-"`
	Active       bool   `json:"active"`
	Known        bool   `json:"known"`
	OriginalHost string `json:"original_host,omitempty"`
	UserAgent    string `json:"-"`
	ClientIP     string `json:"-"`
}

// TenantSecrets is the dynamic credential pair fetched from the tenant's
// configuration schema and cached with a TTL.
type TenantSecrets struct {
	AccessToken string
	VerifyToken string
	RefreshedAt time.Time
}
