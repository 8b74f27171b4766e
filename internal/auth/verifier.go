package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Typed verification failures surfaced to realtime sessions.
var (
	ErrTokenMissing = errors.New("token missing")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// Principal is the authenticated identity carried by a verified token.
type Principal struct {
	Subject string `json:"subject"`
	Name    string `json:"name,omitempty"`
	Branch  string `json:"branch,omitempty"`
	Role    string `json:"role,omitempty"`
}

// Verifier is the consumed credential-verification contract.
type Verifier interface {
	Verify(token string) (Principal, error)
}

// JWTVerifier verifies HS256 tokens against a shared secret with issuer and
// audience checks.
type JWTVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewJWTVerifier constructs a JWTVerifier.
func NewJWTVerifier(secret, issuer, audience string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

// Verify parses and validates the token, returning the principal claims.
// A "Bearer " prefix is tolerated.
func (v *JWTVerifier) Verify(token string) (Principal, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return Principal{}, ErrTokenMissing
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return v.secret, nil
	},
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrTokenExpired
		}
		return Principal{}, ErrTokenInvalid
	}
	if !parsed.Valid {
		return Principal{}, ErrTokenInvalid
	}

	principal := Principal{
		Subject: claimString(claims, "sub"),
		Name:    claimString(claims, "name"),
		Branch:  claimString(claims, "branch"),
		Role:    claimString(claims, "role"),
	}
	if principal.Subject == "" {
		principal.Subject = claimString(claims, "user_id")
	}
	if principal.Subject == "" {
		return Principal{}, ErrTokenInvalid
	}
	return principal, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key].(string); ok {
		return val
	}
	return ""
}

// IssueToken signs a token for the principal. Used by operator tooling and
// tests; the gateway itself only verifies.
func IssueToken(p Principal, secret, issuer, audience string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": p.Subject,
		"iss": issuer,
		"aud": audience,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if p.Name != "" {
		claims["name"] = p.Name
	}
	if p.Branch != "" {
		claims["branch"] = p.Branch
	}
	if p.Role != "" {
		claims["role"] = p.Role
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
