package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAnon        = "anon"
	RoleServiceRole = "service_role"

	// new-style supabase keys are opaque, not JWTs
	opaqueKeyPrefix = "sb_"
)

var (
	ErrEmptyAPIKey     = errors.New("api key is empty")
	ErrMalformedAPIKey = errors.New("api key is not a valid JWT")
	ErrAPIKeyExpired   = errors.New("api key is expired")
)

// supabaseClaims are the claims carried by legacy project API keys
type supabaseClaims struct {
	Ref  string `json:"ref"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// APIKeyInfo is what can be learned from a project API key without the project secret
type APIKeyInfo struct {
	Opaque    bool
	Role      string
	Ref       string
	Issuer    string
	ExpiresAt time.Time
}

// InspectAPIKey decodes the key claims without verifying the signature.
// The realtime server does the verification; this only catches obviously wrong keys at startup.
func InspectAPIKey(key string, now time.Time) (APIKeyInfo, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return APIKeyInfo{}, ErrEmptyAPIKey
	}
	if strings.HasPrefix(key, opaqueKeyPrefix) {
		return APIKeyInfo{Opaque: true}, nil
	}

	claims := &supabaseClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(key, claims); err != nil {
		return APIKeyInfo{}, fmt.Errorf("%w: %v", ErrMalformedAPIKey, err)
	}

	info := APIKeyInfo{
		Role:   claims.Role,
		Ref:    claims.Ref,
		Issuer: claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
		if !info.ExpiresAt.After(now) {
			return info, fmt.Errorf("%w: expired at %s", ErrAPIKeyExpired, info.ExpiresAt.Format(time.RFC3339))
		}
	}

	return info, nil
}

// Privileged reports whether the key bypasses row level security
func (i APIKeyInfo) Privileged() bool {
	return i.Role == RoleServiceRole
}
