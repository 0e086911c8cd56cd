// Package auth issues and validates tenant-scoped bearer tokens for the
// entity kernel's HTTP API.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dot-do/entitykernel/infrastructure/cache"
)

// Claims carries the tenant id a token authorizes requests against, plus a
// caller role used by rate limiting and security logging.
type Claims struct {
	Tenant string `json:"tenant"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Manager issues and validates HS256 bearer tokens scoped to one tenant.
// Verified claims are cached by token hash until the token expires, so the
// signature is checked once per token rather than once per request.
type Manager struct {
	secret []byte
	expiry time.Duration
	seen   *cache.TokenCache
}

// NewManager returns a token manager signing with secret and defaulting new
// tokens to expiry (0 selects a 15-minute default).
func NewManager(secret string, expiry time.Duration) *Manager {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &Manager{
		secret: []byte(secret),
		expiry: expiry,
		seen:   cache.NewTokenCache(cache.DefaultConfig()),
	}
}

func tokenHash(tokenString string) string {
	sum := sha256.Sum256([]byte(tokenString))
	return hex.EncodeToString(sum[:])
}

// Issue mints a bearer token authorizing tenant with the given role.
func (m *Manager) Issue(tenant, role string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Tenant: tenant,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "entitykernel",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Validate parses and verifies tokenString, returning the tenant and role it
// authorizes.
func (m *Manager) Validate(tokenString string) (*Claims, error) {
	key := tokenHash(tokenString)
	if cached, ok := m.seen.GetToken(key); ok {
		if claims, ok := cached.(*Claims); ok {
			return claims, nil
		}
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Tenant == "" {
		return nil, fmt.Errorf("token missing tenant claim")
	}

	if claims.ExpiresAt != nil {
		if ttl := time.Until(claims.ExpiresAt.Time); ttl > 0 {
			m.seen.SetToken(key, claims, ttl)
		}
	}
	return claims, nil
}
