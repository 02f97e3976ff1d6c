// Package agents implements the C6 agent fleet: registration, hashed-API-key
// plus short-lived-JWT authentication, heartbeat liveness, and tag-based
// group routing for remote worker processes (§4.6).
package agents

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/synqx/core/internal/apperrors"
)

// apiKeyByteLength is the size of the random secret handed to an agent at
// registration time, before hex-encoding.
const apiKeyByteLength = 32

// DefaultTokenTTL is the lifetime of the convenience bearer token minted by
// Service.Authenticate and re-minted on every Service.Heartbeat (§4.6
// "SynqX-specific hardening"); registration itself mints no token.
const DefaultTokenTTL = 15 * time.Minute

// generateAPIKey returns a new random hex-encoded secret and its SHA-256
// hash (only the hash is ever persisted, per §4.6 Registration).
func generateAPIKey() (plaintext, hashed string, err error) {
	buf := make([]byte, apiKeyByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("agents: generate api key: %w", err)
	}
	plaintext = hex.EncodeToString(buf)
	return plaintext, HashAPIKey(plaintext), nil
}

// HashAPIKey returns the SHA-256 hex digest of an API key, the form
// persisted alongside an Agent record.
func HashAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// VerifyAPIKey reports whether plaintext hashes to hashed, comparing in
// constant time per §4.6 Authentication.
func VerifyAPIKey(plaintext, hashed string) bool {
	candidate := HashAPIKey(plaintext)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(hashed)) == 1
}

// claims is the JWT payload minted for an authenticated agent.
type claims struct {
	AgentID  string `json:"agent_id"`
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies the short-lived convenience bearer tokens
// agents use between raw-API-key exchanges (§4.6). The static API key
// remains the source of truth; this token only saves agents from resending
// it on every lease/progress/complete call.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer builds a TokenIssuer signing with secret (HMAC-SHA256);
// ttl defaults to DefaultTokenTTL when zero.
func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: secret, ttl: ttl}
}

// Issue mints a bearer token for agentID/clientID.
func (i *TokenIssuer) Issue(agentID, clientID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		AgentID:  agentID,
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			Issuer:    "synqx-control-plane",
			Subject:   clientID,
		},
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("agents: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates token, returning the agent/client id pair it
// was issued for.
func (i *TokenIssuer) Verify(token string) (agentID, clientID string, err error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", "", apperrors.Authentication("invalid or expired agent token")
	}
	c, ok := parsed.Claims.(*claims)
	if !ok {
		return "", "", apperrors.Authentication("invalid agent token claims")
	}
	return c.AgentID, c.ClientID, nil
}
