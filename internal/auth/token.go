// Package auth verifies bearer tokens. Tokens are issued elsewhere; this
// service only checks the HMAC and expiry and extracts the caller identity.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hashridge/hostbill/internal/authcontext"
	"github.com/hashridge/hostbill/internal/clock"
)

var (
	ErrInvalidToken = errors.New("invalid_token")
	ErrTokenExpired = errors.New("token_expired")
)

// Claims is the signed token payload.
type Claims struct {
	Subject   string `json:"sub"`
	Role      string `json:"role"`
	ExpiresAt int64  `json:"exp"`
}

// Verifier turns a bearer token into a caller identity.
type Verifier interface {
	Verify(token string) (authcontext.Identity, error)
}

type HMACVerifier struct {
	secret []byte
	clock  clock.Clock
}

func NewHMACVerifier(secret string, clk clock.Clock) *HMACVerifier {
	return &HMACVerifier{secret: []byte(strings.TrimSpace(secret)), clock: clk}
}

func (v *HMACVerifier) Verify(token string) (authcontext.Identity, error) {
	// An unconfigured secret rejects everything rather than trusting
	// unsigned tokens.
	if len(v.secret) == 0 {
		return authcontext.Identity{}, ErrInvalidToken
	}

	payload, signature, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || payload == "" || signature == "" {
		return authcontext.Identity{}, ErrInvalidToken
	}

	rawSig, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return authcontext.Identity{}, ErrInvalidToken
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(payload))
	if !hmac.Equal(mac.Sum(nil), rawSig) {
		return authcontext.Identity{}, ErrInvalidToken
	}

	rawClaims, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return authcontext.Identity{}, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(rawClaims, &claims); err != nil {
		return authcontext.Identity{}, ErrInvalidToken
	}

	if claims.ExpiresAt > 0 && !v.clock.Now().Before(time.Unix(claims.ExpiresAt, 0)) {
		return authcontext.Identity{}, ErrTokenExpired
	}

	userID, err := snowflake.ParseString(claims.Subject)
	if err != nil || userID == 0 {
		return authcontext.Identity{}, ErrInvalidToken
	}
	role := authcontext.Role(strings.ToLower(strings.TrimSpace(claims.Role)))
	switch role {
	case authcontext.RoleAdmin, authcontext.RoleManager, authcontext.RoleClient:
	default:
		return authcontext.Identity{}, ErrInvalidToken
	}

	return authcontext.Identity{UserID: userID, Role: role}, nil
}

// Sign mints a token for the given claims. Kept alongside Verify so
// operator tooling and tests produce tokens the verifier accepts.
func Sign(secret string, claims Claims) (string, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return "", ErrInvalidToken
	}
	raw, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	payload := base64.RawURLEncoding.EncodeToString(raw)
	mac := hmac.New(sha256.New, []byte(trimmed))
	mac.Write([]byte(payload))
	return payload + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}
