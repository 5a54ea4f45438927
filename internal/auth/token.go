// ABOUTME: Signed console client tokens carried in the browser cookie
// ABOUTME: HS256 JWTs whose signing key is derived from the configured secret with HKDF

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

const (
	keyInfo   = "keyconsole client cookie v1"
	keyLength = 32
	issuer    = "keyconsole"
)

// ClientTokens issues and verifies console client tokens. The subject is
// the client ID that keys the in-memory client registry.
type ClientTokens struct {
	key []byte
	now func() time.Time
}

// NewClientTokens derives the signing key from secret
func NewClientTokens(secret []byte) (*ClientTokens, error) {
	if len(secret) == 0 {
		return nil, errors.New("secret required")
	}

	key := make([]byte, keyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("deriving signing key: %w", err)
	}

	return &ClientTokens{key: key, now: time.Now}, nil
}

// RandomSecret returns a fresh secret for when none is configured. Tokens
// signed with it do not survive a restart.
func RandomSecret() ([]byte, error) {
	secret := make([]byte, keyLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating secret: %w", err)
	}
	return secret, nil
}

// Issue creates a token for clientID that expires after ttl
func (c *ClientTokens) Issue(clientID string, ttl time.Duration) (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		Subject:   clientID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.key)
}

// Verify validates the token and returns the client ID from the "sub" claim
func (c *ClientTokens) Verify(tokenString string) (clientID string, err error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(c.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return claims.Subject, nil
}
