// ABOUTME: Unit tests for console client token signing and verification
// ABOUTME: Tests valid, tampered, foreign, and expired tokens plus context helpers

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestTokens(t *testing.T, secret string) *ClientTokens {
	t.Helper()
	tokens, err := NewClientTokens([]byte(secret))
	if err != nil {
		t.Fatalf("NewClientTokens() error = %v", err)
	}
	return tokens
}

func TestClientTokens_RoundTrip(t *testing.T) {
	tokens := newTestTokens(t, "test-secret-key-for-cookies")

	clientID := "3f1c5e0a-client"
	token, err := tokens.Issue(clientID, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	gotID, err := tokens.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if gotID != clientID {
		t.Errorf("Verify() = %q, want %q", gotID, clientID)
	}
}

func TestClientTokens_EmptySecret(t *testing.T) {
	if _, err := NewClientTokens(nil); err == nil {
		t.Error("NewClientTokens(nil) should fail")
	}
}

func TestClientTokens_InvalidToken(t *testing.T) {
	tokens := newTestTokens(t, "test-secret-key-for-cookies")

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "empty token",
			token: "",
		},
		{
			name:  "garbage token",
			token: "not-a-jwt-token",
		},
		{
			name:  "malformed JWT",
			token: "header.payload.signature",
		},
		{
			name: "wrong secret",
			token: func() string {
				other := newTestTokens(t, "different-secret")
				token, _ := other.Issue("client-1", time.Hour)
				return token
			}(),
		},
		{
			name: "signed with raw secret instead of derived key",
			token: func() string {
				claims := jwt.RegisteredClaims{Subject: "client-1", Issuer: issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
				token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-key-for-cookies"))
				return token
			}(),
		},
		{
			name: "wrong issuer",
			token: func() string {
				claims := jwt.RegisteredClaims{Subject: "client-1", Issuer: "someone-else", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
				token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tokens.key)
				return token
			}(),
		},
		{
			name: "HS512",
			token: func() string {
				claims := jwt.RegisteredClaims{Subject: "client-1", Issuer: issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
				token, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(tokens.key)
				return token
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokens.Verify(tt.token)
			if err == nil {
				t.Fatal("Verify() should have returned an error")
			}
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestClientTokens_MissingSubject(t *testing.T) {
	tokens := newTestTokens(t, "test-secret-key-for-cookies")

	token, err := tokens.Issue("", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = tokens.Verify(token)
	if !errors.Is(err, ErrMissingClaim) {
		t.Errorf("Verify() error = %v, want ErrMissingClaim", err)
	}
}

func TestClientTokens_ExpiredToken(t *testing.T) {
	tokens := newTestTokens(t, "test-secret-key-for-cookies")

	token, err := tokens.Issue("client-1", -time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = tokens.Verify(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

func TestClientTokens_SameSecretSameKey(t *testing.T) {
	a := newTestTokens(t, "shared")
	b := newTestTokens(t, "shared")

	token, err := a.Issue("client-1", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := b.Verify(token); err != nil {
		t.Errorf("token from one instance should verify on another with the same secret: %v", err)
	}
}

func TestRandomSecret(t *testing.T) {
	s1, err := RandomSecret()
	if err != nil {
		t.Fatalf("RandomSecret() error = %v", err)
	}
	s2, _ := RandomSecret()

	if len(s1) != keyLength {
		t.Errorf("len = %d, want %d", len(s1), keyLength)
	}
	if string(s1) == string(s2) {
		t.Error("two random secrets should differ")
	}
}

func TestClientIDContext(t *testing.T) {
	ctx := context.Background()
	if got := ClientIDFromContext(ctx); got != "" {
		t.Errorf("ClientIDFromContext(empty) = %q", got)
	}

	ctx = WithClientID(ctx, "client-9")
	if got := ClientIDFromContext(ctx); got != "client-9" {
		t.Errorf("ClientIDFromContext() = %q, want client-9", got)
	}
}
