// ABOUTME: Tests for the backend HTTP client against an httptest server
// ABOUTME: Covers token threading, login cookies, alias decoding, errors, and metrics

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *Metrics) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	metrics := NewMetrics(prometheus.NewRegistry())
	c, err := New(Options{AuthURL: srv.URL, Metrics: metrics})
	require.NoError(t, err)
	return c, metrics
}

func TestNew_InvalidURLs(t *testing.T) {
	_, err := New(Options{AuthURL: "ftp://example.com"})
	assert.Error(t, err)

	_, err = New(Options{AuthURL: "http://"})
	assert.Error(t, err)

	_, err = New(Options{AuthURL: "http://auth.example.com", KeysURL: "::bad"})
	assert.Error(t, err)
}

func TestNew_SeparateKeysHost(t *testing.T) {
	keysSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathKeysAll, r.URL.Path)
		w.Write([]byte(`[]`))
	}))
	defer keysSrv.Close()

	c, err := New(Options{AuthURL: "http://auth.invalid", KeysURL: keysSrv.URL + "/"})
	require.NoError(t, err)

	keys, err := c.ListKeys(context.Background(), "sid=abc")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestVerify_SendsToken(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, PathVerify, r.URL.Path)
		cookie, err := r.Cookie("sid")
		if err != nil || cookie.Value != "abc" {
			w.Write([]byte(`{"valid": false}`))
			return
		}
		w.Write([]byte(`{"valid": true}`))
	}))

	valid, err := c.Verify(context.Background(), "sid=abc")
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = c.Verify(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestVerify_MalformedBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))

	_, err := c.Verify(context.Background(), "")
	assert.Error(t, err)
}

func TestLogin_CapturesCookies(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, PathLogin, r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "admin@example.com", body["Email"])
		assert.Equal(t, "hunter2hunter2hunter2", body["Password"])
		_, hasMFA := body["mfaToken"]
		assert.False(t, hasMFA, "empty mfa token should be omitted")

		http.SetCookie(w, &http.Cookie{Name: "admin_session", Value: "s3cr3t", Path: "/", HttpOnly: true})
		w.Write([]byte(`{}`))
	}))

	resp, err := c.Login(context.Background(), "", LoginRequest{Email: "admin@example.com", Password: "hunter2hunter2hunter2"})
	require.NoError(t, err)
	assert.False(t, resp.RequiresMFA)
	assert.Equal(t, Token("admin_session=s3cr3t"), resp.Token)
}

func TestLogin_RequiresMFA(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"requiresMfa": true}`))
	}))

	resp, err := c.Login(context.Background(), "", LoginRequest{Email: "a@b.c", Password: "x"})
	require.NoError(t, err)
	assert.True(t, resp.RequiresMFA)
	assert.True(t, resp.Token.IsZero())
}

func TestLogin_ErrorMessage(t *testing.T) {
	c, metrics := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "Invalid credentials"}`))
	}))

	_, err := c.Login(context.Background(), "", LoginRequest{Email: "a@b.c", Password: "x"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid credentials", apiErr.Message)
	assert.Equal(t, "login", apiErr.Op)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues("login", outcomeStatus)))
}

func TestLogout_SendsToken(t *testing.T) {
	var gotCookie string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, PathLogout, r.URL.Path)
		gotCookie = r.Header.Get("Cookie")
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, c.Logout(context.Background(), "admin_session=s3cr3t"))
	assert.Equal(t, "admin_session=s3cr3t", gotCookie)
}

func TestListKeys_AliasTolerant(t *testing.T) {
	c, metrics := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"key": "AAA111", "user": "mentor-1", "bot": "scalper", "status": "Active",
			 "createdAt": "2025-01-01T00:00:00Z", "expiresAt": "2025-02-01T00:00:00Z"},
			{"key": "BBB222", "mentorId": "mentor-2", "botType": "grid", "status": "Revoked",
			 "createdAt": "2025-01-02", "expiresAt": 1767225600000}
		]`))
	}))

	keys, err := c.ListKeys(context.Background(), "sid=abc")
	require.NoError(t, err)
	require.Len(t, keys, 2)

	assert.Equal(t, LicenseKey{
		Key: "AAA111", Owner: "mentor-1", Bot: "scalper", Status: KeyStatusActive,
		CreatedAt: "2025-01-01T00:00:00Z", ExpiresAt: "2025-02-01T00:00:00Z",
	}, keys[0])
	assert.Equal(t, "mentor-2", keys[1].Owner)
	assert.Equal(t, "grid", keys[1].Bot)
	assert.Equal(t, KeyStatusRevoked, keys[1].Status)
	assert.Equal(t, "1767225600000", keys[1].ExpiresAt)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues("list_keys", outcomeOK)))
}

func TestListKeys_NullBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`null`))
	}))

	keys, err := c.ListKeys(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, keys)
	assert.Empty(t, keys)
}

func TestGenerateKey_SendsExpiryCode(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, PathGenerate, r.URL.Path)
		assert.Equal(t, "1m", r.URL.Query().Get("expiry"))
		w.Write([]byte(`{"key": "ABC123", "status": "Active", "createdAt": "2025-03-01", "expiresAt": "2025-04-01"}`))
	}))

	key, err := c.GenerateKey(context.Background(), "sid=abc", ExpiryOneMonth)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", key.Key)
	assert.Equal(t, KeyStatusActive, key.Status)
}

func TestGenerateKey_RejectsUnknownExpiry(t *testing.T) {
	called := false
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	_, err := c.GenerateKey(context.Background(), "", Expiry("2y"))
	assert.ErrorIs(t, err, ErrInvalidExpiry)
	assert.False(t, called, "no request should be sent for an invalid code")
}

func TestRevokeKey_UsesKeyIdentifier(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, PathRevoke, r.URL.Path)
		assert.Equal(t, "KEY/with+chars", r.URL.Query().Get("key"))
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, c.RevokeKey(context.Background(), "sid=abc", "KEY/with+chars"))
	assert.Error(t, c.RevokeKey(context.Background(), "sid=abc", ""))
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Options{AuthURL: url})
	require.NoError(t, err)

	_, err = c.ListKeys(context.Background(), "")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "list_keys:"))

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestToken_WithCookies(t *testing.T) {
	tok := Token("a=1; b=2")

	merged := tok.withCookies([]*http.Cookie{{Name: "b", Value: "3"}, {Name: "c", Value: "4"}})
	assert.Equal(t, Token("a=1; b=3; c=4"), merged)

	cleared := merged.withCookies([]*http.Cookie{{Name: "a", MaxAge: -1}})
	assert.Equal(t, Token("b=3; c=4"), cleared)

	assert.Equal(t, tok, tok.withCookies(nil))
}

func TestParseExpiry(t *testing.T) {
	for _, opt := range ExpiryOptions {
		got, err := ParseExpiry(string(opt.Code))
		require.NoError(t, err)
		assert.Equal(t, opt.Code, got)
	}

	_, err := ParseExpiry("")
	assert.ErrorIs(t, err, ErrInvalidExpiry)
	_, err = ParseExpiry("1d")
	assert.ErrorIs(t, err, ErrInvalidExpiry)
}
