// ABOUTME: Tests for per-browser console state and the login throttle
// ABOUTME: Covers queued navigation, view reset, toggles, held credentials and rate limits

package webadmin

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/keyconsole/internal/auth"
	"github.com/2389/keyconsole/internal/backend"
)

func TestPendingNav(t *testing.T) {
	var nav pendingNav
	assert.Equal(t, "/fallback", nav.Take("/fallback"))

	nav.Navigate("/login")
	nav.Navigate("/")
	assert.Equal(t, "/", nav.Take("/login"), "last navigation wins")
	assert.Equal(t, "/login", nav.Take("/login"), "take clears the pending path")
}

func TestClient_ResetView(t *testing.T) {
	fb := &fakeBackend{keys: seededKeys()}
	c := newClient("c1", fb, 0, testDiscardLogger())

	assert.True(t, c.firstLicenseVisit())
	assert.False(t, c.firstLicenseVisit())

	before := c.workflow()
	before.OpenDialog()
	c.dismissBanner()
	require.False(t, c.bannerVisible())

	c.resetView()

	assert.NotSame(t, before, c.workflow())
	assert.False(t, c.workflow().Snapshot("", "").DialogOpen)
	assert.True(t, c.firstLicenseVisit())
	assert.True(t, c.bannerVisible())
}

func TestClient_Toggles(t *testing.T) {
	c := newClient("c1", &fakeBackend{}, 0, testDiscardLogger())

	state := c.toggleState()
	assert.True(t, state[ToggleTwoFactor])
	assert.False(t, state[ToggleIPRestriction])
	assert.False(t, state[ToggleLoginAlerts])

	require.True(t, c.flipToggle(ToggleTwoFactor))
	assert.False(t, c.toggleState()[ToggleTwoFactor])
	assert.False(t, c.flipToggle("unknown"))

	// The returned map is a copy
	state = c.toggleState()
	state[ToggleLoginAlerts] = true
	assert.False(t, c.toggleState()[ToggleLoginAlerts])
}

func TestClient_HeldCredentials(t *testing.T) {
	c := newClient("c1", &fakeBackend{}, 0, testDiscardLogger())

	_, _, ok := c.heldCredentials()
	assert.False(t, ok)

	c.holdCredentials(testEmail, testPassword)
	email, password, ok := c.heldCredentials()
	assert.True(t, ok)
	assert.Equal(t, testEmail, email)
	assert.Equal(t, testPassword, password)

	c.clearCredentials()
	_, _, ok = c.heldCredentials()
	assert.False(t, ok)
}

func TestClient_SessionStartsLoading(t *testing.T) {
	c := newClient("c1", &fakeBackend{valid: true}, 0, testDiscardLogger())
	assert.True(t, c.session.Loading())
	assert.Equal(t, backend.Token(""), c.session.Token())
}

func TestLoginLimiter(t *testing.T) {
	l := newLoginLimiter(0.001, 2)
	defer l.Close()

	a := httptest.NewRequest("POST", "/login", nil)
	a.RemoteAddr = "10.0.0.1:1234"
	b := httptest.NewRequest("POST", "/login", nil)
	b.RemoteAddr = "10.0.0.2:5678"

	assert.True(t, l.Allow(a))
	assert.True(t, l.Allow(a))
	assert.False(t, l.Allow(a), "burst exhausted")
	assert.True(t, l.Allow(b), "other addresses are unaffected")

	// Same host, different port shares the bucket
	a2 := httptest.NewRequest("POST", "/login", nil)
	a2.RemoteAddr = "10.0.0.1:9999"
	assert.False(t, l.Allow(a2))
}

func TestLoginLimiter_Disabled(t *testing.T) {
	l := newLoginLimiter(0, 0)
	defer l.Close()

	r := httptest.NewRequest("POST", "/login", nil)
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow(r))
	}
}

func TestClientLogsCarryOneComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tokens, err := auth.NewClientTokens([]byte("webadmin-test-secret"))
	require.NoError(t, err)

	fb := &fakeBackend{loginErr: &backend.APIError{Op: "login", StatusCode: 401, Message: "nope"}}
	a := New(Options{Backend: fb, Tokens: tokens, Logger: logger})

	c := a.resolveClient(httptest.NewRecorder(), httptest.NewRequest("GET", "/login", nil))
	require.Error(t, c.session.Login(context.Background(), "a@b.c", "pw", ""))
	a.Close()

	var sawSession bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.LessOrEqual(t, strings.Count(line, `"component"`), 1, line)
		if strings.Contains(line, `"component":"session"`) {
			sawSession = true
			assert.Contains(t, line, `"client":"`+c.id+`"`)
		}
	}
	assert.True(t, sawSession)
}
