// ABOUTME: Tests for the console orchestrator against a fake backend service
// ABOUTME: Covers health, readiness, metrics, and a full login-to-key-list round trip

package console

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/keyconsole/internal/backend"
	"github.com/2389/keyconsole/internal/config"
	"github.com/2389/keyconsole/internal/webadmin"
)

const (
	backendEmail    = "admin@example.com"
	backendPassword = "correct-horse-battery"
)

// newFakeService serves the auth and key endpoints with one fixed admin
func newFakeService(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+backend.PathVerify, func(w http.ResponseWriter, r *http.Request) {
		_, err := r.Cookie("admin_session")
		_ = json.NewEncoder(w).Encode(map[string]bool{"valid": err == nil})
	})
	mux.HandleFunc("POST "+backend.PathLogin, func(w http.ResponseWriter, r *http.Request) {
		var req backend.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
			return
		}
		if req.Email != backendEmail || req.Password != backendPassword {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Invalid credentials"}`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "admin_session", Value: "s3cr3t", Path: "/"})
		_, _ = w.Write([]byte(`{"requiresMfa":false}`))
	})
	mux.HandleFunc("GET "+backend.PathKeysAll, func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("admin_session"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[{"key":"KEY-E2E-0001","mentorId":"mentor-7","botType":"scalper","status":"Active","createdAt":"2026-02-01T00:00:00Z","expiresAt":"2026-03-01T00:00:00Z"}]`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// testConfig creates a minimal config for testing with an available port.
func testConfig(t *testing.T, backendURL string) *config.Config {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	httpAddr := ln.Addr().String()
	require.NoError(t, ln.Close())

	return &config.Config{
		Server:   config.ServerConfig{HTTPAddr: httpAddr},
		Backend:  config.BackendConfig{AuthURL: backendURL, Timeout: 5 * time.Second},
		Auth:     config.AuthConfig{Secret: "console-test-secret"},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "audit.db")},
		Console: config.ConsoleConfig{
			NoticeTimeout: config.DefaultNoticeTimeout,
			ClientTTL:     time.Hour,
			MaxClients:    100,
			LoginRate:     100,
			LoginBurst:    100,
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConsole(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()

	c, err := New(cfg, testLogger())
	require.NoError(t, err)

	srv := httptest.NewServer(c.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = c.Shutdown(context.Background())
	})
	return srv
}

func get(t *testing.T, client *http.Client, target string) (int, string) {
	t.Helper()
	resp, err := client.Get(target)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealth(t *testing.T) {
	srv := newTestConsole(t, testConfig(t, newFakeService(t).URL))

	status, body := get(t, http.DefaultClient, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body)
}

func TestReady(t *testing.T) {
	srv := newTestConsole(t, testConfig(t, newFakeService(t).URL))

	status, body := get(t, http.DefaultClient, srv.URL+"/health/ready")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body)
}

func TestReady_BackendDown(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	srv := newTestConsole(t, testConfig(t, downURL))

	status, body := get(t, http.DefaultClient, srv.URL+"/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, body, "auth service unreachable")
}

func TestReady_BackendErrorStatusCountsAsReachable(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(failing.Close)

	srv := newTestConsole(t, testConfig(t, failing.URL))

	status, _ := get(t, http.DefaultClient, srv.URL+"/health/ready")
	assert.Equal(t, http.StatusOK, status)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestConsole(t, testConfig(t, newFakeService(t).URL))

	// Trigger a backend verify so the backend collectors have a sample
	get(t, http.DefaultClient, srv.URL+"/health/ready")

	status, body := get(t, http.DefaultClient, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "keyconsole_backend_requests_total")
	assert.Contains(t, body, "keyconsole_console_clients")
	assert.Contains(t, body, "go_goroutines")
}

func TestMetricsDisabled(t *testing.T) {
	cfg := testConfig(t, newFakeService(t).URL)
	cfg.Metrics.Enabled = false
	srv := newTestConsole(t, cfg)

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	status, _ := get(t, client, srv.URL+"/metrics")
	assert.NotEqual(t, http.StatusOK, status)
}

func TestLoginRoundTrip(t *testing.T) {
	srv := newTestConsole(t, testConfig(t, newFakeService(t).URL))

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	status, body := get(t, client, srv.URL+"/")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "JAB Admin", "guard should land on the login page")

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	var csrf string
	for _, c := range jar.Cookies(u) {
		if c.Name == webadmin.CSRFCookieName {
			csrf = c.Value
		}
	}
	require.NotEmpty(t, csrf)

	resp, err := client.PostForm(srv.URL+"/login", url.Values{
		"csrf_token": {csrf},
		"email":      {backendEmail},
		"password":   {backendPassword},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	// The client follows the redirect to the shell
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(page), "KEY-E2E-0001")
	assert.Contains(t, string(page), "mentor-7")
	assert.Contains(t, string(page), "scalper")
	assert.True(t, strings.Contains(string(page), "Sign Out"))
}

func TestNew_BadBackendURL(t *testing.T) {
	cfg := testConfig(t, "http://%zz")
	_, err := New(cfg, testLogger())
	assert.Error(t, err)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	cfg := testConfig(t, newFakeService(t).URL)
	c, err := New(cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.Server.HTTPAddr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
