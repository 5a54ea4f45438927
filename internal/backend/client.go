// ABOUTME: HTTP client for the remote auth and license-key services
// ABOUTME: Every call takes an explicit session Token; non-2xx responses become *APIError

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Backend API paths
const (
	PathVerify   = "/api/auth/admin/verify"
	PathLogin    = "/api/auth/admin/login"
	PathLogout   = "/api/auth/admin/logout"
	PathKeysAll  = "/api/keys/all"
	PathGenerate = "/api/keys/generate-key"
	PathRevoke   = "/api/keys/revoke"
)

// maxBodyBytes caps how much of a response body is read
const maxBodyBytes = 1 << 20

// APIError is returned when the backend answers with a non-2xx status
type APIError struct {
	Op         string
	StatusCode int
	// Message is the body's "error" (or "message") field when present
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: backend returned %d", e.Op, e.StatusCode)
}

// Options configures a Client
type Options struct {
	// AuthURL is the base URL of the auth service (verify/login/logout)
	AuthURL string
	// KeysURL is the base URL of the license-key service; defaults to AuthURL
	KeysURL string
	// Timeout bounds each call; zero means no client-side timeout
	Timeout time.Duration
	// HTTPClient overrides the underlying client (tests)
	HTTPClient *http.Client
	Metrics    *Metrics
	Logger     *slog.Logger
}

// Client calls the backend services
type Client struct {
	authURL string
	keysURL string
	http    *http.Client
	metrics *Metrics
	logger  *slog.Logger
}

// New creates a backend client
func New(opts Options) (*Client, error) {
	authURL, err := normalizeBaseURL(opts.AuthURL)
	if err != nil {
		return nil, fmt.Errorf("auth url: %w", err)
	}

	keysURL := authURL
	if opts.KeysURL != "" {
		keysURL, err = normalizeBaseURL(opts.KeysURL)
		if err != nil {
			return nil, fmt.Errorf("keys url: %w", err)
		}
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		authURL: authURL,
		keysURL: keysURL,
		http:    httpClient,
		metrics: opts.Metrics,
		logger:  logger.With("component", "backend"),
	}, nil
}

func normalizeBaseURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("missing host")
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// LoginRequest is the credential payload for the login endpoint.
// Field names match what the auth service expects.
type LoginRequest struct {
	Email    string `json:"Email"`
	Password string `json:"Password"`
	MFAToken string `json:"mfaToken,omitempty"`
}

// LoginResponse is the login endpoint's answer
type LoginResponse struct {
	RequiresMFA bool   `json:"requiresMfa"`
	Error       string `json:"error,omitempty"`

	// Token is the caller's token with any cookies the response set merged in
	Token Token `json:"-"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

// Verify asks the auth service whether token is a live admin session
func (c *Client) Verify(ctx context.Context, token Token) (bool, error) {
	var out verifyResponse
	if _, err := c.do(ctx, "verify", http.MethodGet, c.authURL+PathVerify, token, nil, &out); err != nil {
		return false, err
	}
	return out.Valid, nil
}

// Login submits credentials. On a 2xx answer the returned response carries
// the updated token; RequiresMFA reports a pending second factor.
func (c *Client) Login(ctx context.Context, token Token, req LoginRequest) (*LoginResponse, error) {
	var out LoginResponse
	resp, err := c.do(ctx, "login", http.MethodPost, c.authURL+PathLogin, token, req, &out)
	if err != nil {
		return nil, err
	}
	out.Token = token.withCookies(resp.Cookies())
	return &out, nil
}

// Logout ends the backend session for token
func (c *Client) Logout(ctx context.Context, token Token) error {
	_, err := c.do(ctx, "logout", http.MethodPost, c.authURL+PathLogout, token, struct{}{}, nil)
	return err
}

// ListKeys returns every license key the service knows about
func (c *Client) ListKeys(ctx context.Context, token Token) ([]LicenseKey, error) {
	var keys []LicenseKey
	if _, err := c.do(ctx, "list_keys", http.MethodGet, c.keysURL+PathKeysAll, token, nil, &keys); err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []LicenseKey{}
	}
	return keys, nil
}

// GenerateKey asks the service to issue a key valid for the given period
func (c *Client) GenerateKey(ctx context.Context, token Token, expiry Expiry) (*LicenseKey, error) {
	if _, err := ParseExpiry(string(expiry)); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("expiry", string(expiry))

	var key LicenseKey
	if _, err := c.do(ctx, "generate_key", http.MethodGet, c.keysURL+PathGenerate+"?"+q.Encode(), token, nil, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// RevokeKey revokes the key identified by its own key string
func (c *Client) RevokeKey(ctx context.Context, token Token, key string) error {
	if key == "" {
		return errors.New("revoke_key: key required")
	}

	q := url.Values{}
	q.Set("key", key)

	_, err := c.do(ctx, "revoke_key", http.MethodPatch, c.keysURL+PathRevoke+"?"+q.Encode(), token, struct{}{}, nil)
	return err
}

// do performs one request. The response body is fully consumed and closed;
// the returned response is only good for headers and cookies.
func (c *Client) do(ctx context.Context, op, method, target string, token Token, body, out any) (*http.Response, error) {
	start := time.Now()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encoding request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !token.IsZero() {
		req.Header.Set("Cookie", string(token))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.observe(op, outcomeTransport, time.Since(start))
		c.logger.Warn("backend request failed", "op", op, "error", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.metrics.observe(op, outcomeTransport, time.Since(start))
		return nil, fmt.Errorf("%s: reading response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.observe(op, outcomeStatus, time.Since(start))
		apiErr := &APIError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(data)}
		c.logger.Debug("backend returned error status", "op", op, "status", resp.StatusCode, "message", apiErr.Message)
		return nil, apiErr
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			c.metrics.observe(op, outcomeStatus, time.Since(start))
			return nil, fmt.Errorf("%s: decoding response: %w", op, err)
		}
	}

	c.metrics.observe(op, outcomeOK, time.Since(start))
	c.logger.Debug("backend request ok", "op", op, "status", resp.StatusCode, "duration", time.Since(start))
	return resp, nil
}

// errorMessage extracts a human-readable message from an error body
func errorMessage(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		return body.Message
	}
	return ""
}
