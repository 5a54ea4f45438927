// ABOUTME: Web console for license key administration
// ABOUTME: Wires client identity, CSRF, the route guard, and all console routes

package webadmin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/2389/keyconsole/internal/assets"
	"github.com/2389/keyconsole/internal/auth"
	"github.com/2389/keyconsole/internal/licensekeys"
	"github.com/2389/keyconsole/internal/registry"
	"github.com/2389/keyconsole/internal/session"
	"github.com/2389/keyconsole/internal/store"
)

const (
	// ClientCookieName holds the signed console client token
	ClientCookieName = "keyconsole_client"

	// CSRFCookieName is the name of the CSRF token cookie
	CSRFCookieName = "keyconsole_csrf"

	// DefaultVerifyWait is how long a request waits for a new client's
	// session verification before the loading placeholder is shown
	DefaultVerifyWait = 2 * time.Second
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const clientContextKey contextKey = "console_client"
const csrfContextKey contextKey = "csrf_token"

// Backend is everything the console needs from the remote services
type Backend interface {
	session.Authenticator
	licensekeys.KeyService
}

// Config holds console behavior settings
type Config struct {
	ClientTTL     time.Duration
	MaxClients    int
	NoticeTimeout time.Duration
	LoginRate     float64
	LoginBurst    int
	VerifyWait    time.Duration
}

// Options bundles the console's collaborators
type Options struct {
	Backend Backend
	// Audit may be nil; actions are then only logged
	Audit  store.AuditStore
	Tokens *auth.ClientTokens
	Config Config
	// Registerer enables console metrics when non-nil
	Registerer prometheus.Registerer
	Logger     *slog.Logger
}

// Admin serves the console UI. Each browser is a client with its own
// session store, key workflow and view state, found through a signed cookie.
type Admin struct {
	backend  Backend
	audit    store.AuditStore
	tokens   *auth.ClientTokens
	config   Config
	clients  *registry.Registry[*client]
	limiter  *loginLimiter
	validate *validator.Validate
	metrics  *Metrics
	logger   *slog.Logger
	pages    *pageSet

	// clientLogger is the caller's logger; each client's parts add their
	// own component
	clientLogger *slog.Logger

	// baseCtx outlives requests; background verifications use it
	baseCtx    context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup
}

// New creates the console handler
func New(opts Options) *Admin {
	cfg := opts.Config
	if cfg.VerifyWait <= 0 {
		cfg.VerifyWait = DefaultVerifyWait
	}
	if cfg.ClientTTL <= 0 {
		cfg.ClientTTL = 12 * time.Hour
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clientLogger := logger
	logger = logger.With("component", "webadmin")

	baseCtx, cancel := context.WithCancel(context.Background())

	a := &Admin{
		backend:      opts.Backend,
		audit:        opts.Audit,
		tokens:       opts.Tokens,
		config:       cfg,
		limiter:      newLoginLimiter(cfg.LoginRate, cfg.LoginBurst),
		validate:     newValidator(),
		logger:       logger,
		pages:        newPageSet(logger),
		clientLogger: clientLogger,
		baseCtx:      baseCtx,
		cancelBase:   cancel,
	}

	a.clients = registry.New[*client](cfg.ClientTTL, cfg.MaxClients, 0, func(id string, _ *client, reason registry.EvictReason) {
		a.logger.Debug("console client dropped", "client", id, "reason", reason)
	})

	if opts.Registerer != nil {
		a.metrics = NewMetrics(opts.Registerer, a.clients.Len)
	}

	return a
}

// Close stops background work and releases client state
func (a *Admin) Close() {
	a.cancelBase()
	a.wg.Wait()
	a.clients.Close()
	a.limiter.Close()
}

// RegisterRoutes registers all console routes on the given mux
func (a *Admin) RegisterRoutes(mux *http.ServeMux) {
	// Public routes
	mux.Handle("GET /login", a.withClient(a.handleLoginPage))
	mux.Handle("POST /login", a.withClient(a.handleLogin))
	mux.Handle("GET /static/", http.StripPrefix("/static/", assets.FileServer()))

	// Protected routes
	mux.Handle("GET /{$}", a.requireAuth(a.handleShell))
	mux.Handle("POST /logout", a.requireAuth(a.handleLogout))
	mux.Handle("POST /keys/refresh", a.requireAuth(a.handleKeysRefresh))
	mux.Handle("POST /keys/dialog", a.requireAuth(a.handleKeysDialog))
	mux.Handle("POST /keys/generate", a.requireAuth(a.handleKeysGenerate))
	mux.Handle("POST /keys/revoke", a.requireAuth(a.handleKeysRevoke))
	mux.Handle("POST /notices/dismiss", a.requireAuth(a.handleNoticesDismiss))
	mux.Handle("POST /security/toggle/{name}", a.requireAuth(a.handleSecurityToggle))
	mux.Handle("POST /banner/dismiss", a.requireAuth(a.handleBannerDismiss))

	a.logger.Info("console routes registered")
}

// withClient resolves the console client for the request, issuing a new
// client cookie when the request has none or an invalid one. POSTs must
// carry a valid CSRF token.
func (a *Admin) withClient(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := a.resolveClient(w, r)

		ctx := context.WithValue(r.Context(), clientContextKey, c)
		ctx = auth.WithClientID(ctx, c.id)
		r = r.WithContext(ctx)

		if r.Method == http.MethodPost && !a.validateCSRF(r) {
			a.logger.Warn("request with invalid CSRF token", "path", r.URL.Path, "client", c.id)
			if r.URL.Path == "/login" {
				_, csrfToken := a.ensureCSRFToken(w, r)
				a.renderLoginPage(w, http.StatusForbidden, loginView{Error: "Invalid request, please try again"}, csrfToken)
				return
			}
			http.Error(w, "invalid CSRF token", http.StatusForbidden)
			return
		}

		next(w, r)
	})
}

// requireAuth wraps a handler with the route guard: a placeholder while the
// client's session is still being verified, a redirect to /login once it is
// known to be logged out.
func (a *Admin) requireAuth(next http.HandlerFunc) http.Handler {
	return a.withClient(func(w http.ResponseWriter, r *http.Request) {
		c := getClient(r)

		st := c.session.State()
		if st.Loading {
			if r.Method != http.MethodGet {
				http.Error(w, "session verification in progress", http.StatusServiceUnavailable)
				return
			}
			a.renderLoading(w)
			return
		}
		if !st.Authenticated {
			http.Redirect(w, r, session.LoginPath, http.StatusSeeOther)
			return
		}

		next(w, r)
	})
}

// resolveClient finds or creates the client for a request
func (a *Admin) resolveClient(w http.ResponseWriter, r *http.Request) *client {
	id := ""
	if cookie, err := r.Cookie(ClientCookieName); err == nil {
		if clientID, err := a.tokens.Verify(cookie.Value); err == nil {
			id = clientID
		} else {
			a.logger.Debug("rejected client cookie", "error", err)
		}
	}

	if id == "" {
		id = uuid.New().String()
		a.setClientCookie(w, r, id)
	}

	c, created := a.clients.GetOrCreate(id, func() *client {
		return newClient(id, a.backend, a.config.NoticeTimeout, a.clientLogger)
	})
	if created {
		a.logger.Debug("console client created", "client", id)
		a.startVerification(c)
	}

	// A fresh client waits briefly so a fast backend never shows the placeholder.
	select {
	case <-c.verified:
	case <-time.After(a.config.VerifyWait):
	case <-r.Context().Done():
	}
	return c
}

// startVerification runs the on-construction session check in the background
func (a *Admin) startVerification(c *client) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer close(c.verified)
		c.session.VerifySession(a.baseCtx)
	}()
}

func (a *Admin) setClientCookie(w http.ResponseWriter, r *http.Request, id string) {
	token, err := a.tokens.Issue(id, a.config.ClientTTL)
	if err != nil {
		a.logger.Error("failed to issue client token", "error", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     ClientCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.config.ClientTTL.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// getClient retrieves the console client from the request context
func getClient(r *http.Request) *client {
	c, _ := r.Context().Value(clientContextKey).(*client)
	return c
}

// getCSRFToken retrieves the CSRF token from the request context
func getCSRFToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfContextKey).(string)
	return token
}

// ensureCSRFToken generates a CSRF token if not present and adds it to context
func (a *Admin) ensureCSRFToken(w http.ResponseWriter, r *http.Request) (*http.Request, string) {
	cookie, err := r.Cookie(CSRFCookieName)
	if err == nil && cookie.Value != "" {
		ctx := context.WithValue(r.Context(), csrfContextKey, cookie.Value)
		return r.WithContext(ctx), cookie.Value
	}

	token, err := generateSecureToken(32)
	if err != nil {
		a.logger.Error("failed to generate CSRF token", "error", err)
		token = "" // Will fail validation, but won't crash
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	ctx := context.WithValue(r.Context(), csrfContextKey, token)
	return r.WithContext(ctx), token
}

// validateCSRF checks the CSRF token from form against cookie
func (a *Admin) validateCSRF(r *http.Request) bool {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}

	formToken := r.FormValue("csrf_token")
	if formToken == "" {
		formToken = r.Header.Get("X-CSRF-Token")
	}

	return formToken != "" && formToken == cookie.Value
}

// recordAudit appends an audit entry; failures are logged and ignored
func (a *Admin) recordAudit(ctx context.Context, e store.AuditEntry) {
	if a.audit == nil {
		return
	}
	if err := a.audit.AppendAuditLog(ctx, &e); err != nil {
		a.logger.Error("failed to append audit log", "action", e.Action, "error", err)
	}
}

// generateSecureToken generates a cryptographically secure random token
func generateSecureToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
