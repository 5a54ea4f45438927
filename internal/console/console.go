// ABOUTME: Console server orchestrator wiring the backend client, audit store and web console
// ABOUTME: Manages the HTTP listener (TCP or Tailscale), health, metrics, and shutdown lifecycle

package console

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/keyconsole/internal/auth"
	"github.com/2389/keyconsole/internal/backend"
	"github.com/2389/keyconsole/internal/config"
	"github.com/2389/keyconsole/internal/store"
	"github.com/2389/keyconsole/internal/webadmin"
)

// readyProbeTimeout bounds the backend probe behind /health/ready
const readyProbeTimeout = 3 * time.Second

// Console orchestrates the keyconsole server components
type Console struct {
	config      *config.Config
	store       *store.SQLiteStore
	backend     *backend.Client
	webAdmin    *webadmin.Admin
	registry    *prometheus.Registry
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger
}

// initStore opens the audit database. KEYCONSOLE_DB_PATH overrides the config.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("KEYCONSOLE_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// clientTokens builds the cookie signer. Without a configured secret a random
// one is used, so console clients do not survive a restart.
func clientTokens(cfg *config.Config, logger *slog.Logger) (*auth.ClientTokens, error) {
	secret := []byte(cfg.Auth.Secret)
	if len(secret) == 0 {
		random, err := auth.RandomSecret()
		if err != nil {
			return nil, fmt.Errorf("generating client secret: %w", err)
		}
		secret = random
		logger.Warn("auth.secret not set - using a random secret, console sessions reset on restart")
	}
	return auth.NewClientTokens(secret)
}

// New creates a new Console with the given configuration
func New(cfg *config.Config, logger *slog.Logger) (*Console, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	tokens, err := clientTokens(cfg, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client, err := backend.New(backend.Options{
		AuthURL: cfg.Backend.AuthURL,
		KeysURL: cfg.Backend.KeysURL,
		Timeout: cfg.Backend.Timeout,
		Metrics: backend.NewMetrics(reg),
		Logger:  logger,
	})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("creating backend client: %w", err)
	}

	c := &Console{
		config:   cfg,
		store:    s,
		backend:  client,
		registry: reg,
		logger:   logger.With("component", "console"),
	}

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", c.handleHealth)
	mux.HandleFunc("GET /health/ready", c.handleReady)

	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		c.logger.Info("metrics enabled", "path", cfg.Metrics.Path)
	}

	c.webAdmin = webadmin.New(webadmin.Options{
		Backend: client,
		Audit:   s,
		Tokens:  tokens,
		Config: webadmin.Config{
			ClientTTL:     cfg.Console.ClientTTL,
			MaxClients:    cfg.Console.MaxClients,
			NoticeTimeout: cfg.Console.NoticeTimeout,
			LoginRate:     cfg.Console.LoginRate,
			LoginBurst:    cfg.Console.LoginBurst,
		},
		Registerer: reg,
		Logger:     logger,
	})
	c.webAdmin.RegisterRoutes(mux)

	c.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return c, nil
}

// Handler returns the console's HTTP handler
func (c *Console) Handler() http.Handler {
	return c.httpServer.Handler
}

// setupListener creates the HTTP listener based on configuration (Tailscale or TCP)
func (c *Console) setupListener(ctx context.Context) (net.Listener, error) {
	if c.config.Tailscale.Enabled {
		if c.config.Server.HTTPAddr != "" {
			c.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", c.config.Server.HTTPAddr)
		}
		return c.setupTailscaleListener(ctx)
	}

	c.logger.Info("starting console", "http_addr", c.config.Server.HTTPAddr)
	ln, err := net.Listen("tcp", c.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (c *Console) Run(ctx context.Context) error {
	ln, err := c.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := c.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		c.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		c.logger.Error("server error", "error", serverErr)
	}

	// The run context is already canceled, so shutdown gets its own.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := c.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "keyconsole", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener joins the tailnet and listens on :80, or on :443
// with the node's certificate when HTTPS is enabled
func (c *Console) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := c.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	c.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	c.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := c.tsnetServer.Up(ctx)
	if err != nil {
		_ = c.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	c.logTailscaleStatus(tsCfg.Hostname, status)

	if !tsCfg.HTTPS {
		ln, err := c.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = c.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}

	c.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := c.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		_ = c.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := c.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = c.tsnetServer.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (c *Console) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		c.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	c.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the server and releases resources
func (c *Console) Shutdown(ctx context.Context) error {
	c.logger.Info("shutting down console")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", c.httpServer.Shutdown(ctx))

	if c.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", c.tsnetServer.Close())
	}

	c.webAdmin.Close()
	errs = appendCloseError(errs, "store close", c.store.Close())

	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (c *Console) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK when the audit store answers and the auth
// service is reachable. Any HTTP answer from the auth service counts.
func (c *Console) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyProbeTimeout)
	defer cancel()

	if err := c.store.Ping(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "audit store unavailable: %v", err)
		return
	}

	var apiErr *backend.APIError
	if _, err := c.backend.Verify(ctx, ""); err != nil && !errors.As(err, &apiErr) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "auth service unreachable: %v", err)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
