// Package console orchestrates the keyconsole server components.
//
// # Overview
//
// The console package owns the HTTP server and everything it serves: the
// backend client for the auth and license-key services, the SQLite audit
// store, the Prometheus registry, and the web console from package webadmin.
//
// # Listeners
//
// By default the server listens on server.http_addr. With tailscale.enabled
// it joins the tailnet through tsnet instead and serves on :80, or on :443
// with the node's certificate when tailscale.https is set. The auth key comes
// from tailscale.auth_key or TS_AUTHKEY.
//
// # Endpoints
//
//	GET /health          liveness, always 200
//	GET /health/ready    200 when the audit store and auth service answer
//	GET /metrics         Prometheus metrics (path configurable, off by default)
//
// All other routes belong to the web console.
//
// # Lifecycle
//
//	c, err := console.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return c.Run(ctx) // blocks until ctx is canceled
//
// Run shuts down gracefully with a five second budget once its context is
// canceled.
package console
