// Package auth identifies console clients.
//
// The console does not authenticate operators itself; the remote auth
// service does. What the console needs is a stable, unforgeable handle for
// each browser so it can find that browser's session state. That handle is
// a random client ID carried in an HS256 JWT cookie.
//
// # Signing Key
//
// The signing key is derived from auth.secret with HKDF-SHA256. When no
// secret is configured, RandomSecret provides one for the life of the
// process and every client starts over after a restart.
//
// # Claims
//
//   - sub: client ID (UUID)
//   - iss: "keyconsole"
//   - iat, exp: issue time and expiry (console.client_ttl)
package auth
