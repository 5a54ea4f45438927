// Package backend is the HTTP client for the remote services behind the
// console.
//
// # Services
//
// Two services are called, possibly on different hosts:
//
//   - Auth: GET /api/auth/admin/verify, POST /api/auth/admin/login,
//     POST /api/auth/admin/logout
//   - License keys: GET /api/keys/all, GET /api/keys/generate-key?expiry=<code>,
//     PATCH /api/keys/revoke?key=<id>
//
// # Credentials
//
// The auth service issues its session as cookies. The client does not keep
// a cookie jar; instead the cookies are folded into a Token that the caller
// passes to every method. Login returns the updated Token.
//
// # Errors
//
// Non-2xx answers are returned as *APIError carrying the status and the
// body's "error" field. Transport failures are wrapped with the operation
// name. Nothing is retried.
package backend
