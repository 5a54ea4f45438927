// Package store persists the console's audit log in SQLite.
//
// The console keeps no license-key or credential data of its own; the only
// thing it writes is a record of what operators did: logins and their
// failures, MFA challenges, logouts, key generation and revocation.
//
// # SQLite Configuration
//
// The store uses modernc.org/sqlite (no cgo) with WAL mode:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// Database file locations:
//
//   - Default: ~/.local/share/keyconsole/audit.db
//   - Testing: a file under t.TempDir()
//
// # Listing
//
// ListAuditLog returns newest first. Limit defaults to 100 and is capped at
// 1000. Filters (Since, ClientID, Action) are optional and combined with AND.
//
// Audit writes are best effort: callers log a failed append and carry on.
package store
