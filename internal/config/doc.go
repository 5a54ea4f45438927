// Package config handles configuration loading for keyconsole.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment
// variable expansion. The file extension selects the decoder: ".toml" is
// decoded with BurntSushi/toml, anything else as YAML.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from KEYCONSOLE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/keyconsole/console.yaml
//  3. ~/.config/keyconsole/console.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  secret: "${KEYCONSOLE_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
// Server and backend:
//
//	server:
//	  http_addr: "localhost:8090"
//	backend:
//	  auth_url: "https://auth.example.com"  # verify/login/logout
//	  keys_url: "http://localhost:5276"     # key list/generate/revoke, defaults to auth_url
//	  timeout: "15s"                        # "0s" disables the client timeout
//
// Console behavior:
//
//	console:
//	  notice_timeout: "6s"   # how long success/error notices stay visible
//	  client_ttl: "12h"      # idle lifetime of a browser's console state
//	  max_clients: 10000
//	  login_rate: 1.0        # login attempts per second (token bucket)
//	  login_burst: 5
//
// Audit database, logging and metrics:
//
//	database:
//	  path: "~/.local/share/keyconsole/audit.db"
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	metrics:
//	  enabled: false
//	  path: "/metrics"
//
// # Validation
//
// Load() requires backend.auth_url (http or https), database.path, and
// server.http_addr unless tailscale is enabled, in which case
// tailscale.hostname is required instead.
package config
