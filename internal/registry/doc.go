// Package registry provides the in-memory table of console clients.
//
// Each browser that talks to the console gets a client ID (carried in a
// signed cookie) and a value in a Registry: its session store, key workflow
// and view state. Entries idle longer than the TTL are dropped, and when the
// registry is full the least recently used entry is evicted, so an
// unbounded number of cookie-less requests cannot grow memory without
// limit.
package registry
