// ABOUTME: Request context helpers for the console client identity
// ABOUTME: Provides WithClientID/ClientIDFromContext for handlers behind the cookie middleware

package auth

import (
	"context"
)

// clientIDKey is the key type for storing the client ID in context.Context.
type clientIDKey struct{}

// WithClientID returns a new context carrying the console client ID.
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey{}, clientID)
}

// ClientIDFromContext returns the console client ID, or "" if not present.
func ClientIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(clientIDKey{}).(string)
	return id
}
