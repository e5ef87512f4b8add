// Package common holds request-scoped context helpers shared by the HTTP and
// realtime surfaces.
package common

import (
	"context"
)

// contextKey is a private type for context keys used in this package
type contextKey string

// Keys for context values
const (
	userIDKey   contextKey = "user_id"
	clientIDKey contextKey = "client_id"
)

// WithUserID returns a new context with the acting user's ID
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID retrieves the user ID from the context
// Returns the user ID and a boolean indicating if it was found
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok
}

// WithClientID returns a new context with the given realtime client ID
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey, clientID)
}

// GetClientID retrieves the realtime client ID from the context
// Returns the client ID and a boolean indicating if it was found
func GetClientID(ctx context.Context) (string, bool) {
	clientID, ok := ctx.Value(clientIDKey).(string)
	return clientID, ok
}
