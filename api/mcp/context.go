package mcp

import "context"

type userIDKey struct{}

// WithUserID returns a context carrying the authenticated user id. The MCP
// handler scopes every tool call to this user.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the user id stored by WithUserID, or "".
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}
