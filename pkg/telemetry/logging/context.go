package logging

import (
	"context"
)

// contextKey is a private key type for context values set by this package.
type contextKey string

// RequestIDKey is the context key for request IDs. The HTTP middleware
// sets it; anything logging below a handler can pick it up.
const RequestIDKey contextKey = "request_id"

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context, or "" when the
// context carries none.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// ContextAttrs extracts log attributes from context values. The result is
// suitable for logger.With.
func ContextAttrs(ctx context.Context) []any {
	var fields []any
	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}
	return fields
}
