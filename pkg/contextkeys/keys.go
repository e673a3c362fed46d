// Package contextkeys provides centralized context key definitions
//
// All context keys used across the service are defined here so that setters
// and readers in different packages agree on them.
//
// USAGE PATTERN:
//
//	import "github.com/semanticlink/todo-hypermedia-sub002/pkg/contextkeys"
//	ctx = contextkeys.WithUserID(ctx, userID)
//	userID := contextkeys.GetUserID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestID (pkg/middleware/requestid.go)
	// Used by: Logger, authorization failure logs
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated user ID
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Used by: authz.Authorizer, rights administration handlers, logger
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains the request scoped *logrus.Entry
	// Set by: middleware.RequestID
	// Used by: observability.FromContext
	// Type: *logrus.Entry
	LoggerKey Key = "logger"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
