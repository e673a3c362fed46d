package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/semanticlink/todo-hypermedia-sub002/pkg/auth"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/contextkeys"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/httputil"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/observability"
)

// TokenValidator maps a bearer token to a user id
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (string, error)
}

// AuthMiddleware provides authentication middleware
type AuthMiddleware struct {
	validator TokenValidator
	optional  bool // If true, allow requests without auth
	audit     *auth.AuditLogger
}

// NewAuthMiddleware creates a new authentication middleware. audit may be nil.
func NewAuthMiddleware(validator TokenValidator, optional bool, audit *auth.AuditLogger) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		optional:  optional,
		audit:     audit,
	}
}

// Handler wraps an HTTP handler with authentication. A valid token puts
// the user id into the request context.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			m.reject(w, r, "missing authorization header", nil)
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			m.reject(w, r, "invalid authorization header format", nil)
			return
		}

		userID, err := m.validator.ValidateToken(r.Context(), strings.TrimSpace(token))
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				observability.FromContext(r.Context()).WithError(err).Error("token validation failed")
				httputil.WriteServiceUnavailable(w, "authentication temporarily unavailable")
				return
			}
			m.reject(w, r, "invalid or expired token", err)
			return
		}

		ctx := contextkeys.WithUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, message string, err error) {
	if m.audit != nil {
		m.audit.LogFromRequest(r, auth.AuditEvent{
			Action: auth.ActionAuthFailure,
			Status: auth.StatusFailure,
			Detail: message,
			Err:    err,
		})
	}
	httputil.WriteUnauthorized(w, message)
}
