package auth

import (
	"errors"
	"time"
)

var (
	// ErrInvalidToken is returned for tokens that are malformed, unknown,
	// expired or revoked. Callers answer 401 without saying which.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenNotFound is returned by a TokenStore for an unknown hash or id.
	ErrTokenNotFound = errors.New("token not found")
)

// APIToken represents an API token. The plaintext token is never stored.
type APIToken struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	TokenHash   string     `json:"-"` // Never expose hash
	TokenPrefix string     `json:"token_prefix"`
	Name        string     `json:"name"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// Active reports whether the token can still authenticate at now.
func (t *APIToken) Active(now time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	return t.ExpiresAt == nil || now.Before(*t.ExpiresAt)
}
