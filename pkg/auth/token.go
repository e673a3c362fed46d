package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// TokenPrefix identifies todo API tokens
	TokenPrefix = "todo_"
	// TokenLength is the total length of random bytes (32 bytes = 256 bits)
	TokenLength = 32
)

// TokenGenerator generates and validates API tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a new API token
// Format: todo_<base64url(32 random bytes)>
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encodedToken := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := TokenPrefix + encodedToken

	return fullToken, tg.HashToken(fullToken), tg.ExtractPrefix(fullToken), nil
}

// HashToken computes the SHA256 hash of a token for lookup
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if a token has the correct format
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("token is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encodedPart); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}

	return nil
}

// ExtractPrefix extracts the prefix from a token for display
func (tg *TokenGenerator) ExtractPrefix(token string) string {
	if !strings.HasPrefix(token, TokenPrefix) {
		return ""
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) >= 8 {
		return TokenPrefix + encodedPart[:8]
	}

	return token
}

// TokenStore persists hashed API tokens.
type TokenStore interface {
	CreateToken(ctx context.Context, token *APIToken) error
	GetTokenByHash(ctx context.Context, tokenHash string) (*APIToken, error)
	TouchToken(ctx context.Context, id string, usedAt time.Time) error
	RevokeToken(ctx context.Context, id string, revokedAt time.Time) error
	ListUserTokens(ctx context.Context, userID string) ([]*APIToken, error)
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// TokenManager manages API token lifecycle
type TokenManager struct {
	generator *TokenGenerator
	store     TokenStore
	now       func() time.Time
}

// NewTokenManager creates a new token manager
func NewTokenManager(store TokenStore) *TokenManager {
	return &TokenManager{
		generator: NewTokenGenerator(),
		store:     store,
		now:       time.Now,
	}
}

// CreateToken issues a token for userID. The plaintext token is returned
// once and never stored.
func (tm *TokenManager) CreateToken(ctx context.Context, userID, name string, expiresAt *time.Time) (*APIToken, string, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, "", fmt.Errorf("user id is required")
	}

	token, tokenHash, tokenPrefix, err := tm.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	apiToken := &APIToken{
		ID:          uuid.New().String(),
		UserID:      userID,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
		Name:        name,
		ExpiresAt:   expiresAt,
		CreatedAt:   tm.now().UTC(),
	}

	if err := tm.store.CreateToken(ctx, apiToken); err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}

	return apiToken, token, nil
}

// ValidateToken returns the id of the user the token belongs to. Unknown,
// expired and revoked tokens yield ErrInvalidToken; store failures are
// returned as is.
func (tm *TokenManager) ValidateToken(ctx context.Context, token string) (string, error) {
	if err := tm.generator.ValidateTokenFormat(token); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	apiToken, err := tm.store.GetTokenByHash(ctx, tm.generator.HashToken(token))
	if errors.Is(err, ErrTokenNotFound) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up token: %w", err)
	}

	now := tm.now()
	if !apiToken.Active(now) {
		return "", ErrInvalidToken
	}

	if err := tm.store.TouchToken(ctx, apiToken.ID, now.UTC()); err != nil {
		return "", fmt.Errorf("failed to record token use: %w", err)
	}
	return apiToken.UserID, nil
}

// RevokeToken revokes a token
func (tm *TokenManager) RevokeToken(ctx context.Context, tokenID string) error {
	return tm.store.RevokeToken(ctx, tokenID, tm.now().UTC())
}

// ListUserTokens lists all tokens for a user, newest first
func (tm *TokenManager) ListUserTokens(ctx context.Context, userID string) ([]*APIToken, error) {
	return tm.store.ListUserTokens(ctx, userID)
}

// CleanupExpiredTokens removes expired tokens
func (tm *TokenManager) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	return tm.store.DeleteExpiredTokens(ctx, tm.now().UTC())
}
