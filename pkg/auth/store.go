package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/semanticlink/todo-hypermedia-sub002/pkg/storage"
	"github.com/sirupsen/logrus"
)

// SQLTokenStore keeps API tokens in the api_tokens table.
type SQLTokenStore struct {
	db      *sql.DB
	dialect storage.Dialect
}

// NewSQLTokenStore creates a token store on db
func NewSQLTokenStore(db *sql.DB, dialect storage.Dialect) *SQLTokenStore {
	return &SQLTokenStore{db: db, dialect: dialect}
}

// Migrations returns the schema of the token store.
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create api_tokens table",
			SQL: `
				CREATE TABLE IF NOT EXISTS api_tokens (
					id VARCHAR(36) PRIMARY KEY,
					user_id VARCHAR(255) NOT NULL,
					token_hash VARCHAR(64) NOT NULL UNIQUE,
					token_prefix VARCHAR(32) NOT NULL,
					name VARCHAR(255) NOT NULL DEFAULT '',
					expires_at TIMESTAMP NULL,
					last_used_at TIMESTAMP NULL,
					created_at TIMESTAMP NOT NULL,
					revoked_at TIMESTAMP NULL
				);

				CREATE INDEX IF NOT EXISTS idx_api_tokens_user_id ON api_tokens(user_id);
			`,
		},
	}
}

// RunMigrations creates or upgrades the token tables.
func RunMigrations(ctx context.Context, db *sql.DB, dialect storage.Dialect, logger logrus.FieldLogger) error {
	return storage.RunMigrations(ctx, db, dialect, "auth", Migrations(), logger)
}

// CreateToken inserts a token record
func (s *SQLTokenStore) CreateToken(ctx context.Context, token *APIToken) error {
	query := s.dialect.Rebind(`
		INSERT INTO api_tokens (id, user_id, token_hash, token_prefix, name, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := s.db.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.TokenPrefix,
		token.Name,
		nullTime(token.ExpiresAt),
		token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}
	return nil
}

// GetTokenByHash looks a token up by the hash of its plaintext
func (s *SQLTokenStore) GetTokenByHash(ctx context.Context, tokenHash string) (*APIToken, error) {
	query := s.dialect.Rebind(`
		SELECT id, user_id, token_hash, token_prefix, name, expires_at, last_used_at, created_at, revoked_at
		FROM api_tokens
		WHERE token_hash = ?
	`)

	token, err := scanToken(s.db.QueryRowContext(ctx, query, tokenHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return token, nil
}

// TouchToken records the last use of a token
func (s *SQLTokenStore) TouchToken(ctx context.Context, id string, usedAt time.Time) error {
	query := s.dialect.Rebind(`UPDATE api_tokens SET last_used_at = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query, usedAt, id); err != nil {
		return fmt.Errorf("failed to touch token: %w", err)
	}
	return nil
}

// RevokeToken marks a token revoked. Revoking twice keeps the first time.
func (s *SQLTokenStore) RevokeToken(ctx context.Context, id string, revokedAt time.Time) error {
	query := s.dialect.Rebind(`UPDATE api_tokens SET revoked_at = COALESCE(revoked_at, ?) WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, revokedAt, id)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if n == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// ListUserTokens lists the tokens of a user, newest first
func (s *SQLTokenStore) ListUserTokens(ctx context.Context, userID string) ([]*APIToken, error) {
	query := s.dialect.Rebind(`
		SELECT id, user_id, token_hash, token_prefix, name, expires_at, last_used_at, created_at, revoked_at
		FROM api_tokens
		WHERE user_id = ?
		ORDER BY created_at DESC
	`)

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*APIToken
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// DeleteExpiredTokens removes tokens whose expiry is before now
func (s *SQLTokenStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	query := s.dialect.Rebind(`DELETE FROM api_tokens WHERE expires_at IS NOT NULL AND expires_at < ?`)
	result, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanToken(scanner rowScanner) (*APIToken, error) {
	var (
		token                        APIToken
		expiresAt, lastUsed, revoked sql.NullTime
	)
	err := scanner.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.TokenPrefix,
		&token.Name,
		&expiresAt,
		&lastUsed,
		&token.CreatedAt,
		&revoked,
	)
	if err != nil {
		return nil, err
	}
	token.ExpiresAt = timePtr(expiresAt)
	token.LastUsedAt = timePtr(lastUsed)
	token.RevokedAt = timePtr(revoked)
	return &token, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
