package tags

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/storage"
	"github.com/sirupsen/logrus"
)

// ErrInvalidTag is returned for a blank tag id.
var ErrInvalidTag = errors.New("invalid tag id")

// decrementScript floors the counter at zero.
var decrementScript = redis.NewScript(`
local n = redis.call("DECRBY", KEYS[1], 1)
if n < 0 then
	redis.call("SET", KEYS[1], 0)
	return 0
end
return n
`)

// RedisCounter keeps tag counts in Redis under {prefix}:count:{tagID}.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

// NewRedisCounter creates a new Redis tag counter
func NewRedisCounter(client *redis.Client, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "tags"
	}
	return &RedisCounter{client: client, prefix: prefix}
}

func (c *RedisCounter) key(tagID string) string {
	return fmt.Sprintf("%s:count:%s", c.prefix, tagID)
}

// Increment atomically adds one to the tag's count.
func (c *RedisCounter) Increment(ctx context.Context, tagID string) error {
	if err := validateTag(tagID); err != nil {
		return err
	}
	return c.client.IncrBy(ctx, c.key(tagID), 1).Err()
}

// Decrement atomically subtracts one, never going below zero.
func (c *RedisCounter) Decrement(ctx context.Context, tagID string) error {
	if err := validateTag(tagID); err != nil {
		return err
	}
	return decrementScript.Run(ctx, c.client, []string{c.key(tagID)}).Err()
}

// Count returns the tag's count; an unknown tag counts zero.
func (c *RedisCounter) Count(ctx context.Context, tagID string) (int64, error) {
	n, err := c.client.Get(ctx, c.key(tagID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// SQLCounter keeps tag counts in the todo_count column of the tags table.
type SQLCounter struct {
	db      *sql.DB
	dialect storage.Dialect
}

// NewSQLCounter creates a new SQL tag counter
func NewSQLCounter(db *sql.DB, dialect storage.Dialect) *SQLCounter {
	return &SQLCounter{db: db, dialect: dialect}
}

// Increment adds one to the tag's count, creating the row if needed.
func (c *SQLCounter) Increment(ctx context.Context, tagID string) error {
	if err := validateTag(tagID); err != nil {
		return err
	}
	query := c.dialect.Rebind(`
		INSERT INTO tags (id, todo_count) VALUES (?, 1)
		ON CONFLICT (id) DO UPDATE SET todo_count = tags.todo_count + 1, updated_at = CURRENT_TIMESTAMP
	`)
	if _, err := c.db.ExecContext(ctx, query, tagID); err != nil {
		return fmt.Errorf("failed to increment tag count: %w", err)
	}
	return nil
}

// Decrement subtracts one from the tag's count, never going below zero.
func (c *SQLCounter) Decrement(ctx context.Context, tagID string) error {
	if err := validateTag(tagID); err != nil {
		return err
	}
	query := c.dialect.Rebind(`
		UPDATE tags
		SET todo_count = CASE WHEN todo_count > 0 THEN todo_count - 1 ELSE 0 END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`)
	if _, err := c.db.ExecContext(ctx, query, tagID); err != nil {
		return fmt.Errorf("failed to decrement tag count: %w", err)
	}
	return nil
}

// Count returns the tag's count; an unknown tag counts zero.
func (c *SQLCounter) Count(ctx context.Context, tagID string) (int64, error) {
	var n int64
	err := c.db.QueryRowContext(ctx, c.dialect.Rebind(`SELECT todo_count FROM tags WHERE id = ?`), tagID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read tag count: %w", err)
	}
	return n, nil
}

// Migrations returns the schema of the SQL tag counter.
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create tags table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tags (
					id VARCHAR(255) PRIMARY KEY,
					todo_count BIGINT NOT NULL DEFAULT 0,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				)
			`,
		},
	}
}

// RunMigrations creates or upgrades the tags table.
func RunMigrations(ctx context.Context, db *sql.DB, dialect storage.Dialect, logger logrus.FieldLogger) error {
	return storage.RunMigrations(ctx, db, dialect, "tags", Migrations(), logger)
}

func validateTag(tagID string) error {
	if strings.TrimSpace(tagID) == "" {
		return ErrInvalidTag
	}
	return nil
}
