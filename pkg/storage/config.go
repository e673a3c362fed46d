package storage

import "time"

// Backend names accepted in Config.Type.
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeRedis    = "redis"
)

// Config for storage backend
type Config struct {
	Type string // rights backend: "sqlite", "postgres", "redis"

	// Database is the SQL database holding API tokens (and tag counts when
	// TagCounter is "sql"). It defaults to Type for SQL backends and to
	// sqlite when rights live in Redis.
	Database string

	// TagCounter selects where tag usage counts live: "redis" or "sql".
	TagCounter string

	// SQLite config
	SQLitePath string

	// PostgreSQL config
	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration
	PostgresLifetime time.Duration

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
	RedisPrefix     string

	// Rights lookup cache
	CacheEnabled bool
	CacheTTL     time.Duration
	CacheSize    int
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:             TypeSQLite,
		SQLitePath:       "file:rights.db?cache=shared&_foreign_keys=on",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		PostgresLifetime: 30 * time.Minute,
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		RedisPrefix:      "rights",
		CacheEnabled:     true,
		CacheTTL:         30 * time.Second,
		CacheSize:        10000,
		TagCounter:       "sql",
	}
}

// UsesSQL reports whether the configured backend is a SQL database.
func (c Config) UsesSQL() bool {
	return c.Type == TypeSQLite || c.Type == TypePostgres
}

// SQLType returns the SQL database type to open.
func (c Config) SQLType() string {
	if c.Database != "" {
		return c.Database
	}
	if c.UsesSQL() {
		return c.Type
	}
	return TypeSQLite
}

// UsesRedis reports whether any component needs a Redis connection.
func (c Config) UsesRedis() bool {
	return c.Type == TypeRedis || c.TagCounter == TypeRedis
}
