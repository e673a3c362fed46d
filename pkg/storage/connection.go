package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// OpenSQL opens and pings the SQL database selected by config.
func OpenSQL(ctx context.Context, config Config) (*sql.DB, Dialect, error) {
	var (
		dialect Dialect
		dsn     string
	)
	switch config.SQLType() {
	case TypeSQLite:
		dialect, dsn = DialectSQLite, config.SQLitePath
	case TypePostgres:
		dialect, dsn = DialectPostgres, config.PostgresURL
	default:
		return nil, "", fmt.Errorf("storage type %q is not a SQL backend", config.SQLType())
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s connection: %w", dialect, err)
	}

	if dialect == DialectPostgres {
		db.SetMaxOpenConns(config.PostgresMaxConns)
		db.SetMaxIdleConns(config.PostgresMinConns)
		db.SetConnMaxLifetime(config.PostgresLifetime)
	} else {
		// SQLite serialises writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	timeout := config.PostgresTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("failed to ping %s: %w", dialect, err)
	}

	return db, dialect, nil
}

// OpenRedis creates a Redis client from config and checks connectivity.
func OpenRedis(ctx context.Context, config Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	// Override with config values if provided
	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB > 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisMaxRetries > 0 {
		opts.MaxRetries = config.RedisMaxRetries
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}
