package rights

import (
	"context"
	"database/sql"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	_ "github.com/mattn/go-sqlite3"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/storage"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// setupTestDB opens an in-memory sqlite database with the rights schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	logger, _ := test.NewNullLogger()
	require.NoError(t, RunMigrations(context.Background(), db, storage.DialectSQLite, logger))
	return db
}

func setupSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	return NewSQLStore(setupTestDB(t), storage.DialectSQLite)
}

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client, "rights"), mr
}

// storeFactories runs behaviour tests against every backend.
var storeFactories = map[string]func(t *testing.T) Store{
	"sqlite": func(t *testing.T) Store { return setupSQLStore(t) },
	"redis": func(t *testing.T) Store {
		store, _ := setupRedisStore(t)
		return store
	},
}
