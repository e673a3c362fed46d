//go:build integration

// Package storagetest starts a disposable PostgreSQL server for integration
// tests. One container serves the whole test binary; every caller gets its
// own database on it.
package storagetest

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const image = "postgres:16-alpine"

var server struct {
	once sync.Once
	dsn  string
	err  error
	seq  atomic.Int64
}

func start() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		server.err = err
		return
	}
	provider.Close()

	// the reaper removes the container when the test binary exits
	container, err := postgres.Run(ctx, image,
		postgres.WithDatabase("rights"),
		postgres.WithUsername("rights"),
		postgres.WithPassword("rights"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		server.err = err
		return
	}
	server.dsn, server.err = container.ConnectionString(ctx, "sslmode=disable")
}

// Postgres returns a connection to a fresh, empty database. The test is
// skipped when no container runtime is available.
func Postgres(t *testing.T) *sql.DB {
	t.Helper()

	server.once.Do(start)
	if server.err != nil {
		t.Skipf("PostgreSQL container unavailable: %v", server.err)
	}

	admin, err := sql.Open("postgres", server.dsn)
	require.NoError(t, err)
	defer admin.Close()

	name := fmt.Sprintf("test_%d_%d", os.Getpid(), server.seq.Add(1))
	_, err = admin.Exec("CREATE DATABASE " + name)
	require.NoError(t, err)

	u, err := url.Parse(server.dsn)
	require.NoError(t, err)
	u.Path = "/" + name

	db, err := sql.Open("postgres", u.String())
	require.NoError(t, err)
	require.NoError(t, db.Ping())

	t.Cleanup(func() {
		db.Close()
		if admin, err := sql.Open("postgres", server.dsn); err == nil {
			_, _ = admin.Exec("DROP DATABASE IF EXISTS " + name)
			admin.Close()
		}
	})
	return db
}
