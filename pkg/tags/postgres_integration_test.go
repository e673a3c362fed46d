//go:build integration

package tags

import (
	"context"
	"testing"

	"github.com/semanticlink/todo-hypermedia-sub002/pkg/storage"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/storage/storagetest"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	counterFactories["postgres"] = func(t *testing.T) Tally {
		db := storagetest.Postgres(t)
		logger, _ := test.NewNullLogger()
		require.NoError(t, RunMigrations(context.Background(), db, storage.DialectPostgres, logger))
		return NewSQLCounter(db, storage.DialectPostgres)
	}
}

func TestSQLCounter_PostgresConcurrentIncrements(t *testing.T) {
	counter := counterFactories["postgres"](t)
	ctx := context.Background()

	done := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func() { done <- counter.Increment(ctx, "busy") }()
	}
	for i := 0; i < 20; i++ {
		require.NoError(t, <-done)
	}

	n, err := counter.Count(ctx, "busy")
	require.NoError(t, err)
	assert.Equal(t, int64(20), n)
}
