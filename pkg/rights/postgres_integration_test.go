//go:build integration

package rights

import (
	"context"
	"testing"

	"github.com/semanticlink/todo-hypermedia-sub002/pkg/storage"
	"github.com/semanticlink/todo-hypermedia-sub002/pkg/storage/storagetest"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// The backend behaviour tests also run against PostgreSQL with
// go test -tags integration.
func init() {
	storeFactories["postgres"] = func(t *testing.T) Store {
		db := storagetest.Postgres(t)
		logger, _ := test.NewNullLogger()
		require.NoError(t, RunMigrations(context.Background(), db, storage.DialectPostgres, logger))
		return NewSQLStore(db, storage.DialectPostgres)
	}
}
