package rights

import (
	"context"
	"database/sql"

	"github.com/semanticlink/todo-hypermedia-sub002/pkg/storage"
	"github.com/sirupsen/logrus"
)

// Migrations returns the schema of the SQL rights store.
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create user_rights table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_rights (
					id VARCHAR(36) PRIMARY KEY,
					resource_id VARCHAR(255) NOT NULL,
					type INTEGER NOT NULL,
					user_id VARCHAR(255) NOT NULL,
					rights BIGINT NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (user_id, resource_id, type)
				);

				CREATE INDEX IF NOT EXISTS idx_user_rights_resource_id ON user_rights(resource_id);
			`,
		},
		{
			Version:     2,
			Description: "Create user_inherit_rights table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_inherit_rights (
					id VARCHAR(36) PRIMARY KEY,
					resource_id VARCHAR(255) NOT NULL,
					type INTEGER NOT NULL,
					user_id VARCHAR(255) NOT NULL,
					rights BIGINT NOT NULL,
					inherit_type INTEGER NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (user_id, resource_id, type, inherit_type)
				);

				CREATE INDEX IF NOT EXISTS idx_user_inherit_rights_resource_id ON user_inherit_rights(resource_id);
			`,
		},
	}
}

// RunMigrations creates or upgrades the rights tables.
func RunMigrations(ctx context.Context, db *sql.DB, dialect storage.Dialect, logger logrus.FieldLogger) error {
	return storage.RunMigrations(ctx, db, dialect, "rights", Migrations(), logger)
}
