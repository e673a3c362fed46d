package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDialect_Rebind(t *testing.T) {
	query := "SELECT id FROM user_rights WHERE user_id = ? AND resource_id = ? AND type = ?"

	assert.Equal(t, query, DialectSQLite.Rebind(query))
	assert.Equal(t,
		"SELECT id FROM user_rights WHERE user_id = $1 AND resource_id = $2 AND type = $3",
		DialectPostgres.Rebind(query))
}

func TestDialect_DriverName(t *testing.T) {
	assert.Equal(t, "sqlite3", DialectSQLite.DriverName())
	assert.Equal(t, "postgres", DialectPostgres.DriverName())
}

func TestConfig_SQLType(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{name: "sqlite rights", config: Config{Type: TypeSQLite}, want: TypeSQLite},
		{name: "postgres rights", config: Config{Type: TypePostgres}, want: TypePostgres},
		{name: "redis rights default to sqlite", config: Config{Type: TypeRedis}, want: TypeSQLite},
		{name: "explicit database", config: Config{Type: TypeRedis, Database: TypePostgres}, want: TypePostgres},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.SQLType())
		})
	}
}

func TestConfig_UsesRedis(t *testing.T) {
	assert.False(t, DefaultConfig().UsesRedis())
	assert.True(t, Config{Type: TypeRedis}.UsesRedis())
	assert.True(t, Config{Type: TypeSQLite, TagCounter: TypeRedis}.UsesRedis())
}
