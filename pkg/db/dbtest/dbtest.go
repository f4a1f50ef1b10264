// Package dbtest opens isolated in-memory SQLite databases carrying the full
// schema for repository and service tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderdesk-backend/pkg/config"
	"github.com/angelmondragon/orderdesk-backend/pkg/db"
	"github.com/angelmondragon/orderdesk-backend/pkg/db/models"
)

// Open returns a fresh schema-migrated database unique to the calling test.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	_, conn := OpenClient(t)
	return conn
}

// OpenClient is Open plus the db.Client services use for transactions.
func OpenClient(t testing.TB) (*db.Client, *gorm.DB) {
	t.Helper()

	client, err := db.New(context.Background(), config.DBConfig{
		Driver: db.DriverSQLite,
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared&_fk=1",
		// One connection keeps shared-cache sqlite from reporting table
		// locks between a transaction and concurrent reads.
		MaxOpenConns: 1,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	conn := client.DB()
	require.NoError(t, conn.AutoMigrate(models.All()...))
	return client, conn
}
