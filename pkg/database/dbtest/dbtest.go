// Package dbtest provides a migrated in-memory SQLite database for tests.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/taskdesk/pkg/config"
	"github.com/platinummonkey/taskdesk/pkg/database"
)

// New returns a fresh migrated in-memory database closed at test cleanup
func New(t testing.TB) *sql.DB {
	t.Helper()

	db, err := database.Open(context.Background(), config.DatabaseConfig{
		Driver: database.DriverSQLite,
		URL:    ":memory:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = database.Migrate(context.Background(), db, database.DriverSQLite)
	require.NoError(t, err)

	return db
}
