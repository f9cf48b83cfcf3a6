// Package testutil holds helpers shared by package tests.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/iliyamo/busbooking/internal/database"
)

// NewDB returns a migrated SQLite database living in a temp file. A single
// connection is used so that transactions serialise the way they do on
// MySQL under row locks.
func NewDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "busbooking.db")
	require.NoError(t, database.Migrate("sqlite://"+path, database.DialectSQLite))

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Ping())
	return db
}
