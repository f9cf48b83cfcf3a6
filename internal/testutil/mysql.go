package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/iliyamo/busbooking/internal/config"
	"github.com/iliyamo/busbooking/internal/database"
)

// NewMySQL starts a throwaway MySQL 8 container, applies the mysql
// migrations and returns a pool opened the way the server opens it. It is
// skipped in -short mode since it needs a Docker daemon.
func NewMySQL(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping MySQL container in short mode")
	}
	ctx := context.Background()
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mysql:8.0",
			ExposedPorts: []string{"3306/tcp"},
			Env: map[string]string{
				"MYSQL_ROOT_PASSWORD": "secret",
				"MYSQL_DATABASE":      "busbooking",
			},
			WaitingFor: wait.ForListeningPort("3306/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "3306")
	require.NoError(t, err)

	cfg := config.DBConfig{
		DBUser:          "root",
		DBPass:          "secret",
		DBHost:          host,
		DBPort:          port.Port(),
		DBName:          "busbooking",
		MaxOpenConns:    5,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Minute,
		ConnectAttempts: 7,
	}
	// The port opens before the init scripts finish, so ping first.
	db, err := database.Open(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(cfg.MigrateURL(), database.DialectMySQL))
	return db
}
