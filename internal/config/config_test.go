package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setRequired(t *testing.T) {
	t.Setenv("DB_USER", "bus")
	t.Setenv("DB_NAME", "busbooking")
	t.Setenv("JWT_SECRET", "super-secret-value")
	t.Setenv("CSRF_KEY", "0123456789abcdef0123456789abcdef")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load("", zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "3306", cfg.DBPort)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, "busbooking.events", cfg.EventsQueue)
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, "bus@tcp(127.0.0.1:3306)/busbooking?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true", cfg.MySQLDSN())
	assert.Equal(t, "mysql://bus@tcp(127.0.0.1:3306)/busbooking?multiStatements=true", cfg.MigrateURL())
}

func TestLoadMissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "")
	require.NoError(t, os.Unsetenv("JWT_SECRET"))

	_, err := Load("", zap.NewNop())
	assert.Error(t, err)
}

func TestSeedEmails(t *testing.T) {
	ac := AuthConfig{AdminSeedEmails: " Root@Example.com, ,ops@example.com "}
	assert.Equal(t, []string{"root@example.com", "ops@example.com"}, ac.SeedEmails())
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", mask(""))
	assert.Equal(t, "****", mask("abc"))
	assert.Equal(t, "ab****gh", mask("abcdefgh"))
}

func TestRateLimitNormalized(t *testing.T) {
	rl := RateLimitConfig{Capacity: 0, RefillTokens: 0, RefillInterval: 0, TTL: time.Second}.normalized()
	assert.Equal(t, 1, rl.Capacity)
	assert.Equal(t, 1, rl.RefillTokens)
	assert.Equal(t, time.Second, rl.RefillInterval)
	assert.Equal(t, 5*time.Second, rl.TTL)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	cc, err := LoadCacheConfig()
	require.NoError(t, err)
	assert.True(t, cc.Methods["GET"])
	assert.True(t, cc.Methods["HEAD"])
	assert.Equal(t, 5*time.Minute, cc.TTL)
}
