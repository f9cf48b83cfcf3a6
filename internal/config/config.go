package config // package config loads application configuration from environment variables

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

// Config holds all runtime configuration values.  Sub-configs are embedded
// so that envconfig keeps the variable names flat (APP_PORT, DB_HOST, ...).
type Config struct {
	AppConfig
	DBConfig
	AuthConfig
	BrokerConfig
	MailConfig
	StorageConfig
}

// AppConfig describes the HTTP server itself.
type AppConfig struct {
	Env     string `envconfig:"APP_ENV" default:"dev"`
	Port    string `envconfig:"APP_PORT" default:"8080"`
	BaseURL string `envconfig:"APP_BASE_URL" default:"http://localhost:8080"`
	// StaticDir holds manifest.json and sw.js for the PWA shell.
	StaticDir string `envconfig:"APP_STATIC_DIR" default:"static"`
}

// DBConfig holds the MySQL connection parameters.
type DBConfig struct {
	DBUser string `envconfig:"DB_USER" required:"true"`
	DBPass string `envconfig:"DB_PASS" masked:"true"`
	DBHost string `envconfig:"DB_HOST" default:"127.0.0.1"`
	DBPort string `envconfig:"DB_PORT" default:"3306"`
	DBName string `envconfig:"DB_NAME" required:"true"`
	// AutoMigrate applies embedded schema migrations on startup.
	AutoMigrate bool `envconfig:"DB_AUTO_MIGRATE" default:"true"`

	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"25"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`
	// ConnectAttempts bounds the startup ping loop while MySQL comes up.
	ConnectAttempts int `envconfig:"DB_CONNECT_ATTEMPTS" default:"5"`
}

// AuthConfig covers the dashboard login: session token signing, refresh
// tokens, password hashing and the accounts seeded as administrators.
type AuthConfig struct {
	JWTSecret      string `envconfig:"JWT_SECRET" required:"true" masked:"true"`
	CSRFKey        string `envconfig:"CSRF_KEY" required:"true" masked:"true"`
	SecureCookies  bool   `envconfig:"SECURE_COOKIES" default:"false"`
	AccessTTLMin   int    `envconfig:"ACCESS_TOKEN_TTL_MIN" default:"120"`
	RefreshTTLDays int    `envconfig:"REFRESH_TOKEN_TTL_DAYS" default:"14"`
	BcryptCost     int    `envconfig:"BCRYPT_COST" default:"12"`
	// AdminSeedEmails is a comma separated list of accounts promoted to
	// admin on startup; missing accounts are created with AdminSeedPassword.
	AdminSeedEmails   string `envconfig:"ADMIN_SEED_EMAILS"`
	AdminSeedPassword string `envconfig:"ADMIN_SEED_PASSWORD" masked:"true"`
}

// BrokerConfig points at RabbitMQ. An empty URL disables event publishing.
type BrokerConfig struct {
	RabbitURL   string `envconfig:"RABBITMQ_URL" masked:"true"`
	EventsQueue string `envconfig:"EVENTS_QUEUE" default:"busbooking.events"`
	ReportLog   string `envconfig:"REPORT_LOG" default:"logs/reservations.log"`
}

// MailConfig configures Resend. An empty key disables PIN emails.
type MailConfig struct {
	ResendAPIKey string `envconfig:"RESEND_API_KEY" masked:"true"`
	MailFrom     string `envconfig:"MAIL_FROM" default:"reservas@localhost"`
}

// StorageConfig locates uploaded photos and logos.
type StorageConfig struct {
	UploadDir       string `envconfig:"UPLOAD_DIR" default:"static/uploads"`
	UploadURLPrefix string `envconfig:"UPLOAD_URL_PREFIX" default:"/static/uploads"`
}

// Load reads an optional .env file and then binds environment variables
// into a Config.  A missing .env file is not an error.
func Load(path string, logger *zap.Logger) (Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			logger.Info("no .env file loaded, using process environment", zap.String("path", path), zap.Error(err))
		}
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// SeedEmails splits AdminSeedEmails into normalized addresses.
func (c AuthConfig) SeedEmails() []string {
	var out []string
	for _, p := range strings.Split(c.AdminSeedEmails, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MySQLDSN builds the go-sql-driver DSN.
func (c DBConfig) MySQLDSN() string {
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	// clientFoundRows=true -> RowsAffected counts matched rows, not changed ones
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
		c.auth(), c.DBHost, c.DBPort, c.DBName)
}

// MigrateURL builds the golang-migrate database URL.
func (c DBConfig) MigrateURL() string {
	return fmt.Sprintf("mysql://%s@tcp(%s:%s)/%s?multiStatements=true",
		c.auth(), c.DBHost, c.DBPort, c.DBName)
}

func (c DBConfig) auth() string {
	if c.DBPass == "" {
		return c.DBUser
	}
	return c.DBUser + ":" + c.DBPass
}

// Fields renders the config for startup logging with secrets masked.
func (c Config) Fields() []zap.Field {
	return []zap.Field{
		zap.String("env", c.Env),
		zap.String("port", c.Port),
		zap.String("db", fmt.Sprintf("%s@%s:%s/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName)),
		zap.String("db_pass", mask(c.DBPass)),
		zap.String("jwt_secret", mask(c.JWTSecret)),
		zap.String("rabbitmq_url", mask(c.RabbitURL)),
		zap.String("resend_api_key", mask(c.ResendAPIKey)),
		zap.Strings("admin_seed", c.SeedEmails()),
	}
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
