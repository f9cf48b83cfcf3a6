package config

// This file defines a Redis client constructor for the application.  Redis is
// used for rate limiting the PIN endpoints and for caching the public company
// profile.  If connection fails during startup, the function returns nil and
// callers degrade gracefully by disabling caching and rate limiting.

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
)

// RedisConfig mirrors the REDIS_* variables.  Addr takes precedence over
// Host/Port only when Host is empty.
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST"`
	Port     string `envconfig:"REDIS_PORT" default:"6379"`
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	TLS      bool   `envconfig:"REDIS_TLS" default:"false"`
}

// LoadRedisConfig binds REDIS_* variables.
func LoadRedisConfig() (RedisConfig, error) {
	var rc RedisConfig
	err := envconfig.Process("", &rc)
	return rc, err
}

// NewRedisClient instantiates a Redis client.  The returned client is nil if
// the server does not answer a ping within two seconds.
func NewRedisClient(rc RedisConfig) *redis.Client {
	addr := rc.Addr
	if rc.Host != "" {
		addr = rc.Host + ":" + rc.Port
	}
	var tlsConf *tls.Config
	if rc.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      addr,
		Password:  rc.Password,
		DB:        rc.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
