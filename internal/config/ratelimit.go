package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// RateLimitConfig tunes the Redis token bucket placed in front of the PIN
// lookup and recovery endpoints, which would otherwise allow enumerating PINs.
type RateLimitConfig struct {
	Enabled        bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	Capacity       int           `envconfig:"RATE_LIMIT_CAPACITY" default:"20"`
	RefillTokens   int           `envconfig:"RATE_LIMIT_REFILL_TOKENS" default:"1"`
	RefillInterval time.Duration `envconfig:"RATE_LIMIT_REFILL_INTERVAL" default:"3s"`
	TTL            time.Duration `envconfig:"RATE_LIMIT_TTL" default:"10m"`
	KeyStrategy    string        `envconfig:"RATE_LIMIT_KEY_STRATEGY" default:"ip_route"`
	Prefix         string        `envconfig:"RATE_LIMIT_PREFIX" default:"rl"`
	Debug          bool          `envconfig:"RATE_LIMIT_DEBUG" default:"false"`
}

// LoadRateLimitConfig binds RATE_LIMIT_* variables and clamps nonsensical
// values.
func LoadRateLimitConfig() (RateLimitConfig, error) {
	var rl RateLimitConfig
	if err := envconfig.Process("", &rl); err != nil {
		return rl, err
	}
	return rl.normalized(), nil
}

func (rl RateLimitConfig) normalized() RateLimitConfig {
	if rl.Capacity < 1 {
		rl.Capacity = 1
	}
	if rl.RefillTokens < 1 {
		rl.RefillTokens = 1
	}
	if rl.RefillInterval <= 0 {
		rl.RefillInterval = time.Second
	}
	if minTTL := 5 * rl.RefillInterval; rl.TTL < minTTL {
		rl.TTL = minTTL
	}
	return rl
}
