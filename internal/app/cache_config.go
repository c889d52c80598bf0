package app

import (
	"strings"
	"time"

	"github.com/charlesng35/timecapsule/internal/cache"
)

const (
	defaultRedisPrefix  = "timecapsule:"
	defaultRedisTimeout = 5 * time.Second
)

// CacheConfig describes where rate limit counters and cached sessions live.
// Without Redis the database-backed store is used.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Prefix   string        `mapstructure:"prefix"`
}

// UseRedis reports whether a Redis store should be attempted.
func (c CacheConfig) UseRedis() bool {
	return c.Redis.Enabled && strings.TrimSpace(c.Redis.Address) != ""
}

// RedisClientConfig builds the Redis store options. Keys are namespaced so
// several deployments can share one Redis database.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	prefix := strings.TrimSpace(c.Redis.Prefix)
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}

	timeout := c.Redis.Timeout
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}

	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  timeout,
		Prefix:   prefix,
	}
}
