package app

import (
	"strings"

	"github.com/escalaapp/escala/internal/cache"
)

// RedisClientConfig maps the cache section onto the Redis client options.
// The password is passed through untrimmed.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}
