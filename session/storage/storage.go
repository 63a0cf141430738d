// Package storage persists the refresh token outside of process memory so a
// session survives restarts.
package storage

import (
	"context"
	"time"

	"github.com/gravitational/trace"
	"github.com/redis/go-redis/v9"
)

// Store is a durable key-value slot for the refresh token.
type Store interface {
	// GetRefreshToken returns trace.NotFound when no token is stored.
	GetRefreshToken(context.Context) (string, error)
	// PutRefreshToken replaces the stored token.
	PutRefreshToken(context.Context, string) error
	// DeleteRefreshToken removes the token. Deleting a missing token is not an error.
	DeleteRefreshToken(context.Context) error
}

const (
	KindFile   = "file"
	KindDiskv  = "diskv"
	KindRedis  = "redis"
	KindMemory = "memory"

	defaultRedisKey = "market-client:refresh-token"
)

// Config selects and configures a Store.
type Config struct {
	// Kind is one of "file", "diskv", "redis" or "memory".
	Kind string `toml:"kind"`
	// Path is the file path for "file" and the directory for "diskv".
	Path string `toml:"path"`

	RedisAddr     string        `toml:"redis_addr"`
	RedisPassword string        `toml:"redis_password"`
	RedisDB       int           `toml:"redis_db"`
	RedisKey      string        `toml:"redis_key"`
	RedisTTL      time.Duration `toml:"redis_ttl"`
}

func (c *Config) CheckAndSetDefaults() error {
	if c.Kind == "" {
		c.Kind = KindFile
	}
	switch c.Kind {
	case KindFile, KindDiskv:
		if c.Path == "" {
			return trace.BadParameter("missing required value storage path for %q storage", c.Kind)
		}
	case KindRedis:
		if c.RedisAddr == "" {
			return trace.BadParameter("missing required value redis address")
		}
		if c.RedisKey == "" {
			c.RedisKey = defaultRedisKey
		}
		if c.RedisTTL < 0 {
			return trace.BadParameter("redis ttl must not be negative")
		}
	case KindMemory:
	default:
		return trace.BadParameter("unsupported storage kind %q", c.Kind)
	}
	return nil
}

// FromConfig builds the Store described by the config.
func FromConfig(c Config) (Store, error) {
	if err := c.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	switch c.Kind {
	case KindFile:
		return NewFileStore(c.Path)
	case KindDiskv:
		return NewDiskvStore(c.Path)
	case KindRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		return NewRedisStore(rdb, c.RedisKey, c.RedisTTL), nil
	default:
		return NewMemoryStore(), nil
	}
}
