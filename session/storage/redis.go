package storage

import (
	"context"
	"errors"
	"time"

	"github.com/gravitational/trace"
	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	rdb redis.Cmdable
	key string
	ttl time.Duration
}

// NewRedisStore keeps the refresh token under a single redis key. A zero ttl
// keeps the key until it is deleted.
func NewRedisStore(rdb redis.Cmdable, key string, ttl time.Duration) Store {
	if key == "" {
		key = defaultRedisKey
	}
	return &redisStore{rdb: rdb, key: key, ttl: ttl}
}

func (s *redisStore) GetRefreshToken(ctx context.Context) (string, error) {
	token, err := s.rdb.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) || (err == nil && token == "") {
		return "", trace.NotFound("no refresh token stored")
	} else if err != nil {
		return "", trace.Wrap(err)
	}
	return token, nil
}

func (s *redisStore) PutRefreshToken(ctx context.Context, token string) error {
	if token == "" {
		return trace.BadParameter("empty refresh token")
	}
	return trace.Wrap(s.rdb.Set(ctx, s.key, token, s.ttl).Err())
}

func (s *redisStore) DeleteRefreshToken(ctx context.Context) error {
	return trace.Wrap(s.rdb.Del(ctx, s.key).Err())
}
