package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "recommender:"

type redisStore struct {
	redisClient *redis.Client
	keyPrefix   string
	ttl         time.Duration
}

// NewRedisStore stores values under the recommender: prefix. A zero ttl keeps keys forever.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration) PersistentStore {
	return &redisStore{
		redisClient: redisClient,
		keyPrefix:   redisKeyPrefix,
		ttl:         ttl,
	}
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.redisClient.Get(ctx, s.keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Nothing stored yet
		}
		return nil, unavailable("get", key, err)
	}
	return val, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.redisClient.Set(ctx, s.keyPrefix+key, value, s.ttl).Err(); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

func (s *redisStore) Remove(ctx context.Context, key string) error {
	if err := s.redisClient.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return unavailable("remove", key, err)
	}
	return nil
}
