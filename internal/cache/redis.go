package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const redisOpTimeout = 5 * time.Second

// RedisStore is the remote backend for deployments that share a cache
// between instances. TTL expiry still happens in the envelope layer;
// Redis-side expiry is only a safety net set to the longest TTL.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *logrus.Logger
}

func NewRedisStore(addr, password string, db int, keyPrefix string, logger *logrus.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = logrus.New()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, logger: logger}, nil
}

func (s *RedisStore) Get(key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.WithError(err).WithField("key", key).Warn("Failed to read cache key from redis")
		}
		return nil, false
	}
	return data, true
}

func (s *RedisStore) Put(key string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	return s.client.Set(ctx, s.keyPrefix+key, data, TTLIsochrones).Err()
}

func (s *RedisStore) Clear(prefix string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	iter := s.client.Scan(ctx, 0, s.keyPrefix+prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}
