package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the token under prefix:key.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	key    string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore returns a store on redisClient. A zero ttl keeps the record until cleared.
func NewRedisStore(redisClient redis.UniversalClient, prefix, key string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "atk"
	}
	if key == "" {
		key = "default"
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
		key:    key,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *RedisStore) redisKey() string {
	return s.prefix + ":" + s.key
}

func (s *RedisStore) Load(ctx context.Context) (string, error) {
	data, err := s.redis.Get(ctx, s.redisKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrBackend, err)
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return "", err
	}
	return rec.Token, nil
}

func (s *RedisStore) Save(ctx context.Context, token string) error {
	encoded, err := encodeRecord(token, s.now())
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.redisKey(), encoded, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.redisKey()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}
