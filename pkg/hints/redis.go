package hints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps hints in Redis so replicas share them. Redis expires
// each key at the hint's expiry.
type RedisStore struct {
	redis *redis.Client
	now   func() time.Time
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis: redisClient,
		now:   time.Now,
	}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key Key) (*Hint, error) {
	data, err := s.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			hintMisses.WithLabelValues(storeRedis).Inc()
			return nil, ErrMiss
		}
		hintErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var hint Hint
	if err := json.Unmarshal(data, &hint); err != nil {
		hintErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidHint, err)
	}

	if hint.IsExpired(s.now()) {
		_ = s.Delete(ctx, key)
		hintMisses.WithLabelValues(storeRedis).Inc()
		return nil, ErrMiss
	}

	hintHits.WithLabelValues(storeRedis).Inc()
	return &hint, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key Key, hint *Hint) error {
	if hint == nil {
		return errors.New("hint cannot be nil")
	}

	ttl := hint.TTL(s.now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(hint)
	if err != nil {
		hintErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal hint: %w", err)
	}

	if err := s.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		hintErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := s.redis.Del(ctx, key.String()).Err(); err != nil {
		hintErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
