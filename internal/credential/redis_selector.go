package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/storyreel/api/internal/failure"
)

const (
	fieldKey      = "key"
	fieldSelected = "selected"
)

// RedisSelector stores selections in a per-user hash so every API replica
// and worker sees the same credential state.
type RedisSelector struct {
	redis      *redis.Client
	defaultKey string
	ttl        time.Duration
}

func NewRedisSelector(redisClient *redis.Client, defaultKey string, ttl time.Duration) *RedisSelector {
	return &RedisSelector{redis: redisClient, defaultKey: defaultKey, ttl: ttl}
}

func credentialKey(userID string) string {
	return fmt.Sprintf("credential:%s", userID)
}

func (s *RedisSelector) HasSelected(ctx context.Context, userID string) (bool, error) {
	val, err := s.redis.HGet(ctx, credentialKey(userID), fieldSelected).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read credential: %w", err)
	}
	return val == "1", nil
}

func (s *RedisSelector) Select(ctx context.Context, userID, apiKey string) error {
	key := apiKey
	if key == "" {
		key = s.defaultKey
	}
	if key == "" {
		return failure.ErrCredentialRequired
	}

	redisKey := credentialKey(userID)
	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, redisKey, fieldKey, key, fieldSelected, "1")
	if s.ttl > 0 {
		pipe.Expire(ctx, redisKey, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

func (s *RedisSelector) APIKey(ctx context.Context, userID string) (string, error) {
	vals, err := s.redis.HMGet(ctx, credentialKey(userID), fieldKey, fieldSelected).Result()
	if err != nil {
		return "", fmt.Errorf("failed to read credential: %w", err)
	}
	key, _ := vals[0].(string)
	selected, _ := vals[1].(string)
	if key == "" || selected != "1" {
		return "", failure.ErrCredentialRequired
	}
	return key, nil
}

func (s *RedisSelector) Invalidate(ctx context.Context, userID string) error {
	if err := s.redis.HSet(ctx, credentialKey(userID), fieldSelected, "0").Err(); err != nil {
		return fmt.Errorf("failed to invalidate credential: %w", err)
	}
	return nil
}
