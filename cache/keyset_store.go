package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/upb/identity-core/cognito"
)

const keySetKeyPrefix = "identity:jwks:"

// RedisKeySetStore implements cognito.KeySetStore on Redis
type RedisKeySetStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisKeySetStore creates a key set store
func NewRedisKeySetStore(client redis.UniversalClient) *RedisKeySetStore {
	return &RedisKeySetStore{client: client, prefix: keySetKeyPrefix}
}

func (s *RedisKeySetStore) key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return s.prefix + hex.EncodeToString(sum[:8])
}

// Load returns the stored key set for url, or nil on a miss
func (s *RedisKeySetStore) Load(ctx context.Context, url string) (*cognito.StoredKeySet, error) {
	raw, err := s.client.Get(ctx, s.key(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get key set: %w", err)
	}

	var set cognito.StoredKeySet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("decode stored key set: %w", err)
	}
	return &set, nil
}

// Save stores the key set for url with ttl
func (s *RedisKeySetStore) Save(ctx context.Context, url string, set *cognito.StoredKeySet, ttl time.Duration) error {
	encoded, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode key set: %w", err)
	}
	if err := s.client.Set(ctx, s.key(url), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("redis set key set: %w", err)
	}
	return nil
}
