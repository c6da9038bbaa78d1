package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisTokenKey is the key holding the token pair when tokens are shared through Redis.
const DefaultRedisTokenKey = "monitorctl:token"

// redisTokenRepo stores the token pair as one JSON value, so several hosts can share a session.
type redisTokenRepo struct {
	rdb *redis.Client
	key string
}

// NewRedisTokenRepository creates a TokenRepository backed by Redis.
func NewRedisTokenRepository(rdb *redis.Client, key string) TokenRepository {
	if key == "" {
		key = DefaultRedisTokenKey
	}
	return &redisTokenRepo{rdb: rdb, key: key}
}

// NewRedisClient parses a redis:// URL and returns a connected client.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func (r *redisTokenRepo) Get(ctx context.Context) (*Token, error) {
	if r.rdb == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	raw, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var token Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("failed to decode stored token: %w", err)
	}
	return &token, nil
}

func (r *redisTokenRepo) Upsert(ctx context.Context, token *Token) error {
	if r.rdb == nil {
		return fmt.Errorf("repository not initialized")
	}
	token.ID = tokenRowID
	token.UpdatedAt = time.Now()
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return r.rdb.Set(ctx, r.key, raw, 0).Err()
}

func (r *redisTokenRepo) Clear(ctx context.Context) error {
	if r.rdb == nil {
		return fmt.Errorf("repository not initialized")
	}
	return r.rdb.Del(ctx, r.key).Err()
}
