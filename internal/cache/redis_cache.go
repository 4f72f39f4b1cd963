package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"posdemo/backend/internal/domain"
)

const cartKeyPrefix = "posdemo:cart:"

type RedisCartCache struct {
	client *redis.Client
}

func NewRedisCartCache(addr string, password string, db int) *RedisCartCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisCartCache{client: client}
}

func (c *RedisCartCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCartCache) Close() error {
	return c.client.Close()
}

func (c *RedisCartCache) Get(ctx context.Context, id string) (*domain.CartSession, bool, error) {
	val, err := c.client.Get(ctx, cartKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var session domain.CartSession
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, false, err
	}
	return &session, true, nil
}

func (c *RedisCartCache) Set(ctx context.Context, session *domain.CartSession, ttl time.Duration) error {
	if session == nil {
		return nil
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cartKeyPrefix+session.ID, payload, ttl).Err()
}

func (c *RedisCartCache) Delete(ctx context.Context, id string) error {
	return c.client.Del(ctx, cartKeyPrefix+id).Err()
}
