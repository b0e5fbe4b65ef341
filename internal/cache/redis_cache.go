package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"kasirpos/internal/domain"
)

const keyPrefix = "trx:"

type RedisTransactionCache struct {
	client *redis.Client
}

func NewRedisTransactionCache(addr string, password string, db int) *RedisTransactionCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisTransactionCache{client: client}
}

func NewRedisTransactionCacheFromClient(client *redis.Client) *RedisTransactionCache {
	return &RedisTransactionCache{client: client}
}

func (c *RedisTransactionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisTransactionCache) Close() error {
	return c.client.Close()
}

func (c *RedisTransactionCache) Get(ctx context.Context, id string) (*domain.Transaction, bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+id).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var t domain.Transaction
	if err := json.Unmarshal([]byte(val), &t); err != nil {
		return nil, false, err
	}
	return &t, true, nil
}

func (c *RedisTransactionCache) Set(ctx context.Context, t *domain.Transaction, ttl time.Duration) error {
	if t == nil {
		return nil
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+t.ID, payload, ttl).Err()
}

func (c *RedisTransactionCache) Delete(ctx context.Context, id string) error {
	return c.client.Del(ctx, keyPrefix+id).Err()
}
