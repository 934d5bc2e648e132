package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisJSONCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisJSONCache(client redis.UniversalClient, prefix string) *RedisJSONCache {
	if prefix == "" {
		prefix = "cache"
	}
	return &RedisJSONCache{
		client: client,
		prefix: prefix,
	}
}

func (c *RedisJSONCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c.client == nil {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, c.dataKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (c *RedisJSONCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.client == nil || ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, c.dataKey(key), value, ttl).Err()
}

func (c *RedisJSONCache) Delete(ctx context.Context, key string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, c.dataKey(key)).Err()
}

func (c *RedisJSONCache) dataKey(key string) string {
	return c.prefix + ":" + key
}
