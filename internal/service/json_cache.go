package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

type NoopJSONCache struct{}

func NewNoopJSONCache() *NoopJSONCache { return &NoopJSONCache{} }

func (NoopJSONCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (NoopJSONCache) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (NoopJSONCache) Delete(context.Context, string) error { return nil }

// GetOrFetch returns the cached value for key or calls fetch and stores its
// result. Cache failures are logged and never returned.
func GetOrFetch[T any](ctx context.Context, cache JSONCache, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	if cache != nil {
		raw, ok, err := cache.Get(ctx, key)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "json cache get failed", "key", key, "error", err)
		case ok:
			var cached T
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
			slog.WarnContext(ctx, "json cache entry undecodable", "key", key)
		}
	}

	value, err := fetch(ctx)
	if err != nil {
		return value, err
	}
	if cache == nil || ttl <= 0 {
		return value, nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		slog.WarnContext(ctx, "json cache encode failed", "key", key, "error", err)
		return value, nil
	}
	if err := cache.Set(ctx, key, payload, ttl); err != nil {
		slog.WarnContext(ctx, "json cache set failed", "key", key, "error", err)
	}
	return value, nil
}
