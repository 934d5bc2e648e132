package service

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisSessionStore keeps one set per user at {prefix}:{userId}. Entries have
// no TTL; the cookie max-age bounds their useful lifetime.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSessionStore(client redis.UniversalClient, prefix string) *RedisSessionStore {
	if prefix == "" {
		prefix = "auth"
	}
	return &RedisSessionStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisSessionStore) MarkValid(ctx context.Context, userID string, issuedAt int64) error {
	if err := s.client.SAdd(ctx, s.key(userID), formatIssuedAt(issuedAt)).Err(); err != nil {
		return fmt.Errorf("mark session valid: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) IsValid(ctx context.Context, userID string, issuedAt int64) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key(userID), formatIssuedAt(issuedAt)).Result()
	if err != nil {
		return false, fmt.Errorf("check session validity: %w", err)
	}
	return ok, nil
}

func (s *RedisSessionStore) Revoke(ctx context.Context, userID string, issuedAt int64) error {
	if err := s.client.SRem(ctx, s.key(userID), formatIssuedAt(issuedAt)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// ListValid skips members that are not integers.
func (s *RedisSessionStore) ListValid(ctx context.Context, userID string) ([]int64, error) {
	members, err := s.client.SMembers(ctx, s.key(userID)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]int64, 0, len(members))
	for _, m := range members {
		iat, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, iat)
	}
	slices.Sort(out)
	return out, nil
}

func (s *RedisSessionStore) RevokeAll(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("revoke all sessions: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) key(userID string) string {
	return s.prefix + ":" + userID
}

func formatIssuedAt(issuedAt int64) string {
	return strconv.FormatInt(issuedAt, 10)
}
