// Package idempotency is a redis-backed seen-store used as a fast-path
// replay guard on mutating HTTP endpoints. It is advisory: the durable
// idempotency guarantee lives in the ledger's (ref, direction) key.
package idempotency

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Key(parts ...string) string {
	return "idem:" + strings.Join(parts, ":")
}

// Seen marks the key and reports whether it was already marked.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}
