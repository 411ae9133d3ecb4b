package shared

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps shared values in Redis. It is suitable for multi-server
// deployments.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var (
	_ Store   = (*RedisStore)(nil)
	_ Swapper = (*RedisStore)(nil)
)

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix sets the key prefix. Default: "forgewire:shared:".
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithRedisTTL expires values that were not written for d. Zero keeps them
// forever.
func WithRedisTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = d
	}
}

// NewRedisStore creates a store over client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: "forgewire:shared:"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	b, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return json.RawMessage(b), true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, value json.RawMessage) error {
	return s.client.Set(ctx, s.prefix+key, []byte(value), s.ttl).Err()
}

// CompareAndSwap implements Swapper with WATCH/MULTI/EXEC.
func (s *RedisStore) CompareAndSwap(ctx context.Context, key string, prev, next json.RawMessage) (bool, error) {
	k := s.prefix + key
	swapped := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, k).Bytes()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists = false
		} else if err != nil {
			return err
		}

		if prev == nil && exists {
			return nil
		}
		if prev != nil && (!exists || !bytes.Equal(cur, prev)) {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, k, []byte(next), s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		return nil
	}, k)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return swapped, nil
}
