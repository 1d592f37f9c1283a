package keyset

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps the registry in a Redis SET under one well-known key, so every
// service instance sharing the cache also shares the registry.
type Redis struct {
	rdb redis.UniversalClient
	key string
	ttl time.Duration
}

var _ KeySet = (*Redis)(nil)

// NewRedis stores the set under "keys:<namespace>". When ttl > 0 the set's
// expiry is refreshed on every Add; it should be at least the longest cache
// TTL so a registered entry never outlives its registration.
func NewRedis(client redis.UniversalClient, namespace string, ttl time.Duration) *Redis {
	return &Redis{rdb: client, key: "keys:" + namespace, ttl: ttl}
}

func (s *Redis) Add(ctx context.Context, key string) error {
	if s.ttl <= 0 {
		return s.rdb.SAdd(ctx, s.key, key).Err()
	}
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, s.key, key)
		p.Expire(ctx, s.key, s.ttl)
		return nil
	})
	return err
}

// Drain reads and deletes the set inside MULTI/EXEC so a concurrent Add lands
// either in the returned slice or in the next drain.
func (s *Redis) Drain(ctx context.Context) ([]string, error) {
	var members *redis.StringSliceCmd
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		members = p.SMembers(ctx, s.key)
		p.Del(ctx, s.key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return members.Val(), nil
}
