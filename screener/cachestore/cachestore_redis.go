package cachestore

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

type RedisVerdictCache struct {
	Data *cache.Cache
	TTL  time.Duration
}

var _ VerdictCache = (*RedisVerdictCache)(nil)

func NewRedisVerdictCache(rdb *redis.Client, ttl time.Duration) *RedisVerdictCache {
	return &RedisVerdictCache{
		Data: cache.New(&cache.Options{
			Redis:      rdb,
			LocalCache: cache.NewTinyLFU(10_000, ttl),
		}),
		TTL: ttl,
	}
}

func redisVerdictKey(version, name string) string {
	return "vigil/verdict/" + verdictKey(version, name)
}

func (s *RedisVerdictCache) Get(ctx context.Context, version, name string) (Verdict, bool, error) {
	var v Verdict
	err := s.Data.Get(ctx, redisVerdictKey(version, name), &v)
	if errors.Is(err, cache.ErrCacheMiss) {
		return Verdict{}, false, nil
	}
	if err != nil {
		return Verdict{}, false, err
	}
	return v, true, nil
}

func (s *RedisVerdictCache) Set(ctx context.Context, version, name string, v Verdict) error {
	return s.Data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   redisVerdictKey(version, name),
		Value: v,
		TTL:   s.TTL,
	})
}

func (s *RedisVerdictCache) Purge(ctx context.Context, version, name string) error {
	err := s.Data.Delete(ctx, redisVerdictKey(version, name))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}
