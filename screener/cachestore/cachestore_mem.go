package cachestore

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type MemVerdictCache struct {
	Data *expirable.LRU[string, Verdict]
}

var _ VerdictCache = (*MemVerdictCache)(nil)

func NewMemVerdictCache(capacity int, ttl time.Duration) *MemVerdictCache {
	return &MemVerdictCache{
		Data: expirable.NewLRU[string, Verdict](capacity, nil, ttl),
	}
}

func (s *MemVerdictCache) Get(ctx context.Context, version, name string) (Verdict, bool, error) {
	v, ok := s.Data.Get(verdictKey(version, name))
	return v, ok, nil
}

func (s *MemVerdictCache) Set(ctx context.Context, version, name string, v Verdict) error {
	s.Data.Add(verdictKey(version, name), v)
	return nil
}

func (s *MemVerdictCache) Purge(ctx context.Context, version, name string) error {
	s.Data.Remove(verdictKey(version, name))
	return nil
}
