package cachestore

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/vorth-network/vigil/screener/namematch"
)

func testVerdictCache(t *testing.T, c VerdictCache) {
	assert := assert.New(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "v1", "john")
	assert.NoError(err)
	assert.False(ok)

	hit := Verdict{Matched: true, Match: &namematch.Match{Tier: namematch.TierExact, IdentityID: "1", Name: "john", Ratio: 1.0}}
	assert.NoError(c.Set(ctx, "v1", "john", hit))

	v, ok, err := c.Get(ctx, "v1", "john")
	assert.NoError(err)
	assert.True(ok)
	assert.Equal(hit, v)

	// other corpus versions are separate
	_, ok, err = c.Get(ctx, "v2", "john")
	assert.NoError(err)
	assert.False(ok)

	assert.NoError(c.Purge(ctx, "v1", "john"))
	_, ok, err = c.Get(ctx, "v1", "john")
	assert.NoError(err)
	assert.False(ok)
	assert.NoError(c.Purge(ctx, "v1", "john"))
}

func TestMemVerdictCache(t *testing.T) {
	testVerdictCache(t, NewMemVerdictCache(100, time.Minute))
}

func TestMemVerdictCacheExpiry(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := NewMemVerdictCache(100, 10*time.Millisecond)
	assert.NoError(c.Set(ctx, "v1", "x", Verdict{}))
	assert.Eventually(func() bool {
		_, ok, _ := c.Get(ctx, "v1", "x")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestRedisVerdictCache(t *testing.T) {
	t.Skip("live test, need redis running locally")

	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	testVerdictCache(t, NewRedisVerdictCache(rdb, time.Minute))
}
