package countstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func testCountStore(t *testing.T, cs CountStore, server string) {
	assert := assert.New(t)
	ctx := context.Background()

	c, err := cs.GetCount(ctx, CounterJoin, server, PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
	assert.NoError(cs.Increment(ctx, CounterJoin, server))
	assert.NoError(cs.Increment(ctx, CounterJoin, server))

	for _, period := range Periods {
		c, err = cs.GetCount(ctx, CounterJoin, server, period)
		assert.NoError(err)
		assert.Equal(2, c, period)
	}

	assert.NoError(cs.IncrementDistinct(ctx, CounterIdentity, server, "one"))
	assert.NoError(cs.IncrementDistinct(ctx, CounterIdentity, server, "one"))
	assert.NoError(cs.IncrementDistinct(ctx, CounterIdentity, server, "two"))
	for _, period := range Periods {
		c, err = cs.GetCountDistinct(ctx, CounterIdentity, server, period)
		assert.NoError(err)
		assert.Equal(2, c, period)
	}
}

func TestMemCountStoreBasics(t *testing.T) {
	testCountStore(t, NewMemCountStore(), "100")
}

func TestMemCountStorePeriodsRoll(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	now := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	cs := NewMemCountStore()
	cs.Now = func() time.Time { return now }
	assert.NoError(cs.Increment(ctx, CounterMatch, "1"))

	now = now.Add(time.Hour)
	assert.NoError(cs.Increment(ctx, CounterMatch, "1"))

	c, _ := cs.GetCount(ctx, CounterMatch, "1", PeriodHour)
	assert.Equal(1, c)
	c, _ = cs.GetCount(ctx, CounterMatch, "1", PeriodDay)
	assert.Equal(2, c)

	now = now.Add(24 * time.Hour)
	c, _ = cs.GetCount(ctx, CounterMatch, "1", PeriodDay)
	assert.Equal(0, c)
	c, _ = cs.GetCount(ctx, CounterMatch, "1", PeriodTotal)
	assert.Equal(2, c)

	// servers are counted separately
	c, _ = cs.GetCount(ctx, CounterMatch, "2", PeriodTotal)
	assert.Equal(0, c)
}

func TestMemCountStoreConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()
	var wg sync.WaitGroup
	inc := func(server string, times int) {
		defer wg.Done()
		for i := 0; i < times; i++ {
			assert.NoError(cs.Increment(ctx, CounterJoin, server))
			assert.NoError(cs.IncrementDistinct(ctx, CounterIdentity, server, "same"))
			_, err := cs.GetCount(ctx, CounterJoin, server, PeriodTotal)
			assert.NoError(err)
		}
	}
	wg.Add(4)
	go inc("1", 10)
	go inc("1", 10)
	go inc("2", 6)
	go inc("2", 6)
	wg.Wait()

	c, err := cs.GetCount(ctx, CounterJoin, "1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(20, c)
	c, err = cs.GetCount(ctx, CounterJoin, "2", PeriodTotal)
	assert.NoError(err)
	assert.Equal(12, c)
	c, err = cs.GetCountDistinct(ctx, CounterIdentity, "2", PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)
}

func TestRedisCountStore(t *testing.T) {
	t.Skip("live test, need redis running locally")

	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	testCountStore(t, NewRedisCountStore(rdb), "test-"+time.Now().Format(time.RFC3339Nano))
}
