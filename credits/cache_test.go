package credits

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPriceStore struct {
	inner   PriceStore
	lookups atomic.Int64
}

func (s *countingPriceStore) LookupPrice(ctx context.Context, provider, model string) (*ModelPrice, error) {
	s.lookups.Add(1)
	return s.inner.LookupPrice(ctx, provider, model)
}

func (s *countingPriceStore) DefaultPrice(ctx context.Context, provider string) (*ModelPrice, error) {
	s.lookups.Add(1)
	return s.inner.DefaultPrice(ctx, provider)
}

func TestCachedPriceStore_HitSkipsInner(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	counting := &countingPriceStore{inner: testPrices()}
	cache := NewCachedPriceStore(counting, client, time.Minute, nil)
	ctx := context.Background()

	first, err := cache.LookupPrice(ctx, "openai", "gpt-4o")
	require.NoError(t, err)
	second, err := cache.LookupPrice(ctx, "openai", "gpt-4o")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), counting.lookups.Load())
}

func TestCachedPriceStore_ExpiryReloads(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	counting := &countingPriceStore{inner: testPrices()}
	cache := NewCachedPriceStore(counting, client, time.Minute, nil)
	ctx := context.Background()

	_, err := cache.DefaultPrice(ctx, "openai")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = cache.DefaultPrice(ctx, "openai")
	require.NoError(t, err)

	assert.Equal(t, int64(2), counting.lookups.Load())
}

func TestCachedPriceStore_MissesAreNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	counting := &countingPriceStore{inner: testPrices()}
	cache := NewCachedPriceStore(counting, client, time.Minute, nil)
	ctx := context.Background()

	_, err := cache.LookupPrice(ctx, "nobody", "nothing")
	assert.ErrorIs(t, err, ErrPriceNotFound)
	_, err = cache.LookupPrice(ctx, "nobody", "nothing")
	assert.ErrorIs(t, err, ErrPriceNotFound)

	assert.Equal(t, int64(2), counting.lookups.Load())
}

func TestCachedPriceStore_RedisDownFallsThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()
	cache := NewCachedPriceStore(testPrices(), client, time.Minute, nil)

	price, err := cache.LookupPrice(context.Background(), "openai", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", price.Model)
}
