package credits

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedPriceStore caches positive pricing lookups in redis. Pricing rows
// change rarely; the TTL bounds staleness after a price update. Cache
// failures fall through to the inner store.
type CachedPriceStore struct {
	inner  PriceStore
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedPriceStore wraps inner with a redis cache. ttl zero means five
// minutes.
func NewCachedPriceStore(inner PriceStore, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedPriceStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedPriceStore{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "price_cache")),
	}
}

func (c *CachedPriceStore) LookupPrice(ctx context.Context, provider, model string) (*ModelPrice, error) {
	return c.cached(ctx, "price:"+provider+":"+model, func() (*ModelPrice, error) {
		return c.inner.LookupPrice(ctx, provider, model)
	})
}

func (c *CachedPriceStore) DefaultPrice(ctx context.Context, provider string) (*ModelPrice, error) {
	return c.cached(ctx, "price:default:"+provider, func() (*ModelPrice, error) {
		return c.inner.DefaultPrice(ctx, provider)
	})
}

func (c *CachedPriceStore) cached(ctx context.Context, key string, load func() (*ModelPrice, error)) (*ModelPrice, error) {
	if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var p ModelPrice
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
	}

	p, err := load()
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(p); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Debug("price cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return p, nil
}
