package security

import (
	"context"
	"fmt"
	"time"

	"github.com/SwiftFiat/SwiftFiat-Settlement/services/redis"
	"github.com/patrickmn/go-cache"
)

// Cache is an in-process key/value store used in place of Redis when no
// Redis host is configured. It is only safe for a single replica.
type Cache struct {
	c *cache.Cache
}

var _ redis.KeyValue = (*Cache)(nil)

// NewCache creates a cache with a default expiration time of 5 minutes, which
// purges expired items every 10 minutes.
func NewCache() *Cache {
	return &Cache{
		c: cache.New(5*time.Minute, 10*time.Minute),
	}
}

func (cm *Cache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	if expiration <= 0 {
		expiration = cache.NoExpiration
	}
	cm.c.Set(key, fmt.Sprint(value), expiration)
	return nil
}

func (cm *Cache) Get(_ context.Context, key string) (string, error) {
	val, found := cm.c.Get(key)
	if !found {
		return "", redis.ErrCacheMiss
	}
	return val.(string), nil
}

func (cm *Cache) Delete(_ context.Context, key string) error {
	cm.c.Delete(key)
	return nil
}

func (cm *Cache) Stop() error {
	cm.c.Flush()
	return nil
}
