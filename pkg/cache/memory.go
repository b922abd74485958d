package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type MemoryCache struct {
	c *gocache.Cache
	// go-cache 没有 get-and-delete，Take 需要额外的锁
	mu sync.Mutex
}

func NewMemoryCache(defaultExpiration, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{
		c: gocache.New(defaultExpiration, cleanupInterval),
	}
}

func (m *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	// 存 JSON 副本，避免调用方之后修改对象影响缓存，也与 Redis 行为一致
	bytes, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Set(key, bytes, ttl)
	return nil
}

func (m *MemoryCache) Get(ctx context.Context, key string, target interface{}) error {
	m.mu.Lock()
	val, found := m.c.Get(key)
	m.mu.Unlock()
	if !found {
		return ErrMiss
	}
	return json.Unmarshal(val.([]byte), target)
}

func (m *MemoryCache) Take(ctx context.Context, key string, target interface{}) error {
	m.mu.Lock()
	val, found := m.c.Get(key)
	if found {
		m.c.Delete(key)
	}
	m.mu.Unlock()

	if !found {
		return ErrMiss
	}
	return json.Unmarshal(val.([]byte), target)
}

func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Delete(key)
	return nil
}

// Count 当前条目数 (含未清理的过期条目)
func (m *MemoryCache) Count() int {
	return m.c.ItemCount()
}
