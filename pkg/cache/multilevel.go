package cache

import (
	"context"
	"time"
)

// MultiLevelCache 实现多级缓存 (L1: Memory, L2: Redis)
// 只缓存命中结果，适合 "一旦写入直到过期都不变" 的数据，例如 token 吊销列表
type MultiLevelCache struct {
	local    Cache
	remote   Cache
	localTTL time.Duration
}

// NewMultiLevelCache localTTL 为 L1 回写的最长时间
func NewMultiLevelCache(local, remote Cache, localTTL time.Duration) *MultiLevelCache {
	return &MultiLevelCache{
		local:    local,
		remote:   remote,
		localTTL: localTTL,
	}
}

func (m *MultiLevelCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	// 先写 L2，成功后再写 L1
	if err := m.remote.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return m.local.Set(ctx, key, value, m.l1TTL(ttl))
}

func (m *MultiLevelCache) Get(ctx context.Context, key string, target interface{}) error {
	// 1. 查 L1
	if err := m.local.Get(ctx, key, target); err == nil {
		return nil
	}

	// 2. 查 L2，命中后回写 L1
	if err := m.remote.Get(ctx, key, target); err != nil {
		return err
	}
	_ = m.local.Set(ctx, key, target, m.localTTL)
	return nil
}

// Take 以 L2 为准，L1 只做清理
func (m *MultiLevelCache) Take(ctx context.Context, key string, target interface{}) error {
	_ = m.local.Delete(ctx, key)
	return m.remote.Take(ctx, key, target)
}

func (m *MultiLevelCache) Delete(ctx context.Context, key string) error {
	_ = m.local.Delete(ctx, key)
	return m.remote.Delete(ctx, key)
}

func (m *MultiLevelCache) l1TTL(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < m.localTTL {
		return ttl
	}
	return m.localTTL
}
