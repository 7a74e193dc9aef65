package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
)

// BigCache 实现了 Cache 接口，使用 allegro/bigcache 作为底层存储。
// 所有条目共享构造时指定的 TTL。
type BigCache struct {
	cache *bigcache.BigCache
}

// NewBigCache 创建 BigCache。maxMB 为 0 表示不限制容量。
func NewBigCache(ttl time.Duration, maxMB int) (*BigCache, error) {
	config := bigcache.DefaultConfig(ttl)
	// 定价结果条目很小，缩小默认预分配
	config.Shards = 64
	config.MaxEntriesInWindow = 10_000
	config.MaxEntrySize = 256
	config.HardMaxCacheSize = maxMB
	config.CleanWindow = min(ttl, 5*time.Minute)
	config.Verbose = false

	cache, err := bigcache.New(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("init bigcache failed: %w", err)
	}

	return &BigCache{cache: cache}, nil
}

// Get 读取 key 对应的值并反序列化到 value（必须为指针）。未命中返回 ErrCacheMiss。
func (c *BigCache) Get(_ context.Context, key string, value any) error {
	data, err := c.cache.Get(key)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return ErrCacheMiss.Clone().WithContext("key", key)
		}
		return err
	}
	return json.Unmarshal(data, value)
}

// Set 写入键值对。bigcache 不支持按键过期，expiration 被忽略。
func (c *BigCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.cache.Set(key, data)
}

// Delete 删除一个或多个键，键不存在不视为错误。
func (c *BigCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		if err := c.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
			return err
		}
	}
	return nil
}

// Exists 检查键是否存在。
func (c *BigCache) Exists(_ context.Context, key string) (bool, error) {
	_, err := c.cache.Get(key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bigcache.ErrEntryNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Len 返回当前条目数。
func (c *BigCache) Len() int {
	return c.cache.Len()
}

// Close 释放底层资源。
func (c *BigCache) Close() error {
	return c.cache.Close()
}
