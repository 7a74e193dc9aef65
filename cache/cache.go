// Package cache 提供缓存抽象及基于 allegro/bigcache 的本地实现。
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/wyfcoding/valuation/xerrors"
)

// ErrCacheMiss 缓存未命中。
var ErrCacheMiss = xerrors.New(xerrors.ErrNotFound, 404101, "cache miss", "", nil)

// Cache 定义缓存接口，值以 JSON 编码存储。
type Cache interface {
	Get(ctx context.Context, key string, value any) error
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

// IsMiss 判断错误是否为缓存未命中。
func IsMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
