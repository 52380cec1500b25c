package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// Catalog rows change only when content is republished.
const ContentTTL = 10 * time.Minute

// ContentCache memoizes catalog lookups that sit on the heartbeat path.
type ContentCache struct {
	redis *RedisCache
}

func NewContentCache(redis *RedisCache) *ContentCache {
	return &ContentCache{redis: redis}
}

func requiredSecondsKey(slideID uuid.UUID) string {
	return fmt.Sprintf("slide:required:%s", slideID)
}

func slideCountKey(moduleID uuid.UUID) string {
	return fmt.Sprintf("module:slides:%s", moduleID)
}

func (cc *ContentCache) RequiredSeconds(ctx context.Context, slideID uuid.UUID) (int, bool) {
	return cc.getInt(ctx, requiredSecondsKey(slideID))
}

func (cc *ContentCache) SetRequiredSeconds(ctx context.Context, slideID uuid.UUID, seconds int) error {
	return cc.setInt(ctx, requiredSecondsKey(slideID), seconds)
}

func (cc *ContentCache) SlideCount(ctx context.Context, moduleID uuid.UUID) (int, bool) {
	return cc.getInt(ctx, slideCountKey(moduleID))
}

func (cc *ContentCache) SetSlideCount(ctx context.Context, moduleID uuid.UUID, n int) error {
	return cc.setInt(ctx, slideCountKey(moduleID), n)
}

func (cc *ContentCache) getInt(ctx context.Context, key string) (int, bool) {
	if cc == nil || cc.redis == nil {
		return 0, false
	}
	data, err := cc.redis.Get(ctx, key)
	if err != nil || data == nil {
		return 0, false
	}
	var n int
	if err := msgpack.Unmarshal(data, &n); err != nil {
		return 0, false
	}
	return n, true
}

func (cc *ContentCache) setInt(ctx context.Context, key string, n int) error {
	if cc == nil || cc.redis == nil {
		return nil
	}
	data, err := msgpack.Marshal(n)
	if err != nil {
		return err
	}
	return cc.redis.Set(ctx, key, data, ContentTTL)
}
