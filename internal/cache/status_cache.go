package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/permitcourse/course-backend/internal/models"
	"github.com/vmihailenco/msgpack/v5"
)

const StatusTTL = 30 * time.Second

// StatusCache holds derived course status responses. Each entry carries the
// number of facts it reflects, and a write with fewer facts than the stored
// entry is refused, so a slow reader cannot put back a status that a fact
// writer has already moved past.
type StatusCache struct {
	redis *RedisCache
}

func NewStatusCache(redis *RedisCache) *StatusCache {
	return &StatusCache{redis: redis}
}

func statusKey(userID, courseID uuid.UUID) string {
	return fmt.Sprintf("status:%s:%s", userID, courseID)
}

func (sc *StatusCache) Get(ctx context.Context, userID, courseID uuid.UUID) (*models.CourseStatusResponse, bool) {
	if sc == nil || sc.redis == nil {
		return nil, false
	}
	data, err := sc.redis.HGet(ctx, statusKey(userID, courseID), "v")
	if err != nil || data == nil {
		return nil, false
	}

	var resp models.CourseStatusResponse
	if err := msgpack.Unmarshal(data, &resp); err != nil {
		return nil, false
	}
	return &resp, true
}

// Set caches resp unless the entry already reflects more facts. It reports
// whether resp was stored; a nil cache stores nothing and reports true.
func (sc *StatusCache) Set(ctx context.Context, userID, courseID uuid.UUID, resp models.CourseStatusResponse) (bool, error) {
	if sc == nil || sc.redis == nil {
		return true, nil
	}
	data, err := msgpack.Marshal(resp)
	if err != nil {
		return false, err
	}
	return sc.redis.SetIfNotBehind(ctx, statusKey(userID, courseID), factWeight(resp), data, StatusTTL)
}

// factWeight counts the facts a response reflects. Facts are write-once, so
// the count only grows and two responses with the same count agree.
func factWeight(resp models.CourseStatusResponse) int64 {
	var w int64
	for _, fact := range []bool{resp.CourseComplete, resp.ExamPassed, resp.Paid, resp.DMVSubmitted} {
		if fact {
			w++
		}
	}
	return w
}

func (sc *StatusCache) Invalidate(ctx context.Context, userID, courseID uuid.UUID) error {
	if sc == nil || sc.redis == nil {
		return nil
	}
	return sc.redis.Delete(ctx, statusKey(userID, courseID))
}
