package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/simon-b64/study-questions/internal/progress"
)

const (
	redisKeyPrefix   = "study-questions-progress:"
	redisCallTimeout = 3 * time.Second
)

// RedisLocal is a Redis-backed Local with the same best-effort contract as
// FileLocal. The Local interface is synchronous, so each call runs under
// its own short timeout.
type RedisLocal struct {
	client *redis.Client
}

// NewRedisLocal creates a Redis-backed local cache.
func NewRedisLocal(client *redis.Client) *RedisLocal {
	return &RedisLocal{client: client}
}

func (r *RedisLocal) Save(p progress.CourseProgress) {
	data, err := json.Marshal(p)
	if err != nil {
		slog.Error("failed to serialize progress for cache", "course_id", p.CourseID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisCallTimeout)
	defer cancel()

	if err := r.client.Set(ctx, redisKeyPrefix+p.CourseID, data, 0).Err(); err != nil {
		slog.Error("failed to save progress to cache", "course_id", p.CourseID, "error", err)
	}
}

func (r *RedisLocal) Load(courseID string) (progress.CourseProgress, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisCallTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, redisKeyPrefix+courseID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("failed to read progress from cache", "course_id", courseID, "error", err)
		}
		return progress.CourseProgress{}, false
	}

	var p progress.CourseProgress
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Warn("discarding corrupt cached progress entry", "course_id", courseID, "error", err)
		return progress.CourseProgress{}, false
	}
	return p, true
}

func (r *RedisLocal) Clear(courseID string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisCallTimeout)
	defer cancel()

	if err := r.client.Del(ctx, redisKeyPrefix+courseID).Err(); err != nil {
		slog.Error("failed to clear progress from cache", "course_id", courseID, "error", err)
	}
}
