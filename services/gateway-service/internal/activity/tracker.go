package activity

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/petshophq/petshop-backend/libs/httpx"
)

const activityKey = "system:activity:ts"

// Tracker keeps a sliding one-hour window of request timestamps in a Redis
// sorted set. Each request adds a member scored by its arrival time; scores
// older than the window are pruned on the way in.
type Tracker struct {
	rdb    *redis.Client
	window time.Duration
	logger *slog.Logger
}

func NewTracker(rdb *redis.Client, logger *slog.Logger) *Tracker {
	return &Tracker{rdb: rdb, window: time.Hour, logger: logger}
}

// Middleware records the request before passing it on. Tracking is best
// effort: a Redis outage must never fail a live request.
func (t *Tracker) Middleware() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := t.record(r.Context()); err != nil {
				t.logger.Warn("activity tracking error", "err", err)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (t *Tracker) record(ctx context.Context) error {
	now := time.Now().UnixMilli()
	cutoff := now - t.window.Milliseconds()

	pipe := t.rdb.Pipeline()
	pipe.ZAdd(ctx, activityKey, redis.Z{
		Score:  float64(now),
		Member: uuid.NewString(),
	})
	pipe.ZRemRangeByScore(ctx, activityKey, "0", strconv.FormatInt(cutoff, 10))
	_, err := pipe.Exec(ctx)
	return err
}

// Count returns how many requests arrived within the window.
func (t *Tracker) Count(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-t.window).UnixMilli()
	return t.rdb.ZCount(ctx, activityKey, strconv.FormatInt(cutoff, 10), "+inf").Result()
}
