package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// Window is a Redis fixed-window counter: at most Limit hits per key per Period.
type Window struct {
	client redis.Cmdable
	limit  int64
	period time.Duration
}

// NewWindow creates a fixed-window limiter.
func NewWindow(client redis.Cmdable, limit int, period time.Duration) *Window {
	return &Window{client: client, limit: int64(limit), period: period}
}

// Allow counts one hit for key and reports whether it is within the limit.
func (w *Window) Allow(ctx context.Context, key string) (bool, error) {
	bucket := time.Now().UnixNano() / int64(w.period)
	k := fmt.Sprintf("%s%s:%d", keyPrefix, key, bucket)

	pipe := w.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, w.period)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return incr.Val() <= w.limit, nil
}
