package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter はRedisのINCRによる固定ウィンドウ方式のレートリミッター。
// カウンタをRedisに置くため、複数のAPIインスタンス間で制限を共有できる。
type RedisLimiter struct {
	client redis.Cmdable
	limit  int64
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisLimiter はwindowあたりlimit回まで許可するRedisLimiterを生成する。
func NewRedisLimiter(client redis.Cmdable, limit int, window time.Duration) *RedisLimiter {
	if window < time.Second {
		window = time.Second
	}
	return &RedisLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		prefix: "sessionboard:rl:",
		now:    time.Now,
	}
}

// Allow はキーの現在ウィンドウのカウンタを加算し、上限以内かを判定する。
func (l *RedisLimiter) Allow(ctx context.Context, key string) (LimitResult, error) {
	now := l.now()
	windowSec := int64(l.window / time.Second)
	bucket := now.Unix() / windowSec
	redisKey := fmt.Sprintf("%s%s:%d", l.prefix, key, bucket)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return LimitResult{}, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window+time.Second).Err(); err != nil {
			return LimitResult{}, fmt.Errorf("failed to set rate limit expiry: %w", err)
		}
	}

	if count > l.limit {
		windowEnd := time.Unix((bucket+1)*windowSec, 0)
		return LimitResult{Allowed: false, RetryAfter: windowEnd.Sub(now)}, nil
	}
	return LimitResult{Allowed: true}, nil
}

// compile-time interface check
var (
	_ Limiter = (*RedisLimiter)(nil)
	_ Limiter = (*MemoryLimiter)(nil)
)
