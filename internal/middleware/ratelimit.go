package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/sessionboard/internal/model"
)

// LimitResult はレート制限の判定結果。
type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter はキーごとのレート制限を判定する。
// 実装はプロセス内（MemoryLimiter）またはRedis共有（RedisLimiter）。
type Limiter interface {
	Allow(ctx context.Context, key string) (LimitResult, error)
}

// NewRateLimitMiddleware はレート制限ミドルウェアを返す。
// ルートガードが注入した呼び出し元のユーザーIDをキーとし、なければクライアントIPを使う。
// リミッターの障害時はリクエストを通す（可用性を優先する）。
func NewRateLimitMiddleware(limiter Limiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)

			result, err := limiter.Allow(r.Context(), key)
			if err != nil {
				slog.Warn("rate limit check failed",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !result.Allowed {
				slog.Warn("rate limit exceeded", slog.String("key", key))
				writeRateLimitResponse(w, result.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	if caller, ok := CallerFromContext(r.Context()); ok && caller.User != nil {
		return "user:" + caller.User.ID
	}
	return "ip:" + ClientIP(r)
}

// ClientIP はRemoteAddrからポートを除いたIPを返す。
// プロキシ配下ではchiのRealIPミドルウェアでRemoteAddrを書き換えておくこと。
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return "unknown"
		}
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
func writeRateLimitResponse(w http.ResponseWriter, retryAfter time.Duration) {
	WriteRetryableError(w, http.StatusTooManyRequests, model.NewRateLimitExceededError(), retryAfter)
}

// MemoryLimiterConfig はプロセス内レートリミッターの設定。
type MemoryLimiterConfig struct {
	Rate            rate.Limit    // 補充レート（req/sec）
	Burst           int           // バーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// PerMinute はreq/min指定からMemoryLimiterConfigを生成する。
func PerMinute(requests int) MemoryLimiterConfig {
	if requests <= 0 {
		requests = 1
	}
	return MemoryLimiterConfig{
		Rate:            rate.Limit(float64(requests) / 60.0),
		Burst:           requests,
		CleanupInterval: 5 * time.Minute,
	}
}

// keyLimiter はキーごとのレートリミッターとアクセス時刻を保持する。
type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// MemoryLimiter はトークンバケットによるプロセス内のレートリミッター。
// 複数インスタンス構成ではRedisLimiterを使う。
type MemoryLimiter struct {
	config MemoryLimiterConfig

	mu       sync.Mutex
	limiters map[string]*keyLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMemoryLimiter はMemoryLimiterを生成し、クリーンアップを開始する。
func NewMemoryLimiter(config MemoryLimiterConfig) *MemoryLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	l := &MemoryLimiter{
		config:   config,
		limiters: make(map[string]*keyLimiter),
		stopCh:   make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow はキーのトークンを1つ消費できるかを判定する。
func (l *MemoryLimiter) Allow(_ context.Context, key string) (LimitResult, error) {
	now := time.Now()

	l.mu.Lock()
	kl, ok := l.limiters[key]
	if !ok {
		kl = &keyLimiter{limiter: rate.NewLimiter(l.config.Rate, l.config.Burst)}
		l.limiters[key] = kl
	}
	kl.lastAccess = now
	l.mu.Unlock()

	if kl.limiter.AllowN(now, 1) {
		return LimitResult{Allowed: true}, nil
	}

	retry := time.Second
	if l.config.Rate > 0 {
		retry = time.Duration(float64(time.Second) / float64(l.config.Rate))
	}
	return LimitResult{Allowed: false, RetryAfter: retry}, nil
}

// Len は現在管理しているキー数を返す。
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (l *MemoryLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *MemoryLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスからCleanupIntervalの2倍を超えたエントリを削除する。
func (l *MemoryLimiter) cleanup(now time.Time) {
	ttl := l.config.CleanupInterval * 2

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, kl := range l.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(l.limiters, key)
		}
	}
}
