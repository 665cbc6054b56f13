package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisLimiter(t *testing.T, limit int, window time.Duration) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLimiter(client, limit, window), mr
}

func TestRedisLimiter_AllowsUpToLimit(t *testing.T) {
	l, _ := newTestRedisLimiter(t, 3, time.Minute)
	fixed := time.Unix(1_800_000_010, 0)
	l.now = func() time.Time { return fixed }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "user:u1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	res, err := l.Allow(ctx, "user:u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed {
		t.Fatal("request over limit should be rejected")
	}
	// 1_800_000_010 は60秒ウィンドウの開始から10秒後
	if res.RetryAfter != 50*time.Second {
		t.Errorf("RetryAfter = %v, want 50s", res.RetryAfter)
	}
}

func TestRedisLimiter_SetsExpiryOnFirstIncrement(t *testing.T) {
	l, mr := newTestRedisLimiter(t, 5, 10*time.Second)
	fixed := time.Unix(1_800_000_000, 0)
	l.now = func() time.Time { return fixed }

	if _, err := l.Allow(context.Background(), "user:u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	key := "sessionboard:rl:user:u1:180000000"
	if !mr.Exists(key) {
		t.Fatalf("expected counter key %q, keys = %v", key, mr.Keys())
	}
	if ttl := mr.TTL(key); ttl != 11*time.Second {
		t.Errorf("TTL = %v, want 11s", ttl)
	}

	mr.FastForward(12 * time.Second)
	if mr.Exists(key) {
		t.Error("counter key should expire after the window")
	}
}

func TestRedisLimiter_NewWindowResetsCount(t *testing.T) {
	l, _ := newTestRedisLimiter(t, 1, time.Minute)
	current := time.Unix(1_800_000_000, 0)
	l.now = func() time.Time { return current }

	ctx := context.Background()
	if res, _ := l.Allow(ctx, "user:u1"); !res.Allowed {
		t.Fatal("first request should be allowed")
	}
	if res, _ := l.Allow(ctx, "user:u1"); res.Allowed {
		t.Fatal("second request should be rejected")
	}

	current = current.Add(time.Minute)
	if res, _ := l.Allow(ctx, "user:u1"); !res.Allowed {
		t.Error("request in the next window should be allowed")
	}
}

func TestRedisLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestRedisLimiter(t, 1, time.Minute)

	ctx := context.Background()
	if res, _ := l.Allow(ctx, "user:a"); !res.Allowed {
		t.Fatal("user a should be allowed")
	}
	if res, _ := l.Allow(ctx, "user:b"); !res.Allowed {
		t.Fatal("user b should be allowed")
	}
}

func TestRedisLimiter_ConnectionErrorIsReturned(t *testing.T) {
	l, mr := newTestRedisLimiter(t, 1, time.Minute)
	mr.Close()

	if _, err := l.Allow(context.Background(), "user:u1"); err == nil {
		t.Fatal("expected error when redis is unavailable")
	}
}

func TestNewRedisLimiter_MinimumWindow(t *testing.T) {
	l := NewRedisLimiter(nil, 1, 10*time.Millisecond)
	if l.window != time.Second {
		t.Errorf("window = %v, want 1s", l.window)
	}
}
