package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if ok, _ := l.Acquire(ctx, "k", time.Hour); !ok {
		t.Fatal("first Acquire failed")
	}
	if ok, _ := l.Acquire(ctx, "k", time.Hour); ok {
		t.Error("second Acquire succeeded while held")
	}

	now = now.Add(2 * time.Hour)
	if ok, _ := l.Acquire(ctx, "k", time.Hour); !ok {
		t.Error("Acquire after expiry failed")
	}

	l.Release(ctx, "k")
	if ok, _ := l.Acquire(ctx, "k", time.Hour); !ok {
		t.Error("Acquire after Release failed")
	}
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	mr, rdb := testRedis(t)

	a := NewRedisLocker(rdb, "streak:")
	b := NewRedisLocker(rdb, "streak:")

	ok, err := a.Acquire(ctx, "sweep:2024-01-01", time.Hour)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !ok {
		t.Fatal("first Acquire failed")
	}
	if ok, _ := b.Acquire(ctx, "sweep:2024-01-01", time.Hour); ok {
		t.Error("second instance acquired a held lock")
	}
	if ttl := mr.TTL("streak:sweep:2024-01-01"); ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", ttl)
	}

	// only the holder can release
	if err := b.Release(ctx, "sweep:2024-01-01"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !mr.Exists("streak:sweep:2024-01-01") {
		t.Error("non-holder released the lock")
	}
	if err := a.Release(ctx, "sweep:2024-01-01"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if ok, _ := b.Acquire(ctx, "sweep:2024-01-01", time.Hour); !ok {
		t.Error("Acquire after Release failed")
	}

	mr.FastForward(2 * time.Hour)
	if ok, _ := a.Acquire(ctx, "sweep:2024-01-01", time.Hour); !ok {
		t.Error("Acquire after expiry failed")
	}
}
