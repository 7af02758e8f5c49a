package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisLockAcquireRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	a := NewRedisLock(client, "reconcile-run", time.Minute)
	b := NewRedisLock(client, "reconcile-run", time.Minute)

	acquired, err := a.Acquire(ctx)
	if err != nil || !acquired {
		t.Fatalf("first acquire: acquired=%v err=%v", acquired, err)
	}

	// A second holder must not get the same lock.
	acquired, err = b.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if acquired {
		t.Error("second holder acquired a held lock")
	}

	if err := a.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	acquired, err = b.Acquire(ctx)
	if err != nil || !acquired {
		t.Errorf("acquire after release: acquired=%v err=%v", acquired, err)
	}
}

func TestRedisLockReleaseNotOwned(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	a := NewRedisLock(client, "reconcile-run", time.Minute)
	b := NewRedisLock(client, "reconcile-run", time.Minute)

	if acquired, err := a.Acquire(ctx); err != nil || !acquired {
		t.Fatalf("acquire: acquired=%v err=%v", acquired, err)
	}

	// Releasing a lock we never acquired must not free the real holder.
	if err := b.Release(ctx); err != nil {
		t.Fatalf("foreign release: %v", err)
	}
	if acquired, _ := b.Acquire(ctx); acquired {
		t.Error("lock freed by a non-owner release")
	}
}

func TestRedisLockExtend(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	l := NewRedisLock(client, "reconcile-run", time.Second)
	if acquired, err := l.Acquire(ctx); err != nil || !acquired {
		t.Fatalf("acquire: acquired=%v err=%v", acquired, err)
	}
	if err := l.Extend(ctx, time.Minute); err != nil {
		t.Fatalf("extend: %v", err)
	}

	ttl := client.PTTL(ctx, "lock:reconcile-run").Val()
	if ttl <= time.Second {
		t.Errorf("ttl = %v, want extended beyond 1s", ttl)
	}
}

func TestNewRunLockContention(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	// Two replicas building their run lock independently must contend on
	// the same key.
	a := NewRunLock(client, nil, 0)
	b := NewRunLock(client, nil, 0)

	if acquired, err := a.Acquire(ctx); err != nil || !acquired {
		t.Fatalf("acquire: acquired=%v err=%v", acquired, err)
	}
	if acquired, _ := b.Acquire(ctx); acquired {
		t.Error("second replica acquired the run lock concurrently")
	}

	// Zero ttl falls back to the package default.
	ttl := client.PTTL(ctx, "lock:"+RunLockKey).Val()
	if ttl <= 0 || ttl > DefaultTTL {
		t.Errorf("ttl = %v, want (0, %v]", ttl, DefaultTTL)
	}
}
