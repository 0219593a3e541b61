// SPDX-License-Identifier: Apache-2.0

package lease

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLockerWithClient(client), mr
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLocker(t)

	release, err := l.Acquire(ctx, "process-due", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "process-due", time.Minute); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
	if _, err := l.Acquire(ctx, "escalations", time.Minute); err != nil {
		t.Fatalf("expected independent lease names, got %v", err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := l.Acquire(ctx, "process-due", time.Minute); err != nil {
		t.Fatalf("expected lease to be free after release, got %v", err)
	}
}

func TestRedisLockerExpires(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLocker(t)

	if _, err := l.Acquire(ctx, "process-due", time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	mr.FastForward(2 * time.Second)

	if _, err := l.Acquire(ctx, "process-due", time.Second); err != nil {
		t.Fatalf("expected expired lease to be acquirable, got %v", err)
	}
}

func TestRedisLockerReleaseKeepsForeignHolder(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLocker(t)

	release, err := l.Acquire(ctx, "process-due", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	mr.FastForward(2 * time.Second)

	if _, err := l.Acquire(ctx, "process-due", time.Minute); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}

	if _, err := l.Acquire(ctx, "process-due", time.Minute); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("stale release must not free the new holder's lease, got %v", err)
	}
}

func TestNewRedisLockerRejectsBadURL(t *testing.T) {
	if _, err := NewRedisLocker(context.Background(), "not a url"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNoopAlwaysGrants(t *testing.T) {
	var l Locker = Noop{}
	for i := 0; i < 2; i++ {
		release, err := l.Acquire(context.Background(), "process-due", time.Minute)
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		if err := release(context.Background()); err != nil {
			t.Fatalf("release: %v", err)
		}
	}
}
