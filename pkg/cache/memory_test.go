package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemorySetGet(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(4))
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got string
	if err := mc.Get(ctx, "k", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "v" {
		t.Fatalf("got %q, want v", got)
	}
}

func TestMemoryMissAndExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	var s string
	if err := mc.Get(ctx, "absent", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("err = %v, want ErrCacheMiss", err)
	}

	_ = mc.Set(ctx, "brief", "v", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if err := mc.Get(ctx, "brief", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expired read err = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryIncrement(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := mc.Increment(ctx, "counter")
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if n != want {
			t.Fatalf("counter = %d, want %d", n, want)
		}
	}
}

func TestMemoryEvictsLRU(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "a", "1", time.Minute)
	time.Sleep(2 * time.Millisecond)
	_ = mc.Set(ctx, "b", "2", time.Minute)
	time.Sleep(2 * time.Millisecond)

	var s string
	_ = mc.Get(ctx, "a", &s) // refresh a, making b the LRU entry
	time.Sleep(2 * time.Millisecond)
	_ = mc.Set(ctx, "c", "3", time.Minute)

	if err := mc.Get(ctx, "b", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatal("b should have been evicted")
	}
	if err := mc.Get(ctx, "a", &s); err != nil {
		t.Fatalf("a should survive: %v", err)
	}
}

func TestMemoryTypedDestination(t *testing.T) {
	type payload struct {
		Symbol string
		Score  float64
	}
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	want := &payload{Symbol: "AAPL", Score: 0.8}
	if err := mc.Set(ctx, "p", want, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	var got *payload
	if err := mc.Get(ctx, "p", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want the stored pointer", got)
	}

	var wrong *int
	if err := mc.Get(ctx, "p", &wrong); err == nil {
		t.Fatal("expected a type error for mismatched destination")
	}
}
