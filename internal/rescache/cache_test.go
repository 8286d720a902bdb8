package rescache

import (
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	c := New(WithTTL(time.Minute))
	defer c.Close()

	k := Key{Namespace: NSVolume, Symbol: "AAPL", Timeframe: "15m"}
	c.Set(k, 42.0)

	v, ok := c.Get(k)
	if !ok || v != 42.0 {
		t.Fatalf("expected hit with 42.0, got %v %v", v, ok)
	}
	st := c.Stats()
	if st.Hits != 1 || st.Misses != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New(WithTTL(20 * time.Millisecond))
	defer c.Close()

	k := Key{Namespace: NSRange, Symbol: "AAPL", Timeframe: "15m"}
	c.Set(k, "range")
	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get(k); ok {
		t.Fatalf("expected entry past TTL to miss")
	}
	if c.Stats().Misses != 1 {
		t.Fatalf("expected expired read counted as miss")
	}
}

func TestInvalidateSymbolRemovesAllNamespaces(t *testing.T) {
	c := New(WithTTL(time.Minute))
	defer c.Close()

	c.Set(Key{NSVolume, "AAPL", "15m"}, 1)
	c.Set(Key{NSRange, "AAPL", "15m"}, 2)
	c.Set(Key{NSPhase, "AAPL", "15m"}, 3)
	c.Set(Key{NSVolume, "AAPL", "1h"}, 4)
	c.Set(Key{NSVolume, "TSLA", "15m"}, 5)

	if n := c.InvalidateSymbol("AAPL", "15m"); n != 3 {
		t.Fatalf("expected 3 removed, got %d", n)
	}
	if _, ok := c.Get(Key{NSVolume, "AAPL", "1h"}); !ok {
		t.Fatalf("other timeframe must be untouched")
	}
	if _, ok := c.Get(Key{NSVolume, "TSLA", "15m"}); !ok {
		t.Fatalf("other symbol must be untouched")
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(WithTTL(time.Minute), WithMaxSize(2))
	defer c.Close()

	a := Key{NSVolume, "A", "15m"}
	b := Key{NSVolume, "B", "15m"}
	c.Set(a, 1)
	time.Sleep(time.Millisecond)
	c.Set(b, 2)
	time.Sleep(time.Millisecond)
	c.Get(a) // a is now most recently used

	c.Set(Key{NSVolume, "C", "15m"}, 3)

	if _, ok := c.Get(b); ok {
		t.Fatalf("expected least recently used entry evicted")
	}
	if _, ok := c.Get(a); !ok {
		t.Fatalf("recently used entry must survive")
	}
	if c.Stats().Evictions != 1 {
		t.Fatalf("expected 1 eviction")
	}
}

func TestDisabledCacheNeverStores(t *testing.T) {
	c := New(WithMaxSize(0))
	defer c.Close()

	k := Key{NSPhase, "AAPL", "15m"}
	c.Set(k, 1)
	if _, ok := c.Get(k); ok {
		t.Fatalf("disabled cache must always miss")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c := New()
	c.Close()
	c.Close()
}
