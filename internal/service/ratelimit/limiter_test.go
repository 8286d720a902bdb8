package ratelimit

import "testing"

func TestAllowConsumesTokens(t *testing.T) {
	l := New()
	for i := 0; i < 3; i++ {
		if !l.Allow("AAPL", 3, 0) {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}
	if l.Allow("AAPL", 3, 0) {
		t.Fatal("bucket exhausted, call should be denied")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New()
	if !l.Allow("AAPL", 1, 0) {
		t.Fatal("first AAPL call should be allowed")
	}
	if l.Allow("AAPL", 1, 0) {
		t.Fatal("AAPL bucket is empty")
	}
	if !l.Allow("MSFT", 1, 0) {
		t.Fatal("MSFT has its own bucket")
	}
}
