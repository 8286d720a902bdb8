package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"PatternPulse/internal/service/ratelimit"

	"github.com/gorilla/websocket"
)

// pingCounter serves a websocket endpoint that counts ping frames.
func pingCounter(t *testing.T, pings *atomic.Int64) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.SetPingHandler(func(string) error {
			pings.Add(1)
			return nil
		})
		// Control frames are only processed while a read is pending.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestPingLoopStopsOnClose(t *testing.T) {
	var pings atomic.Int64
	srv := pingCounter(t, &pings)
	defer srv.Close()

	c := &Client{
		cfg: Config{
			URL:          "ws" + strings.TrimPrefix(srv.URL, "http"),
			PingInterval: 5 * time.Millisecond,
		},
		limiter: ratelimit.New(),
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for pings.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no pings observed while connected")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	before := pings.Load()
	time.Sleep(50 * time.Millisecond)
	if after := pings.Load(); after != before {
		t.Fatalf("pings kept arriving after Close: %d -> %d", before, after)
	}
}

func TestReconnectRunsSinglePingLoop(t *testing.T) {
	var pings atomic.Int64
	srv := pingCounter(t, &pings)
	defer srv.Close()

	c := &Client{
		cfg: Config{
			URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
			PingInterval:   10 * time.Millisecond,
			ReconnectDelay: time.Millisecond,
		},
		limiter: ratelimit.New(),
	}
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := c.Reconnect(ctx); err != nil {
			t.Fatalf("reconnect %d: %v", i, err)
		}
	}

	pings.Store(0)
	time.Sleep(100 * time.Millisecond)
	// A single 10ms loop produces roughly ten pings over 100ms. Six stacked
	// loops would produce several times that.
	if got := pings.Load(); got > 20 {
		t.Fatalf("got %d pings in 100ms, ping loops are accumulating across reconnects", got)
	}
}
