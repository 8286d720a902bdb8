package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"PatternPulse/internal/domain/models"
	drepo "PatternPulse/internal/domain/repository"
	"PatternPulse/internal/service/ratelimit"
	applogger "PatternPulse/pkg/logger"

	"github.com/gorilla/websocket"
)

// Config holds the websocket stream settings.
type Config struct {
	URL            string
	APIKey         string
	Symbols        []string
	Timeframes     []string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	MaxBarsPerSec  int // per-symbol throttle, 0 disables
}

// Client implements a MarketStream over a bar-feed websocket. Incoming bar
// frames are decoded and throttled per symbol before they reach the caller.
type Client struct {
	cfg     Config
	logger  *applogger.Logger
	limiter *ratelimit.Limiter

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	pingStop  chan struct{}
}

// New creates a websocket MarketStream.
func New(cfg Config, logger *applogger.Logger) drepo.MarketStream {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &Client{cfg: cfg, logger: logger, limiter: ratelimit.New()}
}

// Connect establishes the websocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u := c.cfg.URL
	if c.cfg.APIKey != "" {
		u = fmt.Sprintf("%s?token=%s", c.cfg.URL, c.cfg.APIKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("stream connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	// One ping loop per connection, stopped by Close.
	stop := make(chan struct{})
	c.pingStop = stop
	c.mu.Unlock()

	go c.pingLoop(stop)

	if c.logger != nil {
		c.logger.Info("market stream connected", applogger.String("url", c.cfg.URL))
	}
	return nil
}

// Subscribe requests bar updates for every configured symbol/timeframe.
func (c *Client) Subscribe(ctx context.Context) error {
	conn := c.current()
	if conn == nil {
		return fmt.Errorf("stream not connected")
	}

	timeframes := c.cfg.Timeframes
	if len(timeframes) == 0 {
		timeframes = []string{string(drepo.DefaultTimeframe())}
	}
	for _, sym := range c.cfg.Symbols {
		for _, tf := range timeframes {
			msg := map[string]string{"type": "subscribe", "symbol": sym, "timeframe": tf}
			if err := conn.WriteJSON(msg); err != nil {
				return fmt.Errorf("subscribe %s/%s: %w", sym, tf, err)
			}
		}
	}
	if c.logger != nil {
		c.logger.Info("market stream subscribed",
			applogger.Strings("symbols", c.cfg.Symbols),
			applogger.Strings("timeframes", timeframes))
	}
	return nil
}

type wsBar struct {
	S  string  `json:"s"`
	TF string  `json:"tf"`
	O  float64 `json:"o"`
	H  float64 `json:"h"`
	L  float64 `json:"l"`
	C  float64 `json:"c"`
	V  float64 `json:"v"`
	T  int64   `json:"t"` // ms
}

type wsMessage struct {
	Type string  `json:"type"`
	Data []wsBar `json:"data"`
}

// Read streams decoded bars and read errors. Both channels close when the
// read loop exits; a value on the error channel means the caller should
// Reconnect.
func (c *Client) Read(ctx context.Context) (<-chan *models.Bar, <-chan error) {
	bars := make(chan *models.Bar, 1024)
	errs := make(chan error, 1)

	go func() {
		defer close(bars)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			conn := c.current()
			if conn == nil {
				errs <- fmt.Errorf("stream connection is nil")
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("stream read: %w", err)
				return
			}

			var m wsMessage
			if err := json.Unmarshal(b, &m); err != nil {
				// ignore non-bar frames
				continue
			}
			if m.Type != "bar" {
				continue
			}
			for _, d := range m.Data {
				if c.cfg.MaxBarsPerSec > 0 &&
					!c.limiter.Allow(d.S, float64(c.cfg.MaxBarsPerSec), float64(c.cfg.MaxBarsPerSec)) {
					continue // shed bursty symbols at the edge
				}
				bar := &models.Bar{
					Symbol:    d.S,
					Timeframe: d.TF,
					Open:      d.O,
					High:      d.H,
					Low:       d.L,
					Close:     d.C,
					Volume:    d.V,
					Timestamp: d.T / 1000,
				}
				select {
				case bars <- bar:
				default:
					// drop on backpressure
				}
			}
		}
	}()

	return bars, errs
}

// Reconnect closes the connection and dials again after the configured
// delay, re-subscribing on success.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.ReconnectDelay):
	}

	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close stops the ping loop and closes the websocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.pingStop != nil {
		close(c.pingStop)
		c.pingStop = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected reports connection status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if conn := c.current(); conn != nil {
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}
}
