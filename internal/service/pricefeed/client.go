// Package pricefeed streams live trade prices from a websocket feed.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/service"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/util"
)

type Config struct {
	URL            string
	APIKey         string
	Symbols        map[string]string // feed symbol -> internal symbol
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

// Client subscribes to trades and forwards each one as a tick.
type Client struct {
	cfg  Config
	next service.TickProcessor
	l    *applogger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

func New(cfg Config, next service.TickProcessor, l *applogger.Logger) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &Client{cfg: cfg, next: next, l: l}
}

type trade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type frame struct {
	Type string  `json:"type"`
	Data []trade `json:"data"`
}

// Connect dials the feed and subscribes to every configured symbol.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("pricefeed url: %w", err)
	}
	if c.cfg.APIKey != "" {
		q := u.Query()
		q.Set("token", c.cfg.APIKey)
		u.RawQuery = q.Encode()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("pricefeed connect: %w", err)
	}
	for feedSym := range c.cfg.Symbols {
		if err := conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": feedSym}); err != nil {
			_ = conn.Close()
			return fmt.Errorf("subscribe %s: %w", feedSym, err)
		}
	}
	c.mu.Lock()
	c.conn, c.connected = conn, true
	c.mu.Unlock()
	c.l.Info("pricefeed connected", applogger.Int("symbols", len(c.cfg.Symbols)))
	return nil
}

// Run connects, reads until the connection drops and reconnects until ctx is done.
func (c *Client) Run(ctx context.Context) {
	for {
		if err := c.Connect(ctx); err != nil {
			c.l.Warn("pricefeed connect failed", applogger.Error(err))
		} else if err := c.read(ctx); err != nil && ctx.Err() == nil {
			c.l.Warn("pricefeed read failed, reconnecting", applogger.Error(err))
		}
		_ = c.Close()
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Client) read(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(c.cfg.PingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-done:
				return
			case <-t.C:
				c.mu.Lock()
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				c.mu.Unlock()
			}
		}
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("pricefeed read: %w", err)
		}
		for _, tk := range c.decode(b) {
			if err := c.next.OnTick(ctx, tk); err != nil {
				c.l.Debug("tick rejected", applogger.String("symbol", tk.Symbol), applogger.Error(err))
			}
		}
	}
}

// decode turns a trade frame into ticks for known symbols. Other frames yield nothing.
func (c *Client) decode(b []byte) []models.Tick {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil || f.Type != "trade" {
		return nil
	}
	ticks := make([]models.Tick, 0, len(f.Data))
	for _, d := range f.Data {
		sym, ok := c.cfg.Symbols[d.S]
		if !ok {
			continue
		}
		ticks = append(ticks, models.Tick{Symbol: sym, Price: d.P, Volume: d.V, Timestamp: util.UnixAuto(d.T)})
	}
	return ticks
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
