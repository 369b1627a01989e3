// Package goquant speaks the l2-orderbook websocket stream: one persistent
// connection per (exchange, instrument), each text frame a full book.
package goquant

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

const (
	// writeWait is the time allowed to write a control frame to the peer.
	writeWait = 10 * time.Second

	// DefaultURLTemplate is the well-known public endpoint form.
	DefaultURLTemplate = "wss://ws.gomarket-cpp.goquant.io/ws/l2-orderbook/{exchange}/{instrument}"
)

// Endpoint expands the {exchange} and {instrument} placeholders in template.
func Endpoint(template, exchange, instrument string) string {
	r := strings.NewReplacer(
		"{exchange}", url.PathEscape(strings.ToLower(strings.TrimSpace(exchange))),
		"{instrument}", url.PathEscape(strings.TrimSpace(instrument)),
	)
	return r.Replace(template)
}

// Conn is the read side of a live stream.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens a stream to a venue endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// DialerConfig tunes the websocket dialer.
type DialerConfig struct {
	HandshakeTimeout time.Duration
	// ReadTimeout bounds the wait for the next frame; zero disables it.
	ReadTimeout time.Duration
	// PingPeriod sends keep-alive pings; zero disables them.
	PingPeriod time.Duration
}

// WSDialer dials with gorilla/websocket.
type WSDialer struct {
	cfg DialerConfig
}

// NewWSDialer returns a WSDialer using cfg.
func NewWSDialer(cfg DialerConfig) *WSDialer {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 15 * time.Second
	}
	return &WSDialer{cfg: cfg}
}

// Dial implements Dialer. Failures wrap domain.ErrTransport.
func (d *WSDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("goquant/ws: connect %s: %v: %w", endpoint, err, domain.ErrTransport)
	}

	c := &wsConn{
		conn:        conn,
		readTimeout: d.cfg.ReadTimeout,
		done:        make(chan struct{}),
	}
	if d.cfg.ReadTimeout > 0 {
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(d.cfg.ReadTimeout))
		})
	}
	if d.cfg.PingPeriod > 0 {
		go c.pingLoop(d.cfg.PingPeriod)
	}
	return c, nil
}

// wsConn wraps a gorilla connection with read deadlines and a ping loop.
type wsConn struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	closeOnce   sync.Once
	done        chan struct{}
}

func (c *wsConn) ReadMessage() (int, []byte, error) {
	if c.readTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	return c.conn.ReadMessage()
}

// Close sends a normal-closure frame and tears the socket down. Safe to call
// more than once and concurrently with ReadMessage.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) pingLoop(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// IsNormalClose reports whether err is the peer closing the stream cleanly.
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
