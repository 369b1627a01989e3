// Package feed runs the venue subscription: one connection, one receive
// loop, every valid frame installed in the book store and handed on.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tradesim/internal/book"
	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/alanyoungcy/tradesim/internal/metrics"
	"github.com/alanyoungcy/tradesim/internal/platform/goquant"
)

// SnapshotHandler is called from the receive loop after snap has been
// installed in the store. The next frame is not processed until it returns.
type SnapshotHandler func(ctx context.Context, snap *domain.OrderbookSnapshot, arrivedAt time.Time)

// frame is one raw message stamped on arrival.
type frame struct {
	data      []byte
	arrivedAt time.Time
}

// Listener maintains exactly one subscription to a venue stream.
//
// States move Disconnected → Connecting → Connected → Disconnected, or to
// Stopped once Stop has been called. There is no reconnect: after Run
// returns the listener is spent.
type Listener struct {
	endpoint string
	dialer   goquant.Dialer
	store    *book.Store
	onSnap   SnapshotHandler
	rec      *metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	state   domain.ListenerState
	conn    goquant.Conn
	stopped bool
}

// NewListener creates a Listener for endpoint. onSnap may be nil.
func NewListener(endpoint string, dialer goquant.Dialer, store *book.Store, onSnap SnapshotHandler, rec *metrics.Recorder, logger *slog.Logger) *Listener {
	l := &Listener{
		endpoint: endpoint,
		dialer:   dialer,
		store:    store,
		onSnap:   onSnap,
		rec:      rec,
		logger:   logger.With(slog.String("component", "feed_listener")),
		now:      time.Now,
		state:    domain.ListenerDisconnected,
	}
	rec.ListenerState(l.state)
	return l
}

// State returns the current connection state.
func (l *Listener) State() domain.ListenerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Listener) setState(s domain.ListenerState) {
	l.mu.Lock()
	l.setStateLocked(s)
	l.mu.Unlock()
}

// setStateLocked never leaves Stopped. Caller must hold l.mu.
func (l *Listener) setStateLocked(s domain.ListenerState) {
	if l.state == domain.ListenerStopped {
		return
	}
	if l.stopped {
		s = domain.ListenerStopped
	}
	if l.state != s {
		l.logger.Info("feed state changed",
			slog.String("from", string(l.state)),
			slog.String("to", string(s)),
		)
	}
	l.state = s
	l.rec.ListenerState(s)
}

// Run connects and processes frames until the stream ends, ctx is cancelled
// or Stop is called. It returns nil for a requested stop and an error
// wrapping domain.ErrTransport when the venue side ended the session.
func (l *Listener) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.setStateLocked(domain.ListenerConnecting)
	l.mu.Unlock()

	conn, err := l.dialer.Dial(ctx, l.endpoint)
	if err != nil {
		if l.stopRequested(ctx) {
			l.setState(domain.ListenerStopped)
			return nil
		}
		l.setState(domain.ListenerDisconnected)
		l.logger.Error("feed connect failed",
			slog.String("endpoint", l.endpoint),
			slog.String("error", err.Error()),
		)
		return transportErr("connect", err)
	}

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		_ = conn.Close()
		l.setState(domain.ListenerStopped)
		return nil
	}
	l.conn = conn
	l.setStateLocked(domain.ListenerConnected)
	l.mu.Unlock()
	l.logger.Info("feed connected", slog.String("endpoint", l.endpoint))

	quit := make(chan struct{})
	defer close(quit)
	frames := make(chan frame)
	readErr := make(chan error, 1)
	go l.readLoop(conn, frames, readErr, quit)

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close()
			l.setState(domain.ListenerStopped)
			return nil

		case err := <-readErr:
			_ = conn.Close()
			if l.stopRequested(ctx) {
				l.setState(domain.ListenerStopped)
				return nil
			}
			l.setState(domain.ListenerDisconnected)
			if goquant.IsNormalClose(err) {
				l.logger.Info("feed closed by venue", slog.String("reason", err.Error()))
				return transportErr("closed by venue", err)
			}
			l.logger.Error("feed read failed", slog.String("error", err.Error()))
			return transportErr("read", err)

		case f := <-frames:
			// A stop that raced with this frame wins.
			if l.stopRequested(ctx) {
				continue
			}
			l.handleFrame(ctx, f)
		}
	}
}

// readLoop blocks on the socket and forwards frames until a read fails or
// Run goes away.
func (l *Listener) readLoop(conn goquant.Conn, frames chan<- frame, readErr chan<- error, quit <-chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		f := frame{data: data, arrivedAt: l.now()}
		select {
		case frames <- f:
		case <-quit:
			return
		}
	}
}

func (l *Listener) handleFrame(ctx context.Context, f frame) {
	l.rec.FrameReceived()

	snap, err := goquant.ParseBook(f.data, f.arrivedAt)
	if err == nil {
		err = l.store.Replace(snap)
	}
	if err != nil {
		l.rec.ParseError()
		l.logger.Warn("discarding malformed frame",
			slog.String("error", err.Error()),
			slog.Int("payload_len", len(f.data)),
		)
		return
	}

	if l.onSnap != nil {
		l.onSnap(ctx, snap, f.arrivedAt)
	}
}

// Stop closes the transport and moves the listener to Stopped. It is a
// no-op when already stopped and safe with no active connection.
func (l *Listener) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	conn := l.conn
	l.setStateLocked(domain.ListenerStopped)
	l.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (l *Listener) stopRequested(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

func transportErr(op string, err error) error {
	if errors.Is(err, domain.ErrTransport) {
		return fmt.Errorf("feed: %s: %w", op, err)
	}
	return fmt.Errorf("feed: %s: %v: %w", op, err, domain.ErrTransport)
}
