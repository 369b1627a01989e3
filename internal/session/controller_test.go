package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/alanyoungcy/tradesim/internal/model"
	"github.com/alanyoungcy/tradesim/internal/platform/goquant"
)

const bookFrame = `{"asks":[["100","10"],["101","5"]],"bids":[["99","10"],["98","4"]]}`

type venueConn struct {
	msgs   chan []byte
	fail   chan error
	closed chan struct{}
	once   sync.Once
}

func newVenueConn() *venueConn {
	return &venueConn{
		msgs:   make(chan []byte, 32),
		fail:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *venueConn) ReadMessage() (int, []byte, error) {
	select {
	case m := <-c.msgs:
		return websocket.TextMessage, m, nil
	case err := <-c.fail:
		return 0, nil, err
	case <-c.closed:
		return 0, nil, errors.New("closed")
	}
}

func (c *venueConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type venue struct {
	mu        sync.Mutex
	conns     []*venueConn
	endpoints []string
	err       error
}

func (v *venue) Dial(_ context.Context, endpoint string) (goquant.Conn, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.endpoints = append(v.endpoints, endpoint)
	if v.err != nil {
		return nil, v.err
	}
	c := newVenueConn()
	v.conns = append(v.conns, c)
	return c, nil
}

func (v *venue) last(t *testing.T) *venueConn {
	t.Helper()
	var c *venueConn
	require.Eventually(t, func() bool {
		v.mu.Lock()
		defer v.mu.Unlock()
		if len(v.conns) == 0 {
			return false
		}
		c = v.conns[len(v.conns)-1]
		return true
	}, 2*time.Second, 5*time.Millisecond)
	return c
}

// conn waits for the n-th dialled connection (zero-based).
func (v *venue) conn(t *testing.T, n int) *venueConn {
	t.Helper()
	var c *venueConn
	require.Eventually(t, func() bool {
		v.mu.Lock()
		defer v.mu.Unlock()
		if len(v.conns) <= n {
			return false
		}
		c = v.conns[n]
		return true
	}, 2*time.Second, 5*time.Millisecond)
	return c
}

// gatedModel holds its first Estimate call until release is closed.
type gatedModel struct {
	inner   model.Model
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func newGatedModel() *gatedModel {
	return &gatedModel{
		inner:   model.NewReference(model.DefaultCoefficients()),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedModel) Name() string { return "gated" }

func (g *gatedModel) Estimate(p domain.SimulationParameters, snap *domain.OrderbookSnapshot) (domain.CostEstimate, error) {
	if g.calls.Add(1) == 1 {
		close(g.entered)
		<-g.release
	}
	return g.inner.Estimate(p, snap)
}

func (g *gatedModel) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("model never called")
	}
}

func params() domain.SimulationParameters {
	return domain.SimulationParameters{
		Exchange:   "OKX",
		Instrument: "BTC-USDT-SWAP",
		OrderType:  domain.OrderTypeMarket,
		Quantity:   100,
		Volatility: 0.02,
		FeeTier:    1,
	}
}

func newTestController(v *venue) *Controller {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := Config{
		URLTemplate: "wss://venue.test/ws/l2-orderbook/{exchange}/{instrument}",
		StopTimeout: 2 * time.Second,
		EventBuffer: 16,
	}
	return NewController(cfg, v, model.NewReference(model.DefaultCoefficients()), nil, logger)
}

func nextEvent(t *testing.T, c *Controller) domain.EstimateEvent {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for estimate")
		return domain.EstimateEvent{}
	}
}

func TestController_StartEmitsEstimates(t *testing.T) {
	v := &venue{}
	c := newTestController(v)

	_, err := c.LatestEstimate()
	assert.ErrorIs(t, err, domain.ErrNoDataYet)

	require.NoError(t, c.Start(params()))
	assert.Equal(t, domain.SessionRunning, c.State())

	conn := v.last(t)
	assert.Equal(t, []string{"wss://venue.test/ws/l2-orderbook/okx/BTC-USDT-SWAP"}, v.endpoints)

	conn.msgs <- []byte(bookFrame)
	ev := nextEvent(t, c)
	assert.Equal(t, uint64(1), ev.Sequence)
	assert.NotEmpty(t, ev.SessionID)
	assert.Equal(t, model.ReferenceName, ev.Model)
	assert.InDelta(t, 0.14406, ev.Estimate.NetCost, 1e-9)
	assert.GreaterOrEqual(t, ev.Estimate.LatencyMs, 0.0)

	est, err := c.LatestEstimate()
	require.NoError(t, err)
	assert.Equal(t, ev.Estimate, est)

	require.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, domain.SessionStopped, c.State())
}

func TestController_StartTwiceIsRejected(t *testing.T) {
	v := &venue{}
	c := newTestController(v)

	require.NoError(t, c.Start(params()))
	first := c.Status().SessionID
	v.last(t)

	err := c.Start(params())
	assert.ErrorIs(t, err, domain.ErrAlreadyRunning)
	assert.Equal(t, domain.SessionRunning, c.State())
	assert.Equal(t, first, c.Status().SessionID)

	v.mu.Lock()
	assert.Len(t, v.conns, 1)
	v.mu.Unlock()

	require.NoError(t, c.Stop(context.Background()))
}

func TestController_StopIsIdempotent(t *testing.T) {
	c := newTestController(&venue{})

	require.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, domain.SessionStopped, c.State())

	require.NoError(t, c.Start(params()))
	require.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, domain.SessionStopped, c.State())
	require.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, domain.SessionStopped, c.State())
	assert.NoError(t, c.Err())
}

func TestController_RestartAfterStop(t *testing.T) {
	v := &venue{}
	c := newTestController(v)

	require.NoError(t, c.Start(params()))
	first := c.Status().SessionID
	v.last(t).msgs <- []byte(bookFrame)
	nextEvent(t, c)
	require.NoError(t, c.Stop(context.Background()))

	require.NoError(t, c.Start(params()))
	assert.NotEqual(t, first, c.Status().SessionID)
	_, err := c.LatestEstimate()
	assert.ErrorIs(t, err, domain.ErrNoDataYet)

	v.last(t).msgs <- []byte(bookFrame)
	ev := nextEvent(t, c)
	assert.Equal(t, uint64(1), ev.Sequence)
	require.NoError(t, c.Stop(context.Background()))
}

func TestController_MalformedFrameEmitsNothing(t *testing.T) {
	v := &venue{}
	c := newTestController(v)
	require.NoError(t, c.Start(params()))
	conn := v.last(t)

	conn.msgs <- []byte(bookFrame)
	nextEvent(t, c)
	before, err := c.Store().Current()
	require.NoError(t, err)

	conn.msgs <- []byte(`{"data":"no sides"}`)
	conn.msgs <- []byte(`{"asks":[["102","1"]],"bids":[["97","1"]]}`)

	ev := nextEvent(t, c)
	// The malformed frame in between produced no event.
	assert.Equal(t, uint64(2), ev.Sequence)
	after, err := c.Store().Current()
	require.NoError(t, err)
	assert.Equal(t, 100.0, before.BestAsk)
	assert.Equal(t, 102.0, after.BestAsk)

	require.NoError(t, c.Stop(context.Background()))
}

func TestController_EventsStrictlyOrdered(t *testing.T) {
	v := &venue{}
	c := newTestController(v)
	require.NoError(t, c.Start(params()))
	conn := v.last(t)

	for i := 0; i < 10; i++ {
		conn.msgs <- []byte(bookFrame)
	}
	for want := uint64(1); want <= 10; want++ {
		assert.Equal(t, want, nextEvent(t, c).Sequence)
	}
	require.NoError(t, c.Stop(context.Background()))
}

func TestController_UpdateParametersAppliesToNextSnapshot(t *testing.T) {
	v := &venue{}
	c := newTestController(v)
	require.NoError(t, c.Start(params()))
	conn := v.last(t)

	conn.msgs <- []byte(bookFrame)
	first := nextEvent(t, c)

	p := params()
	p.Quantity = 1000
	require.NoError(t, c.UpdateParameters(p))

	conn.msgs <- []byte(bookFrame)
	second := nextEvent(t, c)
	assert.Equal(t, 1000.0, second.Quantity)
	assert.Greater(t, second.Estimate.Fees, first.Estimate.Fees)

	bad := params()
	bad.Quantity = -1
	assert.ErrorIs(t, c.UpdateParameters(bad), domain.ErrInvalidParameters)
	assert.Equal(t, 1000.0, c.Parameters().Quantity)

	require.NoError(t, c.Stop(context.Background()))
}

func TestController_InvalidStartParameters(t *testing.T) {
	c := newTestController(&venue{})
	p := params()
	p.Volatility = -1
	assert.ErrorIs(t, c.Start(p), domain.ErrInvalidParameters)
	assert.Equal(t, domain.SessionIdle, c.State())
}

func TestController_TransportFailureEndsSession(t *testing.T) {
	v := &venue{}
	c := newTestController(v)
	require.NoError(t, c.Start(params()))

	v.last(t).fail <- errors.New("connection reset by peer")

	select {
	case err := <-c.Ended():
		assert.ErrorIs(t, err, domain.ErrTransport)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
	assert.Equal(t, domain.SessionStopped, c.State())
	assert.ErrorIs(t, c.Err(), domain.ErrTransport)
	assert.NotEmpty(t, c.Status().LastError)

	// No automatic reconnect, but an explicit start works.
	require.NoError(t, c.Start(params()))
	require.NoError(t, c.Stop(context.Background()))
}

func TestController_ConnectFailureEndsSession(t *testing.T) {
	c := newTestController(&venue{err: errors.New("dial refused")})
	require.NoError(t, c.Start(params()))

	select {
	case err := <-c.Ended():
		assert.ErrorIs(t, err, domain.ErrTransport)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
	assert.Equal(t, domain.SessionStopped, c.State())
}

func TestController_FullBufferDropsButKeepsLatest(t *testing.T) {
	v := &venue{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewController(Config{URLTemplate: goquant.DefaultURLTemplate, EventBuffer: 1}, v,
		model.NewReference(model.DefaultCoefficients()), nil, logger)
	require.NoError(t, c.Start(params()))
	conn := v.last(t)

	for i := 0; i < 3; i++ {
		conn.msgs <- []byte(bookFrame)
	}
	require.Eventually(t, func() bool {
		ev, err := c.LatestEvent()
		return err == nil && ev.Sequence == 3
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, uint64(1), nextEvent(t, c).Sequence)
	require.NoError(t, c.Stop(context.Background()))
}

func TestController_MarketChangeNeedsRestart(t *testing.T) {
	v := &venue{}
	c := newTestController(v)
	require.NoError(t, c.Start(params()))
	conn := v.last(t)

	p := params()
	p.Instrument = "ETH-USDT-SWAP"
	err := c.UpdateParameters(p)
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)
	assert.Contains(t, err.Error(), "restart")
	assert.Equal(t, "BTC-USDT-SWAP", c.Parameters().Instrument)

	p = params()
	p.Exchange = "okx"
	p.Quantity = 250
	require.NoError(t, c.UpdateParameters(p))

	conn.msgs <- []byte(bookFrame)
	ev := nextEvent(t, c)
	assert.Equal(t, "OKX", ev.Exchange)
	assert.Equal(t, "BTC-USDT-SWAP", ev.Instrument)
	assert.Equal(t, 250.0, ev.Quantity)

	require.NoError(t, c.Stop(context.Background()))

	p.Instrument = "ETH-USDT-SWAP"
	require.NoError(t, c.UpdateParameters(p))
	require.NoError(t, c.Start(c.Parameters()))
	v.conn(t, 1)
	assert.Equal(t, "wss://venue.test/ws/l2-orderbook/okx/ETH-USDT-SWAP", v.endpoints[1])
	require.NoError(t, c.Stop(context.Background()))
}

func TestController_StopTimeoutHoldsUntilReceiveLoopExits(t *testing.T) {
	v := &venue{}
	gm := newGatedModel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewController(Config{URLTemplate: goquant.DefaultURLTemplate, StopTimeout: 50 * time.Millisecond}, v, gm, nil, logger)

	require.NoError(t, c.Start(params()))
	old := c.Status().SessionID
	v.conn(t, 0).msgs <- []byte(bookFrame)
	gm.waitEntered(t)

	err := c.Stop(context.Background())
	assert.ErrorIs(t, err, domain.ErrStopTimeout)
	assert.Equal(t, domain.SessionStopping, c.State())
	assert.ErrorIs(t, c.Start(params()), domain.ErrAlreadyRunning)

	close(gm.release)
	require.Eventually(t, func() bool { return c.State() == domain.SessionStopped }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Start(params()))
	assert.NotEqual(t, old, c.Status().SessionID)
	_, err = c.LatestEvent()
	assert.ErrorIs(t, err, domain.ErrNoDataYet)
	assert.Empty(t, c.Events())

	v.conn(t, 1).msgs <- []byte(bookFrame)
	ev := nextEvent(t, c)
	assert.Equal(t, c.Status().SessionID, ev.SessionID)
	assert.Equal(t, uint64(1), ev.Sequence)
	require.NoError(t, c.Stop(context.Background()))
}

func TestController_NothingProcessedAfterStop(t *testing.T) {
	v := &venue{}
	gm := newGatedModel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewController(Config{URLTemplate: goquant.DefaultURLTemplate, StopTimeout: 2 * time.Second}, v, gm, nil, logger)

	require.NoError(t, c.Start(params()))
	conn := v.conn(t, 0)
	for i := 0; i < 3; i++ {
		conn.msgs <- []byte(bookFrame)
	}
	gm.waitEntered(t)
	version := c.Store().Version()
	require.Equal(t, uint64(1), version)

	stopped := make(chan error, 1)
	go func() { stopped <- c.Stop(context.Background()) }()
	require.Eventually(t, func() bool { return c.State() == domain.SessionStopping }, 2*time.Second, 5*time.Millisecond)
	close(gm.release)

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, domain.SessionStopped, c.State())
	assert.Equal(t, int32(1), gm.calls.Load())
	assert.Equal(t, version, c.Store().Version())
	assert.Empty(t, c.Events())
	_, err := c.LatestEvent()
	assert.ErrorIs(t, err, domain.ErrNoDataYet)
}
