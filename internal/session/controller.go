// Package session owns the lifecycle of the single active feed subscription
// and exposes the most recent estimate to consumers.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradesim/internal/book"
	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/alanyoungcy/tradesim/internal/feed"
	"github.com/alanyoungcy/tradesim/internal/metrics"
	"github.com/alanyoungcy/tradesim/internal/model"
	"github.com/alanyoungcy/tradesim/internal/pipeline"
	"github.com/alanyoungcy/tradesim/internal/platform/goquant"
)

// Config tunes the controller.
type Config struct {
	URLTemplate string
	// StopTimeout bounds how long Stop waits for the receive loop to exit.
	StopTimeout time.Duration
	// EventBuffer is the capacity of the Events channel.
	EventBuffer int
}

// Status is a point-in-time view of the controller.
type Status struct {
	SessionID     string                      `json:"session_id,omitempty"`
	State         domain.SessionState         `json:"state"`
	ListenerState domain.ListenerState        `json:"listener_state"`
	Parameters    domain.SimulationParameters `json:"parameters"`
	Model         string                      `json:"model"`
	Sequence      uint64                      `json:"sequence"`
	LastError     string                      `json:"last_error,omitempty"`
}

// activeRun is one Start..end cycle.
type activeRun struct {
	id       string
	params   domain.SimulationParameters
	listener *feed.Listener
	cancel   context.CancelFunc
	done     chan struct{}
}

// Controller starts and stops the feed listener, one session at a time.
type Controller struct {
	cfg       Config
	dialer    goquant.Dialer
	store     *book.Store
	estimator *pipeline.Estimator
	rec       *metrics.Recorder
	logger    *slog.Logger

	params atomic.Pointer[domain.SimulationParameters]
	latest atomic.Pointer[domain.EstimateEvent]
	seq    atomic.Uint64

	events chan domain.EstimateEvent
	ended  chan error

	mu      sync.Mutex
	state   domain.SessionState
	cur     *activeRun
	lastErr error
}

// NewController creates an idle controller that prices with m.
func NewController(cfg Config, dialer goquant.Dialer, m model.Model, rec *metrics.Recorder, logger *slog.Logger) *Controller {
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = goquant.DefaultURLTemplate
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}

	c := &Controller{
		cfg:    cfg,
		dialer: dialer,
		store:  book.NewStore(),
		rec:    rec,
		logger: logger.With(slog.String("component", "session")),
		events: make(chan domain.EstimateEvent, cfg.EventBuffer),
		ended:  make(chan error, 1),
		state:  domain.SessionIdle,
	}
	c.estimator = pipeline.NewEstimator(c.store, c, m)
	return c
}

// Parameters returns the parameters currently in effect. It satisfies
// pipeline.ParamsSource.
func (c *Controller) Parameters() domain.SimulationParameters {
	if p := c.params.Load(); p != nil {
		return *p
	}
	return domain.SimulationParameters{}
}

// Store exposes the book state backing the current session.
func (c *Controller) Store() *book.Store { return c.store }

// Events delivers result events in arrival order. The channel is never
// closed; when the consumer lags, events are dropped rather than stalling
// the receive loop.
func (c *Controller) Events() <-chan domain.EstimateEvent { return c.events }

// Ended receives the error of a session that ended without a Stop request.
func (c *Controller) Ended() <-chan error { return c.ended }

// Start validates params and opens a new subscription in the background.
func (c *Controller) Start(params domain.SimulationParameters) error {
	if err := params.Validate(); err != nil {
		return fmt.Errorf("session: start: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == domain.SessionRunning || c.state == domain.SessionStopping {
		return fmt.Errorf("session: start: %s is %s: %w", c.cur.id, c.state, domain.ErrAlreadyRunning)
	}

	c.params.Store(&params)
	c.store.Reset()
	c.latest.Store(nil)
	c.seq.Store(0)
	c.lastErr = nil

	endpoint := goquant.Endpoint(c.cfg.URLTemplate, params.Exchange, params.Instrument)
	ctx, cancel := context.WithCancel(context.Background())
	r := &activeRun{
		id:     uuid.NewString(),
		params: params,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.listener = feed.NewListener(endpoint, c.dialer, c.store, c.snapshotHandler(r), c.rec, c.logger)

	c.cur = r
	c.state = domain.SessionRunning
	c.logger.Info("session started",
		slog.String("session_id", r.id),
		slog.String("endpoint", endpoint),
		slog.String("model", c.estimator.Model().Name()),
		slog.Float64("quantity", params.Quantity),
	)

	go c.run(ctx, r)
	return nil
}

func (c *Controller) run(ctx context.Context, r *activeRun) {
	defer close(r.done)
	err := r.listener.Run(ctx)
	r.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != r {
		return
	}
	switch c.state {
	case domain.SessionStopping:
		c.state = domain.SessionStopped
		c.logger.Info("session stopped", slog.String("session_id", r.id))
		return
	case domain.SessionRunning:
	default:
		return
	}
	// Nobody asked for this: the venue side ended the session.
	c.state = domain.SessionStopped
	c.lastErr = err
	if err != nil {
		c.logger.Error("session ended", slog.String("session_id", r.id), slog.String("error", err.Error()))
	} else {
		c.logger.Info("session ended", slog.String("session_id", r.id))
	}
	select {
	case c.ended <- err:
	default:
	}
}

// Stop closes the subscription and waits, bounded by the configured stop
// timeout and ctx, for the receive loop to exit. Stopping an idle or
// already stopped controller is a no-op. If the wait gives up, the session
// stays Stopping until the receive loop exits, and Start is refused until
// then.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case domain.SessionIdle, domain.SessionStopped:
		c.state = domain.SessionStopped
		c.mu.Unlock()
		return nil
	case domain.SessionRunning:
		c.state = domain.SessionStopping
		c.logger.Info("session stopping", slog.String("session_id", c.cur.id))
		c.cur.listener.Stop()
		c.cur.cancel()
	}
	r := c.cur
	c.mu.Unlock()

	timer := time.NewTimer(c.cfg.StopTimeout)
	defer timer.Stop()

	select {
	case <-r.done:
		return nil
	case <-timer.C:
		return fmt.Errorf("session: stop %s after %s: %w", r.id, c.cfg.StopTimeout, domain.ErrStopTimeout)
	case <-ctx.Done():
		return fmt.Errorf("session: stop %s: %w", r.id, ctx.Err())
	}
}

// UpdateParameters replaces the parameters used from the next snapshot on.
// While a session is live the exchange and instrument are fixed by its
// subscription; changing them needs a restart.
func (c *Controller) UpdateParameters(params domain.SimulationParameters) error {
	if err := params.Validate(); err != nil {
		return fmt.Errorf("session: update parameters: %w", err)
	}

	c.mu.Lock()
	if c.cur != nil && (c.state == domain.SessionRunning || c.state == domain.SessionStopping) &&
		!sameMarket(c.cur.params, params) {
		sub := c.cur.params
		c.mu.Unlock()
		return fmt.Errorf("session: update parameters: subscribed to %s/%s, %s/%s requires a restart: %w",
			sub.Exchange, sub.Instrument, params.Exchange, params.Instrument, domain.ErrInvalidParameters)
	}
	c.params.Store(&params)
	c.mu.Unlock()

	c.logger.Info("parameters updated",
		slog.String("order_type", string(params.OrderType)),
		slog.Float64("quantity", params.Quantity),
		slog.Float64("volatility", params.Volatility),
		slog.Int("fee_tier", params.FeeTier),
	)
	return nil
}

// LatestEstimate returns the most recent estimate or domain.ErrNoDataYet.
func (c *Controller) LatestEstimate() (domain.CostEstimate, error) {
	ev, err := c.LatestEvent()
	if err != nil {
		return domain.CostEstimate{}, err
	}
	return ev.Estimate, nil
}

// LatestEvent returns the most recent result event or domain.ErrNoDataYet.
func (c *Controller) LatestEvent() (domain.EstimateEvent, error) {
	ev := c.latest.Load()
	if ev == nil {
		return domain.EstimateEvent{}, domain.ErrNoDataYet
	}
	return *ev, nil
}

// State returns the lifecycle state.
func (c *Controller) State() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns why the last session ended on its own, if it did.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Status snapshots the controller for display.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:         c.state,
		ListenerState: domain.ListenerDisconnected,
		Parameters:    c.Parameters(),
		Model:         c.estimator.Model().Name(),
		Sequence:      c.seq.Load(),
	}
	if c.cur != nil {
		st.SessionID = c.cur.id
		st.ListenerState = c.cur.listener.State()
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

func sameMarket(a, b domain.SimulationParameters) bool {
	return strings.EqualFold(a.Exchange, b.Exchange) && a.Instrument == b.Instrument
}

// snapshotHandler runs the pipeline for every installed snapshot. It is
// called on the receive loop, so events leave in arrival order. Results of a
// run that is no longer the live one are discarded.
func (c *Controller) snapshotHandler(r *activeRun) feed.SnapshotHandler {
	sessionID := r.id
	return func(_ context.Context, snap *domain.OrderbookSnapshot, arrivedAt time.Time) {
		res, err := c.estimator.Run(arrivedAt)
		if err != nil {
			c.pipelineFailed(sessionID, err)
			return
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.cur != r || c.state != domain.SessionRunning {
			c.logger.Debug("discarding estimate of stopped session", slog.String("session_id", sessionID))
			return
		}

		ev := domain.EstimateEvent{
			SessionID:    sessionID,
			Sequence:     c.seq.Add(1),
			Exchange:     r.params.Exchange,
			Instrument:   r.params.Instrument,
			OrderType:    res.Params.OrderType,
			Quantity:     res.Params.Quantity,
			Model:        c.estimator.Model().Name(),
			Estimate:     res.Estimate,
			SnapshotTime: snap.Timestamp,
			EmittedAt:    time.Now().UTC(),
		}
		c.latest.Store(&ev)
		c.rec.Estimate(res.Estimate)

		select {
		case c.events <- ev:
		default:
			c.rec.EventDropped()
			c.logger.Warn("event buffer full, dropping estimate",
				slog.String("session_id", sessionID),
				slog.Uint64("sequence", ev.Sequence),
			)
		}
	}
}

func (c *Controller) pipelineFailed(sessionID string, err error) {
	switch {
	case errors.Is(err, domain.ErrNoDataYet):
		c.rec.PipelineError("no_data_yet")
		c.logger.Debug("no snapshot yet", slog.String("session_id", sessionID))
	case errors.Is(err, domain.ErrInvalidParameters):
		c.rec.PipelineError("invalid_parameters")
		c.logger.Warn("estimate skipped", slog.String("session_id", sessionID), slog.String("error", err.Error()))
	default:
		c.rec.PipelineError("model")
		c.logger.Error("estimate failed", slog.String("session_id", sessionID), slog.String("error", err.Error()))
	}
}
