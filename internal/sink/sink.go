// Package sink delivers result events to their consumers. Events are
// dispatched to every registered sink in arrival order; one sink failing
// does not keep the event from the others.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/alanyoungcy/tradesim/internal/metrics"
)

// Sink is one destination for result events.
type Sink interface {
	// Emit delivers ev. It should return promptly; the dispatcher calls
	// sinks one after another.
	Emit(ctx context.Context, ev domain.EstimateEvent) error
	// Name identifies the sink in logs and metrics (e.g. "redis").
	Name() string
}

// Dispatcher fans events out to a fixed set of sinks.
type Dispatcher struct {
	sinks  []Sink
	rec    *metrics.Recorder
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher over sinks.
func NewDispatcher(sinks []Sink, rec *metrics.Recorder, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sinks:  sinks,
		rec:    rec,
		logger: logger.With(slog.String("component", "dispatcher")),
	}
}

// Names lists the registered sinks.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Run consumes events until ctx is cancelled or the channel is closed.
// Events are handled strictly one at a time.
func (d *Dispatcher) Run(ctx context.Context, events <-chan domain.EstimateEvent) error {
	d.logger.Info("dispatcher started", slog.Any("sinks", d.Names()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			// Failures are logged and counted per sink inside Dispatch.
			_ = d.Dispatch(ctx, ev)
		}
	}
}

// Dispatch delivers ev to every sink and returns a combined error naming
// each sink that failed.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.EstimateEvent) error {
	if len(d.sinks) == 0 {
		return nil
	}

	var errs []string
	for _, s := range d.sinks {
		if err := s.Emit(ctx, ev); err != nil {
			d.rec.SinkError(s.Name())
			d.logger.ErrorContext(ctx, "sink failed",
				slog.String("sink", s.Name()),
				slog.Uint64("sequence", ev.Sequence),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("sink: %d of %d sinks failed: %s", len(errs), len(d.sinks), strings.Join(errs, "; "))
	}
	return nil
}
