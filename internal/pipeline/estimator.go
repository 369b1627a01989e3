// Package pipeline runs the model chain for one snapshot: current
// parameters, current book, model, then net cost and latency.
package pipeline

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/tradesim/internal/book"
	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/alanyoungcy/tradesim/internal/model"
)

// ParamsSource supplies the parameters in effect at the time of a run.
type ParamsSource interface {
	Parameters() domain.SimulationParameters
}

// Result is one completed pipeline run.
type Result struct {
	Params   domain.SimulationParameters
	Snapshot *domain.OrderbookSnapshot
	Estimate domain.CostEstimate
}

// Estimator computes a CostEstimate from the latest book state.
type Estimator struct {
	store  *book.Store
	params ParamsSource
	model  model.Model
	now    func() time.Time
}

// NewEstimator wires an estimator. m is the pricing strategy; swapping it
// changes the numbers, not the orchestration.
func NewEstimator(store *book.Store, params ParamsSource, m model.Model) *Estimator {
	return &Estimator{
		store:  store,
		params: params,
		model:  m,
		now:    time.Now,
	}
}

// Model returns the configured pricing model.
func (e *Estimator) Model() model.Model { return e.model }

// Run estimates against whatever snapshot is current. arrivedAt is the
// frame's arrival time and anchors the latency measurement.
//
// Run fails with domain.ErrInvalidParameters before touching the store, and
// with domain.ErrNoDataYet when nothing has been installed yet. It never
// waits for data.
func (e *Estimator) Run(arrivedAt time.Time) (Result, error) {
	p := e.params.Parameters()
	if err := p.Validate(); err != nil {
		return Result{}, err
	}

	snap, err := e.store.Current()
	if err != nil {
		return Result{}, err
	}

	est, err := e.model.Estimate(p, snap)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: model %s: %w", e.model.Name(), err)
	}
	est.NetCost = est.Slippage + est.Fees + est.MarketImpact

	latency := float64(e.now().Sub(arrivedAt)) / float64(time.Millisecond)
	if latency < 0 {
		latency = 0
	}
	est.LatencyMs = latency

	return Result{Params: p, Snapshot: snap, Estimate: est}, nil
}

// StaticParams is a ParamsSource with fixed parameters.
type StaticParams domain.SimulationParameters

// Parameters implements ParamsSource.
func (s StaticParams) Parameters() domain.SimulationParameters {
	return domain.SimulationParameters(s)
}
