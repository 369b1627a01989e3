// Package model holds the pricing models that turn simulation parameters and
// an orderbook snapshot into a cost estimate. Models are pure: no shared state
// and no I/O, so the pipeline can call them from its receive loop.
package model

import "github.com/alanyoungcy/tradesim/internal/domain"

// Model estimates the execution cost of the order described by p against
// snap. The returned estimate leaves NetCost and LatencyMs unset; the pipeline
// fills those in.
type Model interface {
	Name() string
	Estimate(p domain.SimulationParameters, snap *domain.OrderbookSnapshot) (domain.CostEstimate, error)
}

// Func adapts a plain function to the Model interface. Handy in tests.
type Func struct {
	ModelName string
	Fn        func(p domain.SimulationParameters, snap *domain.OrderbookSnapshot) (domain.CostEstimate, error)
}

// Name implements Model.
func (f Func) Name() string { return f.ModelName }

// Estimate implements Model.
func (f Func) Estimate(p domain.SimulationParameters, snap *domain.OrderbookSnapshot) (domain.CostEstimate, error) {
	return f.Fn(p, snap)
}
