package model

import (
	"fmt"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// BookWalkName is the registry name of the depth-walking model.
const BookWalkName = "book_walk"

// BookWalk derives slippage by walking the ask ladder for the order's quote
// notional and comparing the average fill price to the best ask. Fees, impact
// and maker probability come from the reference formulas.
//
// Notional beyond the visible depth is assumed to fill at the worst visible
// price, so the slippage is a lower bound on thin books.
type BookWalk struct {
	ref *Reference
}

// NewBookWalk returns a BookWalk model sharing c with the reference formulas.
func NewBookWalk(c Coefficients) *BookWalk {
	return &BookWalk{ref: NewReference(c)}
}

// Name implements Model.
func (b *BookWalk) Name() string { return BookWalkName }

// Estimate implements Model.
func (b *BookWalk) Estimate(p domain.SimulationParameters, snap *domain.OrderbookSnapshot) (domain.CostEstimate, error) {
	if !snap.Usable() {
		return domain.CostEstimate{}, fmt.Errorf("model/book_walk: %w", domain.ErrNoDataYet)
	}

	avg, err := AverageFillPrice(snap.Asks, p.Quantity)
	if err != nil {
		return domain.CostEstimate{}, fmt.Errorf("model/book_walk: %w", err)
	}
	best := snap.Asks[0].Price

	return domain.CostEstimate{
		Slippage:         p.Quantity * (avg/best - 1),
		Fees:             b.ref.Fees(p.Quantity, p.FeeTier),
		MarketImpact:     b.ref.Impact(p.Quantity, p.Volatility),
		MakerProbability: b.ref.MakerProbability(p.Quantity),
	}, nil
}

// AverageFillPrice spends notional (quote currency) across levels in order
// and returns the volume-weighted price paid.
func AverageFillPrice(levels []domain.PriceLevel, notional float64) (float64, error) {
	if len(levels) == 0 {
		return 0, domain.ErrNoDataYet
	}
	if notional <= 0 {
		return 0, fmt.Errorf("notional must be > 0: %w", domain.ErrInvalidParameters)
	}

	remaining := notional
	var base float64
	last := levels[0].Price
	for _, lvl := range levels {
		if lvl.Price <= 0 {
			continue
		}
		last = lvl.Price
		levelNotional := lvl.Price * lvl.Size
		if levelNotional >= remaining {
			base += remaining / lvl.Price
			remaining = 0
			break
		}
		base += lvl.Size
		remaining -= levelNotional
	}
	if remaining > 0 {
		base += remaining / last
	}
	if base <= 0 {
		return 0, domain.ErrNoDataYet
	}
	return notional / base, nil
}
