package model

import (
	"math"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// ReferenceName is the registry name of the reference model.
const ReferenceName = "reference"

// Coefficients parameterise the reference formulas. They are placeholders
// with no economic calibration behind them.
type Coefficients struct {
	SlippageRate   float64 // linear slippage per unit of quantity
	BaseFeeRate    float64
	TierDiscount   float64 // fee rate discount per tier
	FloorFeeRate   float64
	ImpactRate     float64 // multiplier on sqrt(quantity)
	MakerSlope     float64 // logistic slope on quantity
	MakerIntercept float64
}

// DefaultCoefficients returns the stock reference coefficients.
func DefaultCoefficients() Coefficients {
	return Coefficients{
		SlippageRate:   0.0005,
		BaseFeeRate:    0.001,
		TierDiscount:   0.0001,
		FloorFeeRate:   0.0002,
		ImpactRate:     0.0003,
		MakerSlope:     -0.01,
		MakerIntercept: 1,
	}
}

// Reference is the default model: linear slippage, tiered fees with a floor
// rate, square-root impact and a logistic maker probability.
type Reference struct {
	c Coefficients
}

// NewReference returns a Reference model using c.
func NewReference(c Coefficients) *Reference {
	return &Reference{c: c}
}

// Name implements Model.
func (r *Reference) Name() string { return ReferenceName }

// Estimate implements Model. The snapshot is not consulted by the reference
// formulas.
func (r *Reference) Estimate(p domain.SimulationParameters, _ *domain.OrderbookSnapshot) (domain.CostEstimate, error) {
	return domain.CostEstimate{
		Slippage:         r.Slippage(p.Quantity, p.Volatility),
		Fees:             r.Fees(p.Quantity, p.FeeTier),
		MarketImpact:     r.Impact(p.Quantity, p.Volatility),
		MakerProbability: r.MakerProbability(p.Quantity),
	}, nil
}

// Slippage is rate * quantity * (1 + volatility).
func (r *Reference) Slippage(quantity, volatility float64) float64 {
	return r.c.SlippageRate * quantity * (1 + volatility)
}

// FeeRate returns the effective fee rate for tier. Tiers past the floor are
// indistinguishable.
func (r *Reference) FeeRate(tier int) float64 {
	return math.Max(r.c.BaseFeeRate-float64(tier)*r.c.TierDiscount, r.c.FloorFeeRate)
}

// Fees is quantity * FeeRate(tier).
func (r *Reference) Fees(quantity float64, tier int) float64 {
	return quantity * r.FeeRate(tier)
}

// Impact follows a square-root law in quantity.
func (r *Reference) Impact(quantity, volatility float64) float64 {
	return r.c.ImpactRate * math.Sqrt(quantity) * (1 + volatility)
}

// MakerProbability is sigmoid(slope*quantity + intercept), kept strictly
// inside (0, 1) even where float64 saturates.
func (r *Reference) MakerProbability(quantity float64) float64 {
	return sigmoid(r.c.MakerSlope*quantity + r.c.MakerIntercept)
}

var (
	probFloor = math.Nextafter(0, 1)
	probCeil  = math.Nextafter(1, 0)
)

func sigmoid(x float64) float64 {
	v := 1 / (1 + math.Exp(-x))
	if v <= 0 {
		return probFloor
	}
	if v >= 1 {
		return probCeil
	}
	return v
}
