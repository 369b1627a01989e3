package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradesim/internal/book"
	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/alanyoungcy/tradesim/internal/model"
)

func testParams() domain.SimulationParameters {
	return domain.SimulationParameters{
		Exchange:   "OKX",
		Instrument: "BTC-USDT-SWAP",
		OrderType:  domain.OrderTypeMarket,
		Quantity:   100,
		Volatility: 0.02,
		FeeTier:    1,
	}
}

func testSnapshot() *domain.OrderbookSnapshot {
	return &domain.OrderbookSnapshot{
		Asks:     []domain.PriceLevel{{Price: 100, Size: 10}},
		Bids:     []domain.PriceLevel{{Price: 99, Size: 10}},
		BestAsk:  100,
		BestBid:  99,
		MidPrice: 99.5,
		Spread:   1,
	}
}

func TestEstimator_WorkedExample(t *testing.T) {
	store := book.NewStore()
	require.NoError(t, store.Replace(testSnapshot()))

	e := NewEstimator(store, StaticParams(testParams()), model.NewReference(model.DefaultCoefficients()))
	arrived := time.Date(2025, 5, 4, 10, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return arrived.Add(1500 * time.Microsecond) }

	res, err := e.Run(arrived)
	require.NoError(t, err)

	assert.InDelta(t, 0.051, res.Estimate.Slippage, 1e-12)
	assert.InDelta(t, 0.09, res.Estimate.Fees, 1e-12)
	assert.InDelta(t, 0.00306, res.Estimate.MarketImpact, 1e-12)
	assert.InDelta(t, 0.14406, res.Estimate.NetCost, 1e-9)
	assert.InDelta(t, 0.5, res.Estimate.MakerProbability, 1e-12)
	assert.InDelta(t, 1.5, res.Estimate.LatencyMs, 1e-9)
	assert.Equal(t, testParams(), res.Params)
	assert.NotNil(t, res.Snapshot)
}

func TestEstimator_NoDataYetSkipsModel(t *testing.T) {
	called := false
	m := model.Func{ModelName: "spy", Fn: func(domain.SimulationParameters, *domain.OrderbookSnapshot) (domain.CostEstimate, error) {
		called = true
		return domain.CostEstimate{}, nil
	}}

	e := NewEstimator(book.NewStore(), StaticParams(testParams()), m)
	_, err := e.Run(time.Now())
	assert.ErrorIs(t, err, domain.ErrNoDataYet)
	assert.False(t, called)
}

func TestEstimator_InvalidParameters(t *testing.T) {
	store := book.NewStore()
	require.NoError(t, store.Replace(testSnapshot()))

	for name, mutate := range map[string]func(*domain.SimulationParameters){
		"zero quantity":       func(p *domain.SimulationParameters) { p.Quantity = 0 },
		"negative quantity":   func(p *domain.SimulationParameters) { p.Quantity = -5 },
		"negative volatility": func(p *domain.SimulationParameters) { p.Volatility = -0.1 },
	} {
		t.Run(name, func(t *testing.T) {
			p := testParams()
			mutate(&p)
			e := NewEstimator(store, StaticParams(p), model.NewReference(model.DefaultCoefficients()))
			_, err := e.Run(time.Now())
			assert.ErrorIs(t, err, domain.ErrInvalidParameters)
		})
	}
}

func TestEstimator_ReplacementModelMayGoNegative(t *testing.T) {
	store := book.NewStore()
	require.NoError(t, store.Replace(testSnapshot()))

	m := model.Func{ModelName: "rebate", Fn: func(domain.SimulationParameters, *domain.OrderbookSnapshot) (domain.CostEstimate, error) {
		return domain.CostEstimate{Slippage: 1, Fees: -0.5, MarketImpact: -2, MakerProbability: 0.9}, nil
	}}
	e := NewEstimator(store, StaticParams(testParams()), m)

	res, err := e.Run(time.Now())
	require.NoError(t, err)
	assert.InDelta(t, -1.5, res.Estimate.NetCost, 1e-12)
}

func TestEstimator_ModelErrorWrapped(t *testing.T) {
	store := book.NewStore()
	require.NoError(t, store.Replace(testSnapshot()))
	boom := errors.New("boom")

	e := NewEstimator(store, StaticParams(testParams()), model.Func{ModelName: "bad", Fn: func(domain.SimulationParameters, *domain.OrderbookSnapshot) (domain.CostEstimate, error) {
		return domain.CostEstimate{}, boom
	}})
	_, err := e.Run(time.Now())
	assert.ErrorIs(t, err, boom)
}

func TestEstimator_LatencyNeverNegative(t *testing.T) {
	store := book.NewStore()
	require.NoError(t, store.Replace(testSnapshot()))

	e := NewEstimator(store, StaticParams(testParams()), model.NewReference(model.DefaultCoefficients()))
	now := time.Now()
	e.now = func() time.Time { return now }

	res, err := e.Run(now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Estimate.LatencyMs)
}
