package domain

import (
	"fmt"
	"math"
	"strings"
)

// OrderType is the kind of hypothetical order being costed.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// ParseOrderType normalises s into an OrderType.
func ParseOrderType(s string) (OrderType, error) {
	switch OrderType(strings.ToLower(strings.TrimSpace(s))) {
	case OrderTypeMarket:
		return OrderTypeMarket, nil
	case OrderTypeLimit:
		return OrderTypeLimit, nil
	default:
		return "", fmt.Errorf("unknown order type %q (valid: market, limit): %w", s, ErrInvalidParameters)
	}
}

// SimulationParameters is the operator-supplied description of the order to
// cost. The pipeline reads it fresh for every snapshot and never mutates it.
type SimulationParameters struct {
	Exchange   string    `json:"exchange" toml:"exchange"`
	Instrument string    `json:"instrument" toml:"instrument"`
	OrderType  OrderType `json:"order_type" toml:"order_type"`
	// Quantity is the order size in quote currency.
	Quantity   float64 `json:"quantity" toml:"quantity"`
	Volatility float64 `json:"volatility" toml:"volatility"`
	FeeTier    int     `json:"fee_tier" toml:"fee_tier"`
}

// Validate checks the parameters and returns a single error describing every
// problem found, wrapping ErrInvalidParameters.
func (p SimulationParameters) Validate() error {
	var errs []string

	if strings.TrimSpace(p.Exchange) == "" {
		errs = append(errs, "exchange must not be empty")
	}
	if strings.TrimSpace(p.Instrument) == "" {
		errs = append(errs, "instrument must not be empty")
	}
	if p.OrderType != OrderTypeMarket && p.OrderType != OrderTypeLimit {
		errs = append(errs, fmt.Sprintf("order_type must be market or limit, got %q", p.OrderType))
	}
	if math.IsNaN(p.Quantity) || math.IsInf(p.Quantity, 0) || p.Quantity <= 0 {
		errs = append(errs, fmt.Sprintf("quantity must be > 0, got %v", p.Quantity))
	}
	if math.IsNaN(p.Volatility) || math.IsInf(p.Volatility, 0) || p.Volatility < 0 {
		errs = append(errs, fmt.Sprintf("volatility must be >= 0, got %v", p.Volatility))
	}
	if p.FeeTier < 0 {
		errs = append(errs, fmt.Sprintf("fee_tier must be >= 0, got %d", p.FeeTier))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidParameters, strings.Join(errs, "; "))
	}
	return nil
}
