package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderbookSnapshot is a full L2 snapshot of one instrument. Asks are ordered
// ascending by price and bids descending. A snapshot is never mutated after
// construction; a newer snapshot replaces it wholesale.
type OrderbookSnapshot struct {
	Exchange   string       `json:"exchange"`
	Instrument string       `json:"instrument"`
	Asks       []PriceLevel `json:"asks"`
	Bids       []PriceLevel `json:"bids"`
	BestBid    float64      `json:"best_bid"`
	BestAsk    float64      `json:"best_ask"`
	MidPrice   float64      `json:"mid_price"`
	Spread     float64      `json:"spread"`
	// Timestamp is the venue timestamp when present, otherwise the arrival time.
	Timestamp time.Time `json:"timestamp"`
}

// Usable reports whether both sides carry at least one level.
func (s *OrderbookSnapshot) Usable() bool {
	return s != nil && len(s.Asks) > 0 && len(s.Bids) > 0
}

// Depth returns the summed size of the first n levels on each side. n <= 0
// means all levels.
func (s *OrderbookSnapshot) Depth(n int) (bidSize, askSize float64) {
	for i, lvl := range s.Bids {
		if n > 0 && i >= n {
			break
		}
		bidSize += lvl.Size
	}
	for i, lvl := range s.Asks {
		if n > 0 && i >= n {
			break
		}
		askSize += lvl.Size
	}
	return bidSize, askSize
}
