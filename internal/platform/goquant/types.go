package goquant

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// flexFloat unmarshals from a JSON number or a numeric string. Venues send
// "95445.5" as often as 95445.5. null is an error rather than zero.
type flexFloat float64

var errNullLevel = errors.New("null price or size")

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return errNullLevel
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// BookMessage is one L2 frame from the l2-orderbook stream. Asks and Bids are
// [price, size] pairs.
type BookMessage struct {
	Timestamp string        `json:"timestamp"`
	Exchange  string        `json:"exchange"`
	Symbol    string        `json:"symbol"`
	Asks      [][]flexFloat `json:"asks"`
	Bids      [][]flexFloat `json:"bids"`
}

// ParseBook decodes raw into a snapshot. Every failure wraps domain.ErrParse.
// arrivedAt stands in for the venue timestamp when the frame has none.
func ParseBook(raw []byte, arrivedAt time.Time) (*domain.OrderbookSnapshot, error) {
	var msg BookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("goquant: decode book: %v: %w", err, domain.ErrParse)
	}
	return BookToDomainSnapshot(&msg, arrivedAt)
}

// BookToDomainSnapshot converts a decoded frame into a snapshot with asks
// ascending and bids descending.
func BookToDomainSnapshot(msg *BookMessage, arrivedAt time.Time) (*domain.OrderbookSnapshot, error) {
	if len(msg.Asks) == 0 || len(msg.Bids) == 0 {
		return nil, fmt.Errorf("goquant: book missing asks or bids: %w", domain.ErrParse)
	}

	asks, err := toLevels("asks", msg.Asks)
	if err != nil {
		return nil, err
	}
	bids, err := toLevels("bids", msg.Bids)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })

	snap := &domain.OrderbookSnapshot{
		Exchange:   msg.Exchange,
		Instrument: msg.Symbol,
		Asks:       asks,
		Bids:       bids,
		BestAsk:    asks[0].Price,
		BestBid:    bids[0].Price,
		Timestamp:  arrivedAt,
	}
	snap.MidPrice = (snap.BestBid + snap.BestAsk) / 2
	snap.Spread = snap.BestAsk - snap.BestBid

	if msg.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, msg.Timestamp); err == nil {
			snap.Timestamp = ts
		}
	}
	return snap, nil
}

func toLevels(side string, raw [][]flexFloat) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(raw))
	for i, pair := range raw {
		if len(pair) < 2 {
			return nil, fmt.Errorf("goquant: %s[%d]: want [price, size], got %d values: %w", side, i, len(pair), domain.ErrParse)
		}
		price, size := float64(pair[0]), float64(pair[1])
		if !finite(price) || !finite(size) || price <= 0 || size < 0 {
			return nil, fmt.Errorf("goquant: %s[%d]: bad level %v@%v: %w", side, i, size, price, domain.ErrParse)
		}
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}
	return out, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
