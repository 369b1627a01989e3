package sink

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

const separator = "----------------------------------------"

// TextSink renders each estimate as a block of labelled lines.
type TextSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTextSink creates a TextSink writing to w.
func NewTextSink(w io.Writer) *TextSink {
	return &TextSink{w: w}
}

// Name implements Sink.
func (s *TextSink) Name() string { return "text" }

// Emit implements Sink.
func (s *TextSink) Emit(_ context.Context, ev domain.EstimateEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.w, Render(ev.Estimate)); err != nil {
		return fmt.Errorf("sink/text: write: %w", err)
	}
	return nil
}

// Render formats est for display:
//
//	Expected Slippage: $0.0510
//	Expected Fees: $0.0900
//	Expected Market Impact: $0.0031
//	Net Cost: $0.1441
//	Maker Probability: 50.00%
//	Internal Latency: 0.12 ms
func Render(est domain.CostEstimate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Expected Slippage: %s\n", usd(est.Slippage))
	fmt.Fprintf(&b, "Expected Fees: %s\n", usd(est.Fees))
	fmt.Fprintf(&b, "Expected Market Impact: %s\n", usd(est.MarketImpact))
	fmt.Fprintf(&b, "Net Cost: %s\n", usd(est.NetCost))
	fmt.Fprintf(&b, "Maker Probability: %s%%\n",
		decimal.NewFromFloat(est.MakerProbability).Shift(2).StringFixed(2))
	fmt.Fprintf(&b, "Internal Latency: %s ms\n", decimal.NewFromFloat(est.LatencyMs).StringFixed(2))
	b.WriteString(separator)
	b.WriteByte('\n')
	return b.String()
}

func usd(v float64) string {
	d := decimal.NewFromFloat(v).Round(4)
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(4)
	}
	return "$" + d.StringFixed(4)
}
