package domain

import "time"

// CostEstimate is the model output for one snapshot. Components are quote
// currency amounts; a replacement model may legitimately produce negatives.
type CostEstimate struct {
	Slippage         float64 `json:"slippage"`
	Fees             float64 `json:"fees"`
	MarketImpact     float64 `json:"market_impact"`
	NetCost          float64 `json:"net_cost"`
	MakerProbability float64 `json:"maker_probability"`
	LatencyMs        float64 `json:"latency_ms"`
}

// EstimateEvent is the result event handed to external sinks.
type EstimateEvent struct {
	SessionID    string       `json:"session_id"`
	Sequence     uint64       `json:"sequence"`
	Exchange     string       `json:"exchange"`
	Instrument   string       `json:"instrument"`
	OrderType    OrderType    `json:"order_type"`
	Quantity     float64      `json:"quantity"`
	Model        string       `json:"model"`
	Estimate     CostEstimate `json:"estimate"`
	SnapshotTime time.Time    `json:"snapshot_time"`
	EmittedAt    time.Time    `json:"emitted_at"`
}
