package sink

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/alanyoungcy/tradesim/internal/metrics"
)

type recordingSink struct {
	name string
	err  error
	mu   sync.Mutex
	seqs []uint64
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Emit(_ context.Context, ev domain.EstimateEvent) error {
	s.mu.Lock()
	s.seqs = append(s.seqs, ev.Sequence)
	s.mu.Unlock()
	return s.err
}

func (s *recordingSink) got() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.seqs...)
}

type memPublisher struct {
	last *domain.EstimateEvent
}

func (p *memPublisher) Publish(_ context.Context, ev domain.EstimateEvent) error {
	p.last = &ev
	return nil
}

func (p *memPublisher) Latest(context.Context) (domain.EstimateEvent, error) {
	if p.last == nil {
		return domain.EstimateEvent{}, domain.ErrNotFound
	}
	return *p.last, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func workedEstimate() domain.CostEstimate {
	return domain.CostEstimate{
		Slippage:         0.051,
		Fees:             0.09,
		MarketImpact:     0.00306,
		NetCost:          0.14406,
		MakerProbability: 0.5,
		LatencyMs:        0.1234,
	}
}

func TestRender(t *testing.T) {
	want := strings.Join([]string{
		"Expected Slippage: $0.0510",
		"Expected Fees: $0.0900",
		"Expected Market Impact: $0.0031",
		"Net Cost: $0.1441",
		"Maker Probability: 50.00%",
		"Internal Latency: 0.12 ms",
		separator,
		"",
	}, "\n")
	assert.Equal(t, want, Render(workedEstimate()))
}

func TestRender_NegativeAmounts(t *testing.T) {
	out := Render(domain.CostEstimate{MarketImpact: -1.23456, NetCost: -0.00001})
	assert.Contains(t, out, "Expected Market Impact: -$1.2346\n")
	assert.Contains(t, out, "Net Cost: $0.0000\n")
}

func TestTextSink_Emit(t *testing.T) {
	var buf bytes.Buffer
	s := NewTextSink(&buf)
	require.NoError(t, s.Emit(context.Background(), domain.EstimateEvent{Estimate: workedEstimate()}))
	require.NoError(t, s.Emit(context.Background(), domain.EstimateEvent{Estimate: workedEstimate()}))
	assert.Equal(t, 2, strings.Count(buf.String(), "Net Cost: $0.1441"))
}

func TestDispatcher_FailingSinkDoesNotBlockOthers(t *testing.T) {
	rec := metrics.New()
	bad := &recordingSink{name: "bad", err: errors.New("down")}
	good := &recordingSink{name: "good"}
	d := NewDispatcher([]Sink{bad, good}, rec, quietLogger())

	err := d.Dispatch(context.Background(), domain.EstimateEvent{Sequence: 7})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: down")
	assert.Equal(t, []uint64{7}, good.got())
	expected := `
# HELP tradesim_sink_errors_total Failed deliveries by sink
# TYPE tradesim_sink_errors_total counter
tradesim_sink_errors_total{sink="bad"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(rec.Registry(), strings.NewReader(expected), "tradesim_sink_errors_total"))
}

func TestDispatcher_RunPreservesOrder(t *testing.T) {
	s := &recordingSink{name: "rec"}
	d := NewDispatcher([]Sink{s}, nil, quietLogger())
	assert.Equal(t, []string{"rec"}, d.Names())

	events := make(chan domain.EstimateEvent, 50)
	for i := uint64(1); i <= 50; i++ {
		events <- domain.EstimateEvent{Sequence: i}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, events) }()

	require.Eventually(t, func() bool { return len(s.got()) == 50 }, 2*time.Second, 5*time.Millisecond)
	got := s.got()
	for i, seq := range got {
		assert.Equal(t, uint64(i+1), seq)
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestPublisherSink(t *testing.T) {
	pub := &memPublisher{}
	s := NewPublisherSink("redis", pub)
	assert.Equal(t, "redis", s.Name())

	require.NoError(t, s.Emit(context.Background(), domain.EstimateEvent{Sequence: 3}))
	ev, err := pub.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), ev.Sequence)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, s.Emit(context.Background(), domain.EstimateEvent{Sequence: 1, Estimate: workedEstimate()}))
	assert.Contains(t, buf.String(), `"net_cost":0.14406`)
	assert.Contains(t, buf.String(), `"component":"estimate"`)
}
