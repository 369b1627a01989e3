// Package metrics exposes the pipeline's Prometheus instruments. A nil
// *Recorder is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

const namespace = "tradesim"

var listenerStates = []domain.ListenerState{
	domain.ListenerDisconnected,
	domain.ListenerConnecting,
	domain.ListenerConnected,
	domain.ListenerStopped,
}

// Recorder holds every instrument on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	framesReceived prometheus.Counter
	parseErrors    prometheus.Counter
	estimates      prometheus.Counter
	pipelineErrors *prometheus.CounterVec
	droppedEvents  prometheus.Counter
	sinkErrors     *prometheus.CounterVec
	latency        prometheus.Histogram
	netCost        prometheus.Gauge
	listenerState  *prometheus.GaugeVec
}

// New builds a Recorder registered on a fresh registry, with Go runtime and
// process collectors attached.
func New() *Recorder {
	reg := prometheus.NewRegistry()

	r := &Recorder{
		registry: reg,
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_frames_received_total",
			Help:      "Frames read from the venue stream",
		}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_parse_errors_total",
			Help:      "Frames discarded as malformed",
		}),
		estimates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimates_total",
			Help:      "Cost estimates produced",
		}),
		pipelineErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_errors_total",
			Help:      "Pipeline runs that produced no estimate, by reason",
		}, []string{"reason"}),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Result events dropped because the sink buffer was full",
		}),
		sinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed deliveries by sink",
		}, []string{"sink"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_latency_ms",
			Help:      "Frame arrival to finalised estimate, in milliseconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
		}),
		netCost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "net_cost",
			Help:      "Net cost of the latest estimate in quote currency",
		}),
		listenerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listener_state",
			Help:      "1 for the feed listener's current state, 0 otherwise",
		}, []string{"state"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.framesReceived,
		r.parseErrors,
		r.estimates,
		r.pipelineErrors,
		r.droppedEvents,
		r.sinkErrors,
		r.latency,
		r.netCost,
		r.listenerState,
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) FrameReceived() {
	if r != nil {
		r.framesReceived.Inc()
	}
}

func (r *Recorder) ParseError() {
	if r != nil {
		r.parseErrors.Inc()
	}
}

// Estimate records a finalised estimate.
func (r *Recorder) Estimate(est domain.CostEstimate) {
	if r == nil {
		return
	}
	r.estimates.Inc()
	r.latency.Observe(est.LatencyMs)
	r.netCost.Set(est.NetCost)
}

func (r *Recorder) PipelineError(reason string) {
	if r != nil {
		r.pipelineErrors.WithLabelValues(reason).Inc()
	}
}

func (r *Recorder) EventDropped() {
	if r != nil {
		r.droppedEvents.Inc()
	}
}

func (r *Recorder) SinkError(sink string) {
	if r != nil {
		r.sinkErrors.WithLabelValues(sink).Inc()
	}
}

// ListenerState flips the state gauge so exactly one state reads 1.
func (r *Recorder) ListenerState(state domain.ListenerState) {
	if r == nil {
		return
	}
	for _, s := range listenerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		r.listenerState.WithLabelValues(string(s)).Set(v)
	}
}
