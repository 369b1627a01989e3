package sink

import (
	"context"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// PublisherSink forwards events to an EstimatePublisher such as the Redis
// result bus.
type PublisherSink struct {
	name string
	pub  domain.EstimatePublisher
}

// NewPublisherSink wraps pub under the given sink name.
func NewPublisherSink(name string, pub domain.EstimatePublisher) *PublisherSink {
	return &PublisherSink{name: name, pub: pub}
}

// Name implements Sink.
func (s *PublisherSink) Name() string { return s.name }

// Emit implements Sink.
func (s *PublisherSink) Emit(ctx context.Context, ev domain.EstimateEvent) error {
	return s.pub.Publish(ctx, ev)
}
