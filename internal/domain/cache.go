package domain

import "context"

// EstimatePublisher pushes result events to an external bus and keeps the
// latest one addressable by key.
type EstimatePublisher interface {
	Publish(ctx context.Context, ev EstimateEvent) error
	Latest(ctx context.Context) (EstimateEvent, error)
}
