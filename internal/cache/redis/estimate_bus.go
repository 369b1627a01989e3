package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// Default key layout.
const (
	DefaultChannel   = "tradesim:estimates"
	DefaultLatestKey = "tradesim:estimate:latest"
)

// BusConfig names the Redis keys used by EstimateBus.
type BusConfig struct {
	Channel   string
	LatestKey string
	// LatestTTL expires the latest slot when updates stop; zero keeps it.
	LatestTTL time.Duration
}

// EstimateBus implements domain.EstimatePublisher. Every event overwrites
// the latest slot and is then broadcast on the channel as JSON.
type EstimateBus struct {
	rdb *redis.Client
	cfg BusConfig
}

// NewEstimateBus creates an EstimateBus backed by c.
func NewEstimateBus(c *Client, cfg BusConfig) *EstimateBus {
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.LatestKey == "" {
		cfg.LatestKey = DefaultLatestKey
	}
	return &EstimateBus{rdb: c.Underlying(), cfg: cfg}
}

// Publish stores ev as the latest estimate and broadcasts it.
func (b *EstimateBus) Publish(ctx context.Context, ev domain.EstimateEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal estimate: %w", err)
	}

	if err := b.rdb.Set(ctx, b.cfg.LatestKey, payload, b.cfg.LatestTTL).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", b.cfg.LatestKey, err)
	}
	if err := b.rdb.Publish(ctx, b.cfg.Channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", b.cfg.Channel, err)
	}
	return nil
}

// Latest reads the latest slot. It returns domain.ErrNotFound when the key
// is absent or expired.
func (b *EstimateBus) Latest(ctx context.Context) (domain.EstimateEvent, error) {
	raw, err := b.rdb.Get(ctx, b.cfg.LatestKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.EstimateEvent{}, fmt.Errorf("redis: latest estimate: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.EstimateEvent{}, fmt.Errorf("redis: get %s: %w", b.cfg.LatestKey, err)
	}

	var ev domain.EstimateEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return domain.EstimateEvent{}, fmt.Errorf("redis: decode latest estimate: %w", err)
	}
	return ev, nil
}

// Subscribe streams events published on the channel until ctx is done. The
// returned channel is closed when the subscription ends.
func (b *EstimateBus) Subscribe(ctx context.Context) (<-chan domain.EstimateEvent, error) {
	pubsub := b.rdb.Subscribe(ctx, b.cfg.Channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", b.cfg.Channel, err)
	}

	out := make(chan domain.EstimateEvent, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev domain.EstimateEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
