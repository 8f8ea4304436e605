package events

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus delivers job events over Redis pub/sub channels, one channel per
// run. Delivery is fire-and-forget: the ledger remains the source of truth
// and streaming observers re-check it on their heartbeat.
type RedisBus struct {
	client *redis.Client
	logger *zap.Logger
}

var _ Bus = (*RedisBus)(nil)

// NewRedisBus creates a Redis-backed event bus.
func NewRedisBus(client *redis.Client, logger *zap.Logger) *RedisBus {
	return &RedisBus{
		client: client,
		logger: logger.Named("events"),
	}
}

// Publish implements Publisher.
func (b *RedisBus) Publish(ctx context.Context, event *JobEvent) error {
	payload, err := event.Marshal()
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, RunChannel(event.RunID), payload).Err()
}

// Subscribe implements Subscriber.
func (b *RedisBus) Subscribe(ctx context.Context, runID uuid.UUID) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, RunChannel(runID))

	// Wait for subscription confirmation so no event published after this
	// call returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan *JobEvent, 16),
	}
	go sub.relay(b.logger)
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan *JobEvent
}

func (s *redisSubscription) relay(logger *zap.Logger) {
	defer close(s.events)
	for msg := range s.pubsub.Channel() {
		var event JobEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			logger.Warn("dropping malformed job event", zap.Error(err))
			continue
		}
		s.events <- &event
	}
}

func (s *redisSubscription) Events() <-chan *JobEvent {
	return s.events
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}
