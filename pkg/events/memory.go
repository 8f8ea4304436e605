package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryBus is an in-process event bus used in tests and when Redis is not
// configured. Slow subscribers drop events rather than blocking publishers;
// the heartbeat ledger re-check covers dropped deliveries.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[uuid.UUID][]*memorySubscription
}

var _ Bus = (*MemoryBus)(nil)

// NewMemoryBus creates an in-process event bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs: make(map[uuid.UUID][]*memorySubscription),
	}
}

// Publish implements Publisher.
func (b *MemoryBus) Publish(ctx context.Context, event *JobEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs[event.RunID] {
		select {
		case sub.events <- event:
		default:
		}
	}
	return nil
}

// Subscribe implements Subscriber.
func (b *MemoryBus) Subscribe(ctx context.Context, runID uuid.UUID) (Subscription, error) {
	sub := &memorySubscription{
		bus:    b,
		runID:  runID,
		events: make(chan *JobEvent, 16),
	}

	b.mu.Lock()
	b.subs[runID] = append(b.subs[runID], sub)
	b.mu.Unlock()

	return sub, nil
}

// SubscriberCount returns the number of open subscriptions for a run.
func (b *MemoryBus) SubscriberCount(runID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[runID])
}

type memorySubscription struct {
	bus    *MemoryBus
	runID  uuid.UUID
	events chan *JobEvent

	closeOnce sync.Once
}

func (s *memorySubscription) Events() <-chan *JobEvent {
	return s.events
}

func (s *memorySubscription) Close() error {
	s.closeOnce.Do(func() {
		s.bus.mu.Lock()
		subs := s.bus.subs[s.runID]
		for i, sub := range subs {
			if sub == s {
				s.bus.subs[s.runID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		s.bus.mu.Unlock()
		close(s.events)
	})
	return nil
}
