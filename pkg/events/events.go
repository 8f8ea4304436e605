// Package events carries job progress events from the ledger to live
// observers over a run-scoped pub/sub channel.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/insightloop/catalog-engine/pkg/models"
)

// JobEvent is the pub/sub payload and SSE frame body for one job update.
type JobEvent struct {
	JobID    uuid.UUID        `json:"job_id"`
	RunID    uuid.UUID        `json:"run_id"`
	Status   models.JobStatus `json:"status"`
	Step     string           `json:"step,omitempty"`
	Progress int              `json:"progress"`
	Message  string           `json:"message,omitempty"`
	Done     bool             `json:"done,omitempty"`
}

// Marshal serializes the event for the wire.
func (e *JobEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// RunChannel returns the pub/sub channel name for a run.
func RunChannel(runID uuid.UUID) string {
	return fmt.Sprintf("catalog:runs:%s", runID)
}

// Publisher publishes job events onto a run-scoped channel.
type Publisher interface {
	Publish(ctx context.Context, event *JobEvent) error
}

// Subscription is a live event stream for one run. Close must be called when
// the observer disconnects so the subscription does not leak.
type Subscription interface {
	Events() <-chan *JobEvent
	Close() error
}

// Subscriber opens subscriptions on run-scoped channels.
type Subscriber interface {
	Subscribe(ctx context.Context, runID uuid.UUID) (Subscription, error)
}

// Bus combines publishing and subscribing.
type Bus interface {
	Publisher
	Subscriber
}
