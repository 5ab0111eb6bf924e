// Package task runs queued card-generation jobs. The queue carries only
// job IDs; the full job record lives in the database and is the single
// source of truth for every run. Delivery is at-least-once: a worker that
// dies mid-run leaves its message unacknowledged, the queue redelivers it,
// and the next worker restarts the run from the beginning.
package task

import (
	"context"

	"github.com/google/uuid"
)

// Delivery is one received queue message. Ack must be called only after
// the run reached a terminal outcome; an unacked delivery is redelivered.
type Delivery struct {
	// JobID identifies the job record to process.
	JobID uuid.UUID

	// Attempt is the delivery count, 1 on first delivery.
	Attempt int64

	// Ack confirms the delivery so it is never redelivered.
	Ack func(ctx context.Context) error
}

// QueueWriter enqueues job IDs for background processing.
// Version: 1.0
type QueueWriter interface {
	// Enqueue adds a job ID to the queue for processing.
	Enqueue(ctx context.Context, jobID uuid.UUID) error

	// Close releases the queue connection, preventing further submission.
	Close() error
}

// QueueReader hands deliveries to workers.
// Version: 1.0
type QueueReader interface {
	// Receive blocks until a delivery is available or ctx is done.
	Receive(ctx context.Context) (*Delivery, error)
}
