package broker

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when the durable queue cannot accept a job.
var ErrUnavailable = errors.New("broker unavailable")

// Handler is invoked once a deferred job becomes due.
type Handler func(ctx context.Context, taskID string)

// Queue is a durable delayed-job queue keyed by task id.
//
// Enqueue must respect ctx cancellation: the submission path probes the
// queue with a short deadline to decide the durable-vs-fallback branch.
type Queue interface {
	Enqueue(ctx context.Context, taskID string, delay time.Duration) error

	// Run polls for due jobs and invokes h until ctx is cancelled.
	Run(ctx context.Context, h Handler)
}
