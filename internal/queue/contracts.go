package queue

import (
	"context"

	"github.com/viralideas/analysis-queue/internal/domain"
)

// Producer hands pickup signals for pending jobs to a queue backend.
type Producer interface {
	Enqueue(ctx context.Context, message domain.QueueMessage) error
	// EnqueueBatch is used by the drain path to hand over every pending job
	// in one shot.
	EnqueueBatch(ctx context.Context, messages []domain.QueueMessage) error
}

// Consumer receives pickup signals and executes the worker handler.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, domain.QueueMessage) error) error
}
