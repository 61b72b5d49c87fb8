package queue

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viralideas/analysis-queue/internal/domain"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestLocalQueueDeliversMessages(t *testing.T) {
	q := NewLocalQueue(16, 3, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu       sync.Mutex
		received []string
	)
	done := make(chan struct{})
	go func() {
		_ = q.Consume(ctx, func(_ context.Context, message domain.QueueMessage) error {
			mu.Lock()
			received = append(received, message.JobID)
			if len(received) == 3 {
				close(done)
			}
			mu.Unlock()
			return nil
		})
	}()

	messages := []domain.QueueMessage{
		{JobID: "job-1", RequestedAt: time.Now().UTC()},
		{JobID: "job-2", RequestedAt: time.Now().UTC()},
		{JobID: "job-3", RequestedAt: time.Now().UTC()},
	}
	require.NoError(t, q.EnqueueBatch(ctx, messages))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for deliveries")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, received, 3)
}

func TestLocalQueueRetriesThenDLQ(t *testing.T) {
	q := NewLocalQueue(16, 2, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts int
	var mu sync.Mutex
	go func() {
		_ = q.Consume(ctx, func(_ context.Context, _ domain.QueueMessage) error {
			mu.Lock()
			attempts++
			mu.Unlock()
			return errors.New("handler failed")
		})
	}()

	require.NoError(t, q.Enqueue(ctx, domain.QueueMessage{JobID: "job-dlq", RequestedAt: time.Now().UTC()}))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if q.DLQSize() == 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, 1, q.DLQSize())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, attempts, "max attempts before DLQ")
}

func TestLocalQueueEnqueueHonorsContext(t *testing.T) {
	q := NewLocalQueue(1, 3, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, q.Enqueue(ctx, domain.QueueMessage{JobID: "fills-buffer"}))
	cancel()

	err := q.Enqueue(ctx, domain.QueueMessage{JobID: "blocked"})
	assert.ErrorIs(t, err, context.Canceled)
}
