// Package memory provides an in-memory implementation of the queue
// interfaces, used in memory storage mode and in tests.
package memory

import (
	"context"
	"sync"

	"geowatch-go/internal/queue"
)

// Queue is a channel-backed implementation of both Producer and Consumer.
// It is safe for concurrent use by any number of producers feeding a single
// consumer loop. A single buffered channel gives strict FIFO delivery, so
// events for any one region are consumed in the order they were published.
type Queue struct {
	messages chan *queue.Message
	done     chan struct{}
	once     sync.Once
}

// NewQueue creates a new in-memory queue with the specified buffer size.
// Publish blocks once the buffer is full (or fails if the context is
// canceled); no message is silently dropped.
func NewQueue(bufferSize int) *Queue {
	return &Queue{
		messages: make(chan *queue.Message, bufferSize),
		done:     make(chan struct{}),
	}
}

// Publish sends a message to the in-memory queue. It blocks while the queue
// is full until space is available, the queue is closed or the context is
// canceled. The messages channel itself is never closed, so a producer
// racing Close cannot hit a send on a closed channel.
func (q *Queue) Publish(ctx context.Context, msg *queue.Message) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.messages <- msg:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start begins consuming messages and calls the handler for each one.
// This blocks until the context is canceled or the queue is closed; on
// close the messages still buffered are drained before Start returns. The
// select on ctx.Done means a stop signal is observed even while the queue
// is empty.
func (q *Queue) Start(ctx context.Context, handler queue.MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.done:
			return q.drain(ctx, handler)
		case msg := <-q.messages:
			if err := handler(ctx, msg); err != nil {
				// Handler failures never stop the loop; the handler
				// is expected to have logged the cause.
				continue
			}
		}
	}
}

// drain consumes whatever is buffered at close time.
func (q *Queue) drain(ctx context.Context, handler queue.MessageHandler) error {
	for {
		select {
		case msg := <-q.messages:
			if err := handler(ctx, msg); err != nil {
				continue
			}
		default:
			return nil
		}
	}
}

// Close shuts down the queue: publishers fail with ErrQueueClosed and the
// consumer loop exits once the buffer is drained. Safe to call repeatedly.
func (q *Queue) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}

// Len returns the current number of buffered messages. Used for the queue
// depth gauge and test assertions.
func (q *Queue) Len() int {
	return len(q.messages)
}
