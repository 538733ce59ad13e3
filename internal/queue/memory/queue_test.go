package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"geowatch-go/internal/queue"
)

func TestQueue_PublishAndConsume(t *testing.T) {
	q := NewQueue(10)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handled atomic.Int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Start(ctx, func(ctx context.Context, msg *queue.Message) error {
			handled.Add(1)
			return nil
		})
	}()

	for i := 0; i < 5; i++ {
		if err := q.Publish(ctx, &queue.Message{Value: []byte("event")}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	deadline := time.After(2 * time.Second)
	for handled.Load() < 5 {
		select {
		case <-deadline:
			t.Fatalf("handled %v messages, want 5", handled.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestQueue_PublishAfterClose(t *testing.T) {
	q := NewQueue(10)
	q.Close()

	err := q.Publish(context.Background(), &queue.Message{Value: []byte("late")})
	if !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Publish() after Close = %v, want ErrQueueClosed", err)
	}
}

func TestQueue_PublishBlocksUntilCanceled(t *testing.T) {
	q := NewQueue(1)
	defer q.Close()

	ctx := context.Background()
	if err := q.Publish(ctx, &queue.Message{Value: []byte("fill")}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	// The buffer is full and nobody consumes: the second publish must wait
	// for the context instead of dropping the message.
	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	err := q.Publish(shortCtx, &queue.Message{Value: []byte("overflow")})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Publish() on full queue = %v, want DeadlineExceeded", err)
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %v, want 1", q.Len())
	}
}

func TestQueue_HandlerErrorDoesNotStopLoop(t *testing.T) {
	q := NewQueue(10)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handled atomic.Int64
	go q.Start(ctx, func(ctx context.Context, msg *queue.Message) error {
		handled.Add(1)
		return errors.New("handler failure")
	})

	for i := 0; i < 3; i++ {
		if err := q.Publish(ctx, &queue.Message{Value: []byte("event")}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	deadline := time.After(2 * time.Second)
	for handled.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("handled %v messages, want 3 despite handler errors", handled.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := NewQueue(1000)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handled atomic.Int64
	go q.Start(ctx, func(ctx context.Context, msg *queue.Message) error {
		handled.Add(1)
		return nil
	})

	const producers = 10
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := q.Publish(ctx, &queue.Message{Value: []byte("event")}); err != nil {
					t.Errorf("Publish() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	deadline := time.After(5 * time.Second)
	for handled.Load() < producers*perProducer {
		select {
		case <-deadline:
			t.Fatalf("handled %v messages, want %v (no message may be lost)",
				handled.Load(), producers*perProducer)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestQueue_PreservesPublishOrder(t *testing.T) {
	q := NewQueue(10)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, v := range []string{"a", "b", "c", "d", "e"} {
		if err := q.Publish(ctx, &queue.Message{Value: []byte(v)}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	var mu sync.Mutex
	var got []string
	go q.Start(ctx, func(ctx context.Context, msg *queue.Message) error {
		mu.Lock()
		got = append(got, string(msg.Value))
		mu.Unlock()
		return nil
	})

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 5 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("consumed %v messages, want 5", n)
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, want := range []string{"a", "b", "c", "d", "e"} {
		if got[i] != want {
			t.Errorf("got[%d] = %q, want %q (FIFO order must hold)", i, got[i], want)
		}
	}
}

func TestQueue_DrainsBufferOnClose(t *testing.T) {
	q := NewQueue(10)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := q.Publish(ctx, &queue.Message{Value: []byte("buffered")}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	q.Close()

	// The consumer started after Close still sees everything that was
	// buffered before the queue shut down.
	var handled int
	err := q.Start(ctx, func(ctx context.Context, msg *queue.Message) error {
		handled++
		return nil
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if handled != 3 {
		t.Errorf("handled %v buffered messages, want 3", handled)
	}
}

func TestQueue_ConcurrentPublishAndClose(t *testing.T) {
	q := NewQueue(10000)

	ctx := context.Background()
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				err := q.Publish(ctx, &queue.Message{Value: []byte("event")})
				if err != nil && !errors.Is(err, ErrQueueClosed) {
					t.Errorf("Publish() error = %v, want nil or ErrQueueClosed", err)
					return
				}
			}
		}()
	}

	// Closing while producers are mid-publish must never panic a sender.
	time.Sleep(time.Millisecond)
	q.Close()
	wg.Wait()
}

func TestQueue_CloseIsIdempotent(t *testing.T) {
	q := NewQueue(1)
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}
}
