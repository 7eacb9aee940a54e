package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"reportsink/internal/models"
)

func testItem(msg string) *models.WorkItem {
	return models.NewWorkItem(&models.Envelope{ID: msg})
}

func TestQueue_DepthTracksEnqueueDequeue(t *testing.T) {
	q := New(10)
	ctx := context.Background()

	if q.Depth() != 0 {
		t.Fatalf("expected depth 0, got %d", q.Depth())
	}

	for i := 0; i < 5; i++ {
		if err := q.Enqueue(ctx, testItem("a")); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		if q.Depth() != i+1 {
			t.Errorf("after enqueue %d: expected depth %d, got %d", i, i+1, q.Depth())
		}
	}

	for i := 5; i > 0; i-- {
		if _, err := q.Dequeue(ctx); err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if q.Depth() != i-1 {
			t.Errorf("after dequeue: expected depth %d, got %d", i-1, q.Depth())
		}
	}

	if q.Depth() < 0 {
		t.Fatalf("depth went negative: %d", q.Depth())
	}
}

func TestQueue_FIFOOrder(t *testing.T) {
	q := New(10)
	ctx := context.Background()

	ids := []string{"first", "second", "third"}
	for _, id := range ids {
		if err := q.Enqueue(ctx, testItem(id)); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	for _, want := range ids {
		item, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if item.Envelope.ID != want {
			t.Errorf("expected %s, got %s", want, item.Envelope.ID)
		}
	}
}

func TestQueue_EnqueueTimesOutWhenFull(t *testing.T) {
	q := New(1)
	ctx := context.Background()

	if err := q.Enqueue(ctx, testItem("a")); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	err := q.Enqueue(timeoutCtx, testItem("b"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// The cancelled enqueue must not have left a phantom increment.
	if q.Depth() != 1 {
		t.Errorf("expected depth 1 after timed-out enqueue, got %d", q.Depth())
	}
}

func TestQueue_BlockedEnqueueSucceedsWhenSlotFrees(t *testing.T) {
	q := New(1)
	ctx := context.Background()

	if err := q.Enqueue(ctx, testItem("a")); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}

	result := make(chan error, 1)
	go func() {
		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		result <- q.Enqueue(waitCtx, testItem("b"))
	}()

	// Free a slot; the blocked producer must get it.
	time.Sleep(20 * time.Millisecond)
	if _, err := q.Dequeue(ctx); err != nil {
		t.Fatalf("dequeue: %v", err)
	}

	if err := <-result; err != nil {
		t.Fatalf("blocked enqueue should have succeeded: %v", err)
	}

	item, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if item.Envelope.ID != "b" {
		t.Errorf("expected b, got %s", item.Envelope.ID)
	}
}

func TestQueue_DepthCountsBlockedProducers(t *testing.T) {
	q := New(1)
	ctx := context.Background()

	if err := q.Enqueue(ctx, testItem("a")); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}

	result := make(chan error, 1)
	go func() {
		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		result <- q.Enqueue(waitCtx, testItem("b"))
	}()

	// While the producer waits for a slot it counts toward depth, so depth
	// may exceed capacity under overload.
	deadline := time.Now().Add(time.Second)
	for q.Depth() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if q.Depth() != 2 {
		t.Fatalf("expected depth 2 with one blocked producer, got %d", q.Depth())
	}

	if _, err := q.Dequeue(ctx); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if err := <-result; err != nil {
		t.Fatalf("blocked enqueue should have succeeded: %v", err)
	}
	if q.Depth() != 1 {
		t.Errorf("expected depth 1 after handoff, got %d", q.Depth())
	}
}

func TestQueue_EnqueueAfterCloseFails(t *testing.T) {
	q := New(4)
	q.Close()

	err := q.Enqueue(context.Background(), testItem("a"))
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if q.Depth() != 0 {
		t.Errorf("expected depth 0, got %d", q.Depth())
	}
}

func TestQueue_WaitingEnqueueFailsCleanlyOnClose(t *testing.T) {
	q := New(1)
	ctx := context.Background()

	if err := q.Enqueue(ctx, testItem("a")); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}

	result := make(chan error, 1)
	go func() {
		result <- q.Enqueue(ctx, testItem("b"))
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-result:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiting enqueue hung after close")
	}

	if q.Depth() != 1 {
		t.Errorf("expected depth 1, got %d", q.Depth())
	}
}

func TestQueue_DequeueDrainsBufferedItemsAfterClose(t *testing.T) {
	q := New(4)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := q.Enqueue(ctx, testItem("x")); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	q.Close()

	for i := 0; i < 3; i++ {
		if _, err := q.Dequeue(ctx); err != nil {
			t.Fatalf("drain dequeue %d: %v", i, err)
		}
	}

	if _, err := q.Dequeue(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after drain, got %v", err)
	}
	if q.Depth() != 0 {
		t.Errorf("expected depth 0, got %d", q.Depth())
	}
}

func TestQueue_DequeueHonoursCancellation(t *testing.T) {
	q := New(4)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := New(100)
	ctx := context.Background()

	const producers = 10
	const perProducer = 10
	done := make(chan struct{})

	for p := 0; p < producers; p++ {
		go func() {
			for i := 0; i < perProducer; i++ {
				if err := q.Enqueue(ctx, testItem("x")); err != nil {
					t.Errorf("enqueue: %v", err)
				}
			}
			done <- struct{}{}
		}()
	}
	for p := 0; p < producers; p++ {
		<-done
	}

	if q.Depth() != producers*perProducer {
		t.Fatalf("expected depth %d, got %d", producers*perProducer, q.Depth())
	}

	for i := 0; i < producers*perProducer; i++ {
		if _, err := q.Dequeue(ctx); err != nil {
			t.Fatalf("dequeue %d: %v", i, err)
		}
	}
	if q.Depth() != 0 {
		t.Fatalf("expected depth 0, got %d", q.Depth())
	}
}
