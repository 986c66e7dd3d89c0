package jobmanager

import (
	"context"
	"testing"
	"time"
)

func TestBlockingQueueBackpressure(t *testing.T) {
	t.Helper()
	q := newBlockingQueue[int](1)

	if err := q.enqueue(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error on first enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := q.enqueue(ctx, 2); err == nil {
		t.Fatalf("expected second enqueue on a full queue of capacity 1 to suspend until ctx times out")
	}
}

func TestBlockingQueueStreamDequeueTerminatesOnClose(t *testing.T) {
	t.Helper()
	q := newBlockingQueue[int](4)
	_ = q.enqueue(context.Background(), 1)
	_ = q.enqueue(context.Background(), 2)

	stream := q.streamDequeue()
	got := []int{}
	got = append(got, <-stream)
	got = append(got, <-stream)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected [1 2] in order, got %v", got)
	}

	q.close()
	select {
	case _, ok := <-stream:
		if ok {
			t.Fatalf("expected stream to be closed after queue close")
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for stream to close")
	}
}

func TestBlockingQueueEnqueueAfterCloseIsNoop(t *testing.T) {
	t.Helper()
	q := newBlockingQueue[int](1)
	q.close()
	if err := q.enqueue(context.Background(), 1); err != nil {
		t.Fatalf("expected post-close enqueue to be a benign no-op, got %v", err)
	}
}

func TestBlockingQueueTryDequeueUpTo(t *testing.T) {
	t.Helper()
	q := newBlockingQueue[int](4)
	_ = q.enqueue(context.Background(), 1)
	_ = q.enqueue(context.Background(), 2)

	items, ok := q.tryDequeueUpTo(5)
	if !ok || len(items) != 2 {
		t.Fatalf("expected 2 items, got %v ok=%v", items, ok)
	}

	items, ok = q.tryDequeueUpTo(5)
	if !ok || len(items) != 0 {
		t.Fatalf("expected empty slice on an empty queue, got %v ok=%v", items, ok)
	}

	q.close()
	if _, ok := q.tryDequeueUpTo(5); ok {
		t.Fatalf("expected tryDequeueUpTo to report closed")
	}
}

func TestRingQueueDropsOldestOnFull(t *testing.T) {
	t.Helper()
	q := newRingQueue[int](1)
	q.enqueue(1)
	q.enqueue(2) // should drop 1, keep 2

	items, ok := q.tryDequeueUpTo(5)
	if !ok || len(items) != 1 || items[0] != 2 {
		t.Fatalf("expected ring to keep only the newest item [2], got %v ok=%v", items, ok)
	}
}

func TestRingQueueNeverBlocks(t *testing.T) {
	t.Helper()
	q := newRingQueue[int](1)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			q.enqueue(i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("ring queue enqueue blocked")
	}
}
