package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/awardtally/internal/domain/model"
)

func event(id string) Event {
	return Event{EventID: id, NomineeID: "n-" + id, SubcategoryID: "s-1",
		Tier: model.TierCompetitive, Reason: model.ReasonThresholdCrossed, OccurredAt: time.Now()}
}

func TestInMemoryQueue_EnqueueDequeue(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if q.Len() != 0 || q.Capacity() != 2 {
		t.Fatalf("unexpected initial state len=%d cap=%d", q.Len(), q.Capacity())
	}
	if err := q.Enqueue(ctx, event("e1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	got := <-q.Dequeue(ctx)
	if got.EventID != "e1" || got.Reason != model.ReasonThresholdCrossed {
		t.Errorf("unexpected event %+v", got)
	}
}

func TestInMemoryQueue_Full(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	for _, id := range []string{"e1", "e2"} {
		if err := q.Enqueue(ctx, event(id)); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	if err := q.Enqueue(ctx, event("e3")); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}
	if q.Len() != 2 {
		t.Errorf("expected len 2, got %d", q.Len())
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := q.Enqueue(ctx, event("e1")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestInMemoryQueue_ConcurrentProducers(t *testing.T) {
	const producers, perProducer = 8, 50
	q := NewInMemoryQueue(WithCapacity(producers * perProducer))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := q.Enqueue(ctx, event(fmt.Sprintf("%d-%d", p, i))); err != nil {
					t.Errorf("enqueue: %v", err)
				}
			}
		}(p)
	}
	wg.Wait()
	_ = q.Close()

	seen := make(map[string]bool)
	for e := range q.Dequeue(ctx) {
		seen[e.EventID] = true
	}
	if len(seen) != producers*perProducer {
		t.Errorf("expected %d distinct events, got %d", producers*perProducer, len(seen))
	}
}

func TestInMemoryQueue_CloseDrains(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	_ = q.Enqueue(ctx, event("e1"))
	_ = q.Enqueue(ctx, event("e2"))

	if q.IsClosed() {
		t.Fatal("expected queue open")
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !q.IsClosed() {
		t.Fatal("expected queue closed")
	}
	if err := q.Enqueue(ctx, event("e3")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	var drained []string
	timeout := time.After(time.Second)
	ch := q.Dequeue(ctx)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				if len(drained) != 2 {
					t.Errorf("expected 2 drained events, got %v", drained)
				}
				if err := q.Close(); err != nil {
					t.Errorf("second close: %v", err)
				}
				return
			}
			drained = append(drained, e.EventID)
		case <-timeout:
			t.Fatal("dequeue channel not closed")
		}
	}
}
