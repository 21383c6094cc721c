package jobqueue_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"chromascale/internal/jobqueue"
)

func TestQueuePreservesOrder(t *testing.T) {
	q := jobqueue.New()
	for i := range 5 {
		q.Enqueue(jobqueue.NewJob(fmt.Sprintf("/in/%d.png", i)))
	}
	if q.Len() != 5 {
		t.Fatalf("expected 5 queued jobs, got %d", q.Len())
	}

	ctx := context.Background()
	for i := range 5 {
		job, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if want := fmt.Sprintf("/in/%d.png", i); job.Path != want {
			t.Fatalf("dequeue %d: got %s want %s", i, job.Path, want)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	q := jobqueue.New()
	got := make(chan jobqueue.Job, 1)
	go func() {
		job, err := q.Dequeue(context.Background())
		if err == nil {
			got <- job
		}
	}()

	select {
	case job := <-got:
		t.Fatalf("dequeue returned before enqueue: %#v", job)
	case <-time.After(50 * time.Millisecond):
	}

	q.Enqueue(jobqueue.NewJob("/in/late.png"))
	select {
	case job := <-got:
		if job.Path != "/in/late.png" {
			t.Fatalf("unexpected job %#v", job)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dequeue did not wake after enqueue")
	}
}

func TestDequeueHonorsCancellation(t *testing.T) {
	q := jobqueue.New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestEnqueueNeverBlocks(t *testing.T) {
	q := jobqueue.New()
	done := make(chan struct{})
	go func() {
		for i := range 10000 {
			q.Enqueue(jobqueue.NewJob(fmt.Sprintf("/in/%d.png", i)))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("enqueue blocked without a consumer")
	}
	if q.Len() != 10000 {
		t.Fatalf("expected 10000 jobs, got %d", q.Len())
	}
}

func TestNewJobAssignsUniqueIDs(t *testing.T) {
	a := jobqueue.NewJob("/in/a.png")
	b := jobqueue.NewJob("/in/a.png")
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", a.ID, b.ID)
	}
	if a.AcceptedAt.IsZero() {
		t.Fatal("expected accepted time")
	}
}
