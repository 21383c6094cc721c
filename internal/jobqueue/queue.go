package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job is one stabilized file handed from the poll loop to the worker.
type Job struct {
	ID         string
	Path       string
	AcceptedAt time.Time
}

// NewJob stamps path with a fresh identifier and the current time.
func NewJob(path string) Job {
	return Job{
		ID:         uuid.NewString(),
		Path:       path,
		AcceptedAt: time.Now(),
	}
}

// Queue is an unbounded FIFO. Enqueue never blocks; Dequeue blocks until a job
// is available or the context ends.
type Queue struct {
	mu     sync.Mutex
	items  []Job
	signal chan struct{}
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Enqueue appends job to the tail of the queue.
func (q *Queue) Enqueue(job Job) {
	q.mu.Lock()
	q.items = append(q.items, job)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the head of the queue, waiting if it is empty.
func (q *Queue) Dequeue(ctx context.Context) (Job, error) {
	for {
		if job, ok := q.tryDequeue(); ok {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return Job{}, ctx.Err()
		case <-q.signal:
		}
	}
}

func (q *Queue) tryDequeue() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Job{}, false
	}
	job := q.items[0]
	q.items[0] = Job{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return job, true
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
