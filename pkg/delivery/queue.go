package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smaghili/eitaa-forwarder/internal/metrics"
)

// DefaultIdleBackoff is how long Dequeue waits between checks of an empty queue
const DefaultIdleBackoff = 100 * time.Millisecond

// ErrNoTargets is returned when a job has no destinations
var ErrNoTargets = errors.New("job has no targets")

// Queue is an unbounded FIFO of jobs shared by one producer and one consumer.
// Enqueue never blocks. A dequeued job stays pending until Done is called,
// so Pending reports zero only once delivery has actually finished.
type Queue struct {
	mu          sync.Mutex
	items       []*Job
	inFlight    int
	notify      chan struct{}
	idleBackoff time.Duration
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{
		notify:      make(chan struct{}, 1),
		idleBackoff: DefaultIdleBackoff,
	}
}

// Enqueue appends job to the tail of the queue
func (q *Queue) Enqueue(job *Job) error {
	if job == nil || len(job.Targets) == 0 {
		return ErrNoTargets
	}

	q.mu.Lock()
	q.items = append(q.items, job)
	q.mu.Unlock()
	metrics.QueuePending.Inc()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Len returns the number of jobs waiting to be dequeued
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns queued plus in-flight jobs
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) + q.inFlight
}

// Dequeue removes the head of the queue, waiting until a job is available or
// ctx is done. The caller must call Done once the job has been handled.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	for {
		if job := q.tryDequeue(); job != nil {
			return job, nil
		}

		timer := time.NewTimer(q.idleBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-q.notify:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Done marks a dequeued job as handled
func (q *Queue) Done() {
	q.mu.Lock()
	if q.inFlight > 0 {
		q.inFlight--
	}
	q.mu.Unlock()
	metrics.QueuePending.Dec()
}

func (q *Queue) tryDequeue() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	job := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	q.inFlight++
	return job
}
