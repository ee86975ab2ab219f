package queue

import (
	"sync"

	"github.com/mvukovic/bankcore/internal/domain"
)

// Queue is an unbounded FIFO buffer of settlement jobs. The preparer
// enqueues, a single drain consumer empties it; both may run concurrently.
type Queue struct {
	mu   sync.Mutex
	jobs []domain.SettlementJob
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends a job to the tail of the queue
func (q *Queue) Enqueue(job domain.SettlementJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
}

// DrainAll removes and returns everything queued, in arrival order.
// Jobs enqueued after the call accumulate until the next drain.
func (q *Queue) DrainAll() []domain.SettlementJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil
	}

	drained := q.jobs
	q.jobs = nil
	return drained
}

// Len reports the number of buffered jobs
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Queues is the pair of settlement queues shared by the preparer and the
// settlement workers. It is constructed once at startup and handed to both
// sides explicitly, so neither service needs a reference to the other.
type Queues struct {
	Internal *Queue
	External *Queue
}

// NewQueues creates the internal/external queue pair
func NewQueues() *Queues {
	return &Queues{Internal: &Queue{}, External: &Queue{}}
}
