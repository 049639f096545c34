package deliveryqueue

import (
	"context"
	"sync"
	"time"

	clockport "github.com/jasonsutter87/veilforms-api/internal/ports/out/clock"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/deliveryqueue"
)

type entry struct {
	job        deliveryqueue.Job
	leaseUntil time.Time
}

// Queue is an in-memory implementation of deliveryqueue.Queue. Jobs do not survive a restart.
// It is safe for concurrent use.
type Queue struct {
	mu   sync.Mutex
	clk  clockport.Clock
	jobs []*entry
}

func NewQueue(clk clockport.Clock) *Queue {
	return &Queue{clk: clk}
}

func (q *Queue) Enqueue(ctx context.Context, j deliveryqueue.Job) error {
	_ = ctx
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, &entry{job: j})
	return nil
}

func (q *Queue) Claim(ctx context.Context, limit int, lease time.Duration) ([]deliveryqueue.Job, error) {
	_ = ctx
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.clk.Now()
	out := []deliveryqueue.Job{}
	for _, e := range q.jobs {
		if limit > 0 && len(out) >= limit {
			break
		}
		if e.leaseUntil.After(now) {
			continue
		}
		e.leaseUntil = now.Add(lease)
		e.job.Claims++
		out = append(out, e.job)
	}
	return out, nil
}

func (q *Queue) Complete(ctx context.Context, id string) error {
	_ = ctx
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.jobs {
		if e.job.ID == id {
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			return nil
		}
	}
	return nil
}

// Len returns the number of jobs not yet completed.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
