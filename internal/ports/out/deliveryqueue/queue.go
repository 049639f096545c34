package deliveryqueue

import (
	"context"
	"time"

	"github.com/jasonsutter87/veilforms-api/internal/domain"
)

// Job is a persisted request to run the webhook delivery loop for one submission.
type Job struct {
	ID         string
	URL        string
	Secret     string
	Submission domain.Submission
	EnqueuedAt time.Time

	// Claims counts how many times a worker has picked this job up.
	Claims int
}

// Queue is a durable job queue. Claimed jobs are leased; a job that is not completed before its
// lease expires becomes claimable again.
type Queue interface {
	Enqueue(ctx context.Context, j Job) error
	Claim(ctx context.Context, limit int, lease time.Duration) ([]Job, error)
	Complete(ctx context.Context, id string) error
}
