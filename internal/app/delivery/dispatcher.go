package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jasonsutter87/veilforms-api/internal/domain"
	"github.com/jasonsutter87/veilforms-api/internal/platform/logging"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/deliveryqueue"
)

// ErrClaimLimitExceeded is recorded for a job the dispatcher quarantines instead of running.
var ErrClaimLimitExceeded = errors.New("exceeded claim limit")

// JobRunner runs queued deliveries and quarantines the ones that cannot be run. *Engine implements it.
type JobRunner interface {
	Deliverer
	Abandon(ctx context.Context, url string, sub domain.Submission, secret string, reason error) Result
}

type DispatcherOptions struct {
	Workers      int
	PollInterval time.Duration
	// Lease must outlast a full delivery loop; shorter values are raised to WorstCaseDuration.
	Lease time.Duration
	// MaxClaims quarantines a job that keeps being reclaimed, e.g. because it crashes its worker.
	MaxClaims int
}

func (o DispatcherOptions) withDefaults() DispatcherOptions {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.Lease <= 0 {
		o.Lease = 2 * time.Minute
	}
	if o.Lease < WorstCaseDuration() {
		o.Lease = WorstCaseDuration()
	}
	if o.MaxClaims <= 0 {
		o.MaxClaims = 5
	}
	return o
}

// Dispatcher is a worker pool draining the delivery queue.
type Dispatcher struct {
	queue  deliveryqueue.Queue
	engine JobRunner
	opts   DispatcherOptions
	log    logrus.FieldLogger
}

func NewDispatcher(queue deliveryqueue.Queue, engine JobRunner, opts DispatcherOptions, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{queue: queue, engine: engine, opts: opts.withDefaults(), log: logging.OrDiscard(log)}
}

// Run polls until ctx is done, then waits for in-flight deliveries.
func (d *Dispatcher) Run(ctx context.Context) {
	jobs := make(chan deliveryqueue.Job)
	var wg sync.WaitGroup
	for i := 0; i < d.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				d.process(context.WithoutCancel(ctx), j)
			}
		}()
	}

	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	defer func() {
		close(jobs)
		wg.Wait()
	}()

	for {
		claimed, err := d.queue.Claim(ctx, d.opts.Workers, d.opts.Lease)
		if err != nil && ctx.Err() == nil {
			d.log.WithError(err).Error("failed to claim delivery jobs")
		}
		for _, j := range claimed {
			select {
			case jobs <- j:
			case <-ctx.Done():
				return
			}
		}
		// Keep draining without waiting while the queue has a full batch ready.
		if len(claimed) == d.opts.Workers {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce claims one batch and processes it synchronously. It returns how many jobs it handled.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	claimed, err := d.queue.Claim(ctx, d.opts.Workers, d.opts.Lease)
	if err != nil {
		return 0, err
	}
	for _, j := range claimed {
		d.process(ctx, j)
	}
	return len(claimed), nil
}

func (d *Dispatcher) process(ctx context.Context, j deliveryqueue.Job) {
	log := d.log.WithFields(logrus.Fields{"form_id": j.Submission.FormID, "submission_id": j.Submission.ID, "job_id": j.ID})

	if j.Claims > d.opts.MaxClaims {
		log.WithField("claims", j.Claims).Error("quarantining delivery job that exceeded its claim limit")
		d.engine.Abandon(ctx, j.URL, j.Submission, j.Secret, ErrClaimLimitExceeded)
	} else {
		d.engine.Deliver(ctx, j.URL, j.Submission, j.Secret)
	}
	if err := d.queue.Complete(ctx, j.ID); err != nil {
		log.WithError(err).Warn("failed to complete delivery job; it will be redelivered after its lease")
	}
}
