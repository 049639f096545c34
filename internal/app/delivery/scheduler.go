package delivery

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jasonsutter87/veilforms-api/internal/domain"
	"github.com/jasonsutter87/veilforms-api/internal/platform/logging"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/clock"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/deliveryqueue"
)

// Deliverer runs the delivery loop. *Engine implements it.
type Deliverer interface {
	Deliver(ctx context.Context, url string, sub domain.Submission, secret string) Result
}

// Scheduler hands a delivery off so the ingesting request can return immediately.
type Scheduler interface {
	Schedule(ctx context.Context, url, secret string, sub domain.Submission) error
}

// QueueScheduler persists a job for the Dispatcher. Deliveries survive a restart.
type QueueScheduler struct {
	queue deliveryqueue.Queue
	clk   clock.Clock
}

func NewQueueScheduler(queue deliveryqueue.Queue, clk clock.Clock) *QueueScheduler {
	return &QueueScheduler{queue: queue, clk: clk}
}

func (s *QueueScheduler) Schedule(ctx context.Context, url, secret string, sub domain.Submission) error {
	return s.queue.Enqueue(ctx, deliveryqueue.Job{
		ID:         uuid.NewString(),
		URL:        url,
		Secret:     secret,
		Submission: sub,
		EnqueuedAt: s.clk.Now(),
	})
}

// DetachedScheduler runs each delivery in its own goroutine, detached from the request.
// A delivery still in its backoff when the process is killed is lost.
type DetachedScheduler struct {
	engine Deliverer
	log    logrus.FieldLogger
	wg     sync.WaitGroup
}

func NewDetachedScheduler(engine Deliverer, log logrus.FieldLogger) *DetachedScheduler {
	return &DetachedScheduler{engine: engine, log: logging.OrDiscard(log)}
}

func (s *DetachedScheduler) Schedule(ctx context.Context, url, secret string, sub domain.Submission) error {
	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.WithFields(logrus.Fields{"form_id": sub.FormID, "submission_id": sub.ID}).Errorf("webhook delivery panicked: %v", r)
			}
		}()
		s.engine.Deliver(bg, url, sub, secret)
	}()
	return nil
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (s *DetachedScheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
