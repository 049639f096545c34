package idempotency

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jasonsutter87/veilforms-api/internal/app/apperr"
	"github.com/jasonsutter87/veilforms-api/internal/domain"
	"github.com/jasonsutter87/veilforms-api/internal/platform/logging"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/clock"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/idempotency"
)

// Window is how long a stored response can be replayed.
const Window = 24 * time.Hour

type CheckResult struct {
	Exists   bool
	Response []byte
	Age      time.Duration
}

// Service dedupes client retries by (form, key).
//
// Two concurrent requests carrying the same key can both miss Check and both be processed.
// There is no lock or conditional write around the check-then-store sequence.
type Service struct {
	store idempotency.Store
	clk   clock.Clock
	log   logrus.FieldLogger
}

func NewService(store idempotency.Store, clk clock.Clock, log logrus.FieldLogger) *Service {
	return &Service{store: store, clk: clk, log: logging.OrDiscard(log)}
}

func (s *Service) ValidateKey(key domain.IdempotencyKey) error {
	if !key.Valid() {
		return apperr.Validation(apperr.CodeInvalidIdempotencyKey, "invalid idempotency key", map[string]any{
			"idempotencyKey": "must be 16-128 characters of letters, digits, '_' or '-'",
		})
	}
	return nil
}

// Check returns the stored response for key if it is younger than Window.
// Store failures are logged and treated as a miss so ingestion keeps working.
func (s *Service) Check(ctx context.Context, key domain.IdempotencyKey, formID domain.FormID) (CheckResult, error) {
	log := s.log.WithFields(logrus.Fields{"form_id": formID})

	rec, ok, err := s.store.Get(ctx, formID, key)
	if err != nil {
		log.WithError(err).Warn("idempotency lookup failed; processing request as new")
		return CheckResult{}, nil
	}
	if !ok {
		return CheckResult{}, nil
	}

	age := s.clk.Now().Sub(rec.CreatedAt)
	if age > Window {
		if err := s.store.Delete(ctx, formID, key); err != nil {
			log.WithError(err).Warn("failed to delete expired idempotency record")
		}
		return CheckResult{}, nil
	}
	if age < 0 {
		age = 0
	}
	return CheckResult{Exists: true, Response: rec.Response, Age: age}, nil
}

// Store saves response for replay. Failures are logged; the submission already succeeded.
func (s *Service) Store(ctx context.Context, key domain.IdempotencyKey, formID domain.FormID, response []byte) {
	rec := idempotency.Record{
		Response:  append([]byte(nil), response...),
		CreatedAt: s.clk.Now(),
	}
	if err := s.store.Put(ctx, formID, key, rec); err != nil {
		s.log.WithFields(logrus.Fields{"form_id": formID}).WithError(err).Warn("failed to store idempotency record")
	}
}

// PurgeForm removes the form's idempotency records reachable through its key index.
func (s *Service) PurgeForm(ctx context.Context, formID domain.FormID) (int, error) {
	n, err := s.store.DeleteForm(ctx, formID)
	if err != nil {
		return n, apperr.Storage(err, "failed to purge idempotency keys")
	}
	return n, nil
}
