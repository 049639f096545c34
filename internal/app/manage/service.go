// Package manage serves the form owner's view of stored submissions and webhook deliveries.
package manage

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/jasonsutter87/veilforms-api/internal/app/apperr"
	"github.com/jasonsutter87/veilforms-api/internal/app/delivery"
	"github.com/jasonsutter87/veilforms-api/internal/app/idempotency"
	"github.com/jasonsutter87/veilforms-api/internal/app/submissions"
	"github.com/jasonsutter87/veilforms-api/internal/domain"
	"github.com/jasonsutter87/veilforms-api/internal/platform/logging"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/audit"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/clock"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/formrepo"
)

type Service struct {
	forms  formrepo.Repository
	subs   *submissions.Service
	idem   *idempotency.Service
	engine *delivery.Engine
	audit  audit.Logger
	clk    clock.Clock
	log    logrus.FieldLogger
}

func NewService(forms formrepo.Repository, subs *submissions.Service, idem *idempotency.Service, engine *delivery.Engine, auditLog audit.Logger, clk clock.Clock, log logrus.FieldLogger) *Service {
	return &Service{forms: forms, subs: subs, idem: idem, engine: engine, audit: auditLog, clk: clk, log: logging.OrDiscard(log)}
}

func (s *Service) ListSubmissions(ctx context.Context, formID domain.FormID, opts submissions.ListOptions) (submissions.Page, error) {
	if _, err := s.form(ctx, formID); err != nil {
		return submissions.Page{}, err
	}
	return s.subs.List(ctx, formID, opts)
}

func (s *Service) GetSubmission(ctx context.Context, formID domain.FormID, id domain.SubmissionID) (domain.Submission, error) {
	if _, err := s.form(ctx, formID); err != nil {
		return domain.Submission{}, err
	}
	sub, ok, err := s.subs.Get(ctx, formID, id)
	if err != nil {
		return domain.Submission{}, err
	}
	if !ok {
		return domain.Submission{}, apperr.NotFound(apperr.CodeSubmissionNotFound, "submission not found")
	}
	return sub, nil
}

func (s *Service) DeleteSubmission(ctx context.Context, formID domain.FormID, id domain.SubmissionID) error {
	f, err := s.form(ctx, formID)
	if err != nil {
		return err
	}
	ok, err := s.subs.Delete(ctx, formID, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound(apperr.CodeSubmissionNotFound, "submission not found")
	}
	s.forgetAttempts(ctx, formID, []domain.SubmissionID{id})
	s.audit.Record(ctx, audit.Event{
		Type:    audit.EventSubmissionDeleted,
		OwnerID: f.OwnerID,
		FormID:  formID,
		Details: map[string]any{"submissionId": id},
		At:      s.clk.Now(),
	})
	return nil
}

// PurgeSubmissions deletes every submission of the form along with its idempotency keys.
// Attempt logs are cleared for submissions still in the index. Logs of submissions already
// trimmed from the index are left behind.
func (s *Service) PurgeSubmissions(ctx context.Context, formID domain.FormID) (int, error) {
	f, err := s.form(ctx, formID)
	if err != nil {
		return 0, err
	}
	ids, err := s.subs.IndexedIDs(ctx, formID)
	if err != nil {
		s.log.WithFields(logrus.Fields{"form_id": formID}).WithError(err).Warn("failed to read index before purge")
	}
	n, err := s.subs.DeleteAll(ctx, formID)
	if err != nil {
		return n, err
	}
	s.forgetAttempts(ctx, formID, ids)
	keys, err := s.idem.PurgeForm(ctx, formID)
	if err != nil {
		s.log.WithFields(logrus.Fields{"form_id": formID}).WithError(err).Warn("failed to purge idempotency keys")
	}
	s.audit.Record(ctx, audit.Event{
		Type:    audit.EventSubmissionsPurged,
		OwnerID: f.OwnerID,
		FormID:  formID,
		Details: map[string]any{"deleted": n, "idempotencyKeys": keys},
		At:      s.clk.Now(),
	})
	return n, nil
}

func (s *Service) ListDeliveries(ctx context.Context, formID domain.FormID, id domain.SubmissionID) ([]domain.DeliveryAttempt, error) {
	if _, err := s.GetSubmission(ctx, formID, id); err != nil {
		return nil, err
	}
	return s.engine.ListAttempts(ctx, id)
}

func (s *Service) ListQuarantined(ctx context.Context, formID domain.FormID, limit int) ([]domain.QuarantinedWebhook, error) {
	if _, err := s.form(ctx, formID); err != nil {
		return nil, err
	}
	return s.engine.ListQuarantined(ctx, formID, limit)
}

func (s *Service) RetryQuarantined(ctx context.Context, formID domain.FormID, quarantineID string) (delivery.Result, error) {
	if _, err := s.form(ctx, formID); err != nil {
		return delivery.Result{}, err
	}
	return s.engine.ManualRetry(ctx, formID, quarantineID)
}

func (s *Service) forgetAttempts(ctx context.Context, formID domain.FormID, ids []domain.SubmissionID) {
	for _, id := range ids {
		if err := s.engine.ForgetAttempts(ctx, id); err != nil {
			s.log.WithFields(logrus.Fields{"form_id": formID, "submission_id": id}).WithError(err).Warn("failed to delete delivery attempt log")
		}
	}
}

func (s *Service) form(ctx context.Context, id domain.FormID) (domain.Form, error) {
	if !id.Valid() {
		return domain.Form{}, apperr.Validation(apperr.CodeInvalidFormID, "invalid form id", map[string]any{"formId": "malformed"})
	}
	f, err := s.forms.Get(ctx, id)
	if err != nil {
		if errors.Is(err, formrepo.ErrNotFound) {
			return domain.Form{}, apperr.NotFound(apperr.CodeFormNotFound, "form not found")
		}
		return domain.Form{}, apperr.Storage(err, "failed to load form")
	}
	return f, nil
}
