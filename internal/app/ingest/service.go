package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

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
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/quota"
)

type Deps struct {
	Forms       formrepo.Repository
	Idempotency *idempotency.Service
	Submissions *submissions.Service
	Scheduler   delivery.Scheduler
	Quota       quota.Counter
	Audit       audit.Logger
	Clock       clock.Clock
	Log         logrus.FieldLogger

	Limits       Limits
	MaxBodyBytes int64
}

// Service accepts encrypted submissions.
type Service struct {
	forms  formrepo.Repository
	idem   *idempotency.Service
	subs   *submissions.Service
	sched  delivery.Scheduler
	quota  quota.Counter
	audit  audit.Logger
	clk    clock.Clock
	log    logrus.FieldLogger
	limits Limits

	maxBodyBytes int64
}

func NewService(d Deps) *Service {
	limits := d.Limits
	if limits == nil {
		limits = DefaultLimits()
	}
	maxBody := d.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &Service{
		forms:        d.Forms,
		idem:         d.Idempotency,
		subs:         d.Submissions,
		sched:        d.Scheduler,
		quota:        d.Quota,
		audit:        d.Audit,
		clk:          d.Clock,
		log:          logging.OrDiscard(d.Log),
		limits:       limits,
		maxBodyBytes: maxBody,
	}
}

func (s *Service) MaxBodyBytes() int64 { return s.maxBodyBytes }

// Ingest validates and stores one submission, then hands webhook delivery off without waiting.
//
// A duplicate idempotency key inside the replay window returns the original response and
// touches nothing else.
func (s *Service) Ingest(ctx context.Context, req Request) (Response, error) {
	if req.BodySize > s.maxBodyBytes {
		return Response{}, apperr.PayloadTooLarge(s.maxBodyBytes)
	}
	if err := validateRequired(req); err != nil {
		return Response{}, err
	}
	if !req.FormID.Valid() {
		return Response{}, apperr.Validation(apperr.CodeInvalidFormID, "invalid form id", map[string]any{"formId": "malformed"})
	}
	if !req.SubmissionID.Valid() {
		return Response{}, apperr.Validation(apperr.CodeInvalidSubmissionID, "invalid submission id", map[string]any{
			"submissionId": "must be a UUID or 32 hex characters",
		})
	}
	if req.IdempotencyKey != "" {
		if err := s.idem.ValidateKey(req.IdempotencyKey); err != nil {
			return Response{}, err
		}
		cached, err := s.idem.Check(ctx, req.IdempotencyKey, req.FormID)
		if err != nil {
			return Response{}, err
		}
		if cached.Exists {
			return replay(cached), nil
		}
	}

	log := s.log.WithFields(logrus.Fields{"form_id": req.FormID, "submission_id": req.SubmissionID})

	form, err := s.forms.Get(ctx, req.FormID)
	if err != nil {
		if errors.Is(err, formrepo.ErrNotFound) {
			return Response{}, apperr.NotFound(apperr.CodeFormNotFound, "form not found")
		}
		return Response{}, apperr.Storage(err, "failed to load form")
	}
	if form.Status != domain.FormActive {
		return Response{}, apperr.Forbidden(apperr.CodeFormInactive, "form is not accepting submissions")
	}
	if !form.AllowsOrigin(req.Origin) {
		return Response{}, apperr.Forbidden(apperr.CodeOriginNotAllowed, "origin not allowed")
	}

	now := s.clk.Now()
	if err := s.checkQuota(ctx, form, now, log); err != nil {
		return Response{}, err
	}
	if !req.Payload.Encrypted || len(req.Payload.MissingFields()) > 0 {
		return Response{}, apperr.EncryptionRequired(req.Payload.MissingFields())
	}

	clientTS := req.ClientTimestamp
	if clientTS.IsZero() {
		clientTS = now
	}
	sub := domain.Submission{
		ID:              req.SubmissionID,
		FormID:          req.FormID,
		Payload:         *req.Payload,
		ClientTimestamp: clientTS,
		ReceivedAt:      now,
		Meta: domain.SubmissionMeta{
			SDKVersion: req.Meta.SDKVersion,
			UserAgent:  domain.TruncateUserAgent(req.Meta.UserAgent),
			Region:     req.Meta.Region,
		},
	}
	if err := s.subs.Put(ctx, sub); err != nil {
		return Response{}, err
	}
	if _, err := s.quota.Increment(ctx, form.OwnerID, now); err != nil {
		log.WithError(err).Warn("failed to increment quota usage")
	}

	if form.HasWebhook() && s.sched != nil {
		if err := s.sched.Schedule(ctx, form.WebhookURL, form.WebhookSecret, sub); err != nil {
			log.WithError(err).Error("failed to schedule webhook delivery")
		}
	}

	resp := Response{SubmissionID: sub.ID, Timestamp: now.UnixMilli()}
	resp.Body, err = json.Marshal(acceptedBody{Success: true, SubmissionID: resp.SubmissionID, Timestamp: resp.Timestamp})
	if err != nil {
		return Response{}, err
	}
	if req.IdempotencyKey != "" {
		s.idem.Store(ctx, req.IdempotencyKey, req.FormID, resp.Body)
	}

	s.audit.Record(ctx, audit.Event{
		Type:    audit.EventSubmissionCreated,
		OwnerID: form.OwnerID,
		FormID:  form.ID,
		Details: map[string]any{"submissionId": sub.ID},
		At:      now,
	})
	log.Debug("submission accepted")
	return resp, nil
}

func (s *Service) checkQuota(ctx context.Context, form domain.Form, now time.Time, log logrus.FieldLogger) error {
	limit := s.limits[form.Tier]
	if limit <= 0 {
		return nil
	}
	current, err := s.quota.Current(ctx, form.OwnerID, now)
	if err != nil {
		log.WithError(err).Warn("quota lookup failed; allowing submission")
		return nil
	}
	if current >= limit {
		return apperr.QuotaExceeded(limit, current)
	}
	return nil
}

func validateRequired(req Request) error {
	missing := map[string]any{}
	if req.FormID == "" {
		missing["formId"] = "required"
	}
	if req.SubmissionID == "" {
		missing["submissionId"] = "required"
	}
	if req.Payload == nil {
		missing["payload"] = "required"
	}
	if len(missing) > 0 {
		return apperr.Validation(apperr.CodeValidation, "missing required fields", missing)
	}
	return nil
}

func replay(c idempotency.CheckResult) Response {
	resp := Response{Body: c.Response, Replayed: true, Age: c.Age}
	var body acceptedBody
	if err := json.Unmarshal(c.Response, &body); err == nil {
		resp.SubmissionID = body.SubmissionID
		resp.Timestamp = body.Timestamp
	}
	return resp
}
