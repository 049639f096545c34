package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jasonsutter87/veilforms-api/internal/app/apperr"
	"github.com/jasonsutter87/veilforms-api/internal/domain"
	"github.com/jasonsutter87/veilforms-api/internal/platform/logging"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/audit"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/clock"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/deliverylog"
)

const (
	MaxAttempts    = 4
	AttemptTimeout = 10 * time.Second
)

// Backoff is the wait before attempts 2, 3 and 4.
var Backoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// WorstCaseDuration is the longest a Deliver call can run: every backoff plus every attempt timing out.
func WorstCaseDuration() time.Duration {
	d := time.Duration(MaxAttempts) * AttemptTimeout
	for _, b := range Backoff {
		d += b
	}
	return d
}

// HTTPDoer is the subset of *http.Client the engine needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Result struct {
	Success    bool
	Attempts   int
	StatusCode int
	Err        error
}

// Engine posts signed envelopes with bounded retries and quarantines what it cannot deliver.
//
// Attempt logging and quarantine writes are best-effort; their failures are logged only.
type Engine struct {
	client HTTPDoer
	store  deliverylog.Store
	audit  audit.Logger
	clk    clock.Clock
	log    logrus.FieldLogger

	sleep   func(ctx context.Context, d time.Duration) error
	timeout time.Duration
	newID   func() string
}

func NewEngine(store deliverylog.Store, auditLog audit.Logger, clk clock.Clock, log logrus.FieldLogger) *Engine {
	return &Engine{
		client:  &http.Client{},
		store:   store,
		audit:   auditLog,
		clk:     clk,
		log:     logging.OrDiscard(log),
		sleep:   sleepContext,
		timeout: AttemptTimeout,
		newID:   uuid.NewString,
	}
}

// SetHTTPClient replaces the default client.
func (e *Engine) SetHTTPClient(c HTTPDoer) {
	if c != nil {
		e.client = c
	}
}

// SetSleepForTest overrides the backoff wait so tests can observe delays without waiting.
// It should not be used in production code.
func (e *Engine) SetSleepForTest(fn func(ctx context.Context, d time.Duration) error) {
	if fn != nil {
		e.sleep = fn
	}
}

// SetAttemptTimeoutForTest shortens the per-attempt timeout.
// It should not be used in production code.
func (e *Engine) SetAttemptTimeoutForTest(d time.Duration) {
	if d > 0 {
		e.timeout = d
	}
}

// Deliver runs the retry loop for one submission and records the outcome.
func (e *Engine) Deliver(ctx context.Context, url string, sub domain.Submission, secret string) Result {
	res := e.attempt(ctx, url, sub, secret)
	e.recordAttempt(ctx, sub.ID, res)

	if res.Success {
		return res
	}

	e.quarantine(ctx, url, sub, secret, res)
	return res
}

// Abandon quarantines a delivery without attempting it, for jobs the dispatcher gives up on.
// The attempt log gets a failed entry carrying reason.
func (e *Engine) Abandon(ctx context.Context, url string, sub domain.Submission, secret string, reason error) Result {
	res := Result{Err: reason}
	e.recordAttempt(ctx, sub.ID, res)
	e.quarantine(ctx, url, sub, secret, res)
	return res
}

// ForgetAttempts drops a submission's attempt log.
func (e *Engine) ForgetAttempts(ctx context.Context, id domain.SubmissionID) error {
	return e.store.DeleteAttempts(ctx, id)
}

func (e *Engine) quarantine(ctx context.Context, url string, sub domain.Submission, secret string, res Result) {
	retries := res.Attempts - 1
	if retries < 0 {
		retries = 0
	}
	q := domain.QuarantinedWebhook{
		ID:             e.newID(),
		FormID:         sub.FormID,
		SubmissionID:   sub.ID,
		URL:            url,
		Submission:     sub,
		Secret:         secret,
		LastError:      errString(res.Err),
		LastStatusCode: res.StatusCode,
		FailedAt:       e.clk.Now(),
		Retries:        retries,
		Status:         domain.QuarantinePending,
	}
	log := e.log.WithFields(logrus.Fields{"form_id": sub.FormID, "submission_id": sub.ID, "attempt": res.Attempts, "status_code": res.StatusCode})
	if err := e.store.Quarantine(ctx, q, domain.MaxQuarantineEntries); err != nil {
		log.WithError(err).Error("failed to quarantine webhook")
		return
	}
	log.WithError(res.Err).Warn("webhook quarantined")
	e.audit.Record(ctx, audit.Event{
		Type:    audit.EventWebhookQuarantined,
		FormID:  sub.FormID,
		Details: map[string]any{"submissionId": sub.ID, "quarantineId": q.ID, "attempts": res.Attempts},
		At:      q.FailedAt,
	})
}

// ManualRetry redelivers a quarantined webhook with a fresh attempt budget.
// Success removes the quarantine record; failure keeps it and is returned as an error.
func (e *Engine) ManualRetry(ctx context.Context, formID domain.FormID, quarantineID string) (Result, error) {
	q, err := e.store.GetQuarantined(ctx, formID, quarantineID)
	if err != nil {
		if errors.Is(err, deliverylog.ErrNotFound) {
			return Result{}, apperr.NotFound(apperr.CodeQuarantineNotFound, "quarantined webhook not found")
		}
		return Result{}, apperr.Storage(err, "failed to read quarantined webhook")
	}
	log := e.log.WithFields(logrus.Fields{"form_id": formID, "submission_id": q.SubmissionID})

	q.Status = domain.QuarantineRetrying
	if err := e.store.UpdateQuarantined(ctx, q); err != nil {
		log.WithError(err).Warn("failed to mark quarantined webhook as retrying")
	}

	res := e.attempt(ctx, q.URL, q.Submission, q.Secret)
	e.recordAttempt(ctx, q.SubmissionID, res)

	if res.Success {
		if err := e.store.RemoveQuarantined(ctx, formID, quarantineID); err != nil {
			log.WithError(err).Warn("failed to remove redelivered webhook from quarantine")
		}
		e.audit.Record(ctx, audit.Event{
			Type:    audit.EventWebhookRedelivered,
			FormID:  formID,
			Details: map[string]any{"submissionId": q.SubmissionID, "quarantineId": quarantineID},
			At:      e.clk.Now(),
		})
		return res, nil
	}

	q.Status = domain.QuarantinePending
	q.Retries++
	q.LastError = errString(res.Err)
	q.LastStatusCode = res.StatusCode
	q.FailedAt = e.clk.Now()
	if err := e.store.UpdateQuarantined(ctx, q); err != nil {
		log.WithError(err).Warn("failed to update quarantined webhook")
	}
	return res, apperr.DeliveryFailed(res.Err, map[string]any{"attempts": res.Attempts, "statusCode": res.StatusCode})
}

func (e *Engine) ListQuarantined(ctx context.Context, formID domain.FormID, limit int) ([]domain.QuarantinedWebhook, error) {
	if limit <= 0 || limit > domain.MaxQuarantineEntries {
		limit = domain.MaxQuarantineEntries
	}
	out, err := e.store.ListQuarantined(ctx, formID, limit)
	if err != nil {
		return nil, apperr.Storage(err, "failed to list quarantined webhooks")
	}
	return out, nil
}

func (e *Engine) ListAttempts(ctx context.Context, id domain.SubmissionID) ([]domain.DeliveryAttempt, error) {
	out, err := e.store.ListAttempts(ctx, id)
	if err != nil {
		return nil, apperr.Storage(err, "failed to list delivery attempts")
	}
	return out, nil
}

func (e *Engine) attempt(ctx context.Context, url string, sub domain.Submission, secret string) Result {
	body, err := json.Marshal(NewEnvelope(sub))
	if err != nil {
		return Result{Err: &DeliveryError{Kind: KindInvalidRequest, Err: err}}
	}
	signature := ""
	if secret != "" {
		signature = Sign(secret, body)
	}

	log := e.log.WithFields(logrus.Fields{"form_id": sub.FormID, "submission_id": sub.ID})

	var last *DeliveryError
	for n := 1; n <= MaxAttempts; n++ {
		if n > 1 {
			if err := e.sleep(ctx, Backoff[n-2]); err != nil {
				return Result{Attempts: n - 1, StatusCode: last.StatusCode, Err: last}
			}
		}

		status, derr := e.send(ctx, url, body, signature)
		if derr == nil {
			log.WithFields(logrus.Fields{"attempt": n, "status_code": status}).Debug("webhook delivered")
			return Result{Success: true, Attempts: n, StatusCode: status}
		}
		last = derr
		log.WithFields(logrus.Fields{"attempt": n, "status_code": derr.StatusCode}).WithError(derr).Info("webhook attempt failed")
		if !derr.Retryable() {
			return Result{Attempts: n, StatusCode: derr.StatusCode, Err: derr}
		}
	}
	return Result{Attempts: MaxAttempts, StatusCode: last.StatusCode, Err: last}
}

func (e *Engine) send(ctx context.Context, url string, body []byte, signature string) (int, *DeliveryError) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, &DeliveryError{Kind: KindInvalidRequest, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(EventHeader, EventSubmissionCreated)
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, classifyTransport(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return resp.StatusCode, classifyStatus(resp.StatusCode)
}

func classifyTransport(err error) *DeliveryError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &DeliveryError{Kind: KindTimeout, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &DeliveryError{Kind: KindTimeout, Err: err}
	}
	return &DeliveryError{Kind: KindNetwork, Err: err}
}

func (e *Engine) recordAttempt(ctx context.Context, id domain.SubmissionID, res Result) {
	a := domain.DeliveryAttempt{
		Status:     domain.AttemptDelivered,
		Attempt:    res.Attempts,
		StatusCode: res.StatusCode,
		Timestamp:  e.clk.Now(),
	}
	if !res.Success {
		a.Status = domain.AttemptFailed
		a.Error = errString(res.Err)
	}
	if err := e.store.AppendAttempt(ctx, id, a, domain.MaxDeliveryAttempts); err != nil {
		e.log.WithFields(logrus.Fields{"submission_id": id}).WithError(err).Warn("failed to record delivery attempt")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
