package manage_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	memaudit "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/audit"
	memclock "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/clock"
	memdeliverylog "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/deliverylog"
	memformrepo "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/formrepo"
	memidempotency "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/idempotency"
	memsubmissionrepo "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/submissionrepo"
	"github.com/jasonsutter87/veilforms-api/internal/app/apperr"
	"github.com/jasonsutter87/veilforms-api/internal/app/delivery"
	"github.com/jasonsutter87/veilforms-api/internal/app/idempotency"
	"github.com/jasonsutter87/veilforms-api/internal/app/manage"
	"github.com/jasonsutter87/veilforms-api/internal/app/submissions"
	"github.com/jasonsutter87/veilforms-api/internal/domain"
	"github.com/jasonsutter87/veilforms-api/internal/ports/out/audit"
)

const formID = domain.FormID("vf_survey")

type harness struct {
	svc    *manage.Service
	subs   *submissions.Service
	idem   *idempotency.Service
	engine *delivery.Engine
	log    *memdeliverylog.Store
	audit  *memaudit.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := memclock.NewManualClock(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	forms := memformrepo.NewRepo(domain.Form{ID: formID, OwnerID: "o1", Status: domain.FormActive, Tier: domain.TierPro})
	h := &harness{audit: memaudit.NewRecorder()}
	h.subs = submissions.NewService(memsubmissionrepo.NewRepo(), forms, nil)
	h.idem = idempotency.NewService(memidempotency.NewStore(), clk, nil)
	h.log = memdeliverylog.NewStore()
	h.engine = delivery.NewEngine(h.log, h.audit, clk, nil)
	h.engine.SetSleepForTest(func(context.Context, time.Duration) error { return nil })
	h.svc = manage.NewService(forms, h.subs, h.idem, h.engine, h.audit, clk, nil)
	return h
}

func sub(i int) domain.Submission {
	ts := time.Date(2024, 3, 10, 8, 0, i, 0, time.UTC)
	return domain.Submission{
		ID:         domain.SubmissionID(fmt.Sprintf("%032x", i)),
		FormID:     formID,
		Payload:    domain.EncryptedPayload{Encrypted: true, Version: "1", Data: "d", EncryptedKey: "k", IV: "i"},
		ReceivedAt: ts,
	}
}

func appendAttempt(t *testing.T, h *harness, id domain.SubmissionID) {
	t.Helper()
	a := domain.DeliveryAttempt{Status: domain.AttemptDelivered, Attempt: 1, StatusCode: http.StatusOK, Timestamp: time.Now()}
	if err := h.log.AppendAttempt(context.Background(), id, a, domain.MaxDeliveryAttempts); err != nil {
		t.Fatalf("AppendAttempt: %v", err)
	}
}

func TestService_UnknownFormIsNotFound(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.svc.ListSubmissions(context.Background(), "vf_nope", submissions.ListOptions{})
	if !apperr.HasCode(err, apperr.CodeFormNotFound) {
		t.Fatalf("err=%v", err)
	}
	_, err = h.svc.ListQuarantined(context.Background(), "bad id", 10)
	if !apperr.HasCode(err, apperr.CodeInvalidFormID) {
		t.Fatalf("err=%v", err)
	}
}

func TestService_GetAndDeleteSubmission(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)
	s := sub(1)
	if err := h.subs.Put(ctx, s); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := h.svc.GetSubmission(ctx, formID, s.ID)
	if err != nil || got.ID != s.ID {
		t.Fatalf("got=%+v err=%v", got, err)
	}
	appendAttempt(t, h, s.ID)
	if err := h.svc.DeleteSubmission(ctx, formID, s.ID); err != nil {
		t.Fatalf("DeleteSubmission: %v", err)
	}
	if attempts, _ := h.log.ListAttempts(ctx, s.ID); len(attempts) != 0 {
		t.Fatalf("attempt log survived delete: %+v", attempts)
	}
	if err := h.svc.DeleteSubmission(ctx, formID, s.ID); !apperr.HasCode(err, apperr.CodeSubmissionNotFound) {
		t.Fatalf("err=%v", err)
	}
	if _, err := h.svc.GetSubmission(ctx, formID, s.ID); !apperr.HasCode(err, apperr.CodeSubmissionNotFound) {
		t.Fatalf("err=%v", err)
	}
	if types := h.audit.Types(); len(types) != 1 || types[0] != audit.EventSubmissionDeleted {
		t.Fatalf("audit=%v", types)
	}
}

func TestService_PurgeSubmissions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)
	for i := 1; i <= 142; i++ {
		if err := h.subs.Put(ctx, sub(i)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	h.idem.Store(ctx, "purge-test-key-00001", formID, []byte(`{}`))
	appendAttempt(t, h, sub(1).ID)
	appendAttempt(t, h, sub(142).ID)

	n, err := h.svc.PurgeSubmissions(ctx, formID)
	if err != nil || n != 142 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	page, err := h.svc.ListSubmissions(ctx, formID, submissions.ListOptions{})
	if err != nil || len(page.Items) != 0 || page.Total != 0 {
		t.Fatalf("page=%+v err=%v", page, err)
	}
	if res, _ := h.idem.Check(ctx, "purge-test-key-00001", formID); res.Exists {
		t.Fatalf("idempotency key survived purge")
	}
	for _, i := range []int{1, 142} {
		if attempts, _ := h.log.ListAttempts(ctx, sub(i).ID); len(attempts) != 0 {
			t.Fatalf("attempt log of submission %d survived purge", i)
		}
	}
	events := h.audit.Events()
	if len(events) != 1 || events[0].Type != audit.EventSubmissionsPurged || events[0].Details["deleted"] != 142 {
		t.Fatalf("audit=%+v", events)
	}
}

func TestService_RetryQuarantined(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	s := sub(1)
	if err := h.subs.Put(ctx, s); err != nil {
		t.Fatalf("Put: %v", err)
	}
	h.engine.Deliver(ctx, srv.URL, s, "")

	qs, err := h.svc.ListQuarantined(ctx, formID, 0)
	if err != nil || len(qs) != 1 {
		t.Fatalf("qs=%+v err=%v", qs, err)
	}
	deliveries, err := h.svc.ListDeliveries(ctx, formID, s.ID)
	if err != nil || len(deliveries) != 1 || deliveries[0].StatusCode != http.StatusBadRequest {
		t.Fatalf("deliveries=%+v err=%v", deliveries, err)
	}

	_, err = h.svc.RetryQuarantined(ctx, formID, qs[0].ID)
	if !apperr.HasCode(err, apperr.CodeDeliveryFailed) {
		t.Fatalf("err=%v", err)
	}
	_, err = h.svc.RetryQuarantined(ctx, formID, "missing")
	if !apperr.HasCode(err, apperr.CodeQuarantineNotFound) {
		t.Fatalf("err=%v", err)
	}
}
