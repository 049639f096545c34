package contracttest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jasonsutter87/veilforms-api/internal/domain"
	deliverylogport "github.com/jasonsutter87/veilforms-api/internal/ports/out/deliverylog"
	deliveryqueueport "github.com/jasonsutter87/veilforms-api/internal/ports/out/deliveryqueue"
	formrepoport "github.com/jasonsutter87/veilforms-api/internal/ports/out/formrepo"
	idempotencyport "github.com/jasonsutter87/veilforms-api/internal/ports/out/idempotency"
	quotaport "github.com/jasonsutter87/veilforms-api/internal/ports/out/quota"
	submissionrepoport "github.com/jasonsutter87/veilforms-api/internal/ports/out/submissionrepo"
)

type CleanupFunc = func()

type IdemStoreFactory func(t *testing.T) (idempotencyport.Store, CleanupFunc)
type SubmissionRepoFactory func(t *testing.T) (submissionrepoport.Repository, CleanupFunc)
type DeliveryLogFactory func(t *testing.T) (deliverylogport.Store, CleanupFunc)
type QuotaCounterFactory func(t *testing.T) (quotaport.Counter, CleanupFunc)
type DeliveryQueueFactory func(t *testing.T) (deliveryqueueport.Queue, CleanupFunc)

// FormRepoFactory returns a repository already holding seed.
type FormRepoFactory func(t *testing.T, seed []domain.Form) (formrepoport.Repository, CleanupFunc)

// NewSubmissionID returns a fresh UUID-shaped submission id.
func NewSubmissionID() domain.SubmissionID {
	return domain.SubmissionID(uuid.NewString())
}

// NewFormID returns a fresh prefixed form id so parallel suites on a shared backend do not collide.
func NewFormID() domain.FormID {
	return domain.FormID("vf_" + uuid.NewString()[:8])
}

func RunIdempotencyStore(t *testing.T, newStore IdemStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	formID := NewFormID()
	key := domain.IdempotencyKey("retry-key-0000000001")
	rec := idempotencyport.Record{
		Response:  []byte(`{"success":true}`),
		CreatedAt: time.Unix(123, 0).UTC(),
	}
	if _, ok, err := store.Get(ctx, formID, key); err != nil || ok {
		t.Fatalf("Get before Put: ok=%v err=%v", ok, err)
	}
	if err := store.Put(ctx, formID, key, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := store.Get(ctx, formID, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if string(got.Response) != string(rec.Response) || !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("unexpected record: %+v", got)
	}

	// Keys are scoped per form.
	if _, ok, err := store.Get(ctx, NewFormID(), key); err != nil || ok {
		t.Fatalf("Get other form: ok=%v err=%v", ok, err)
	}

	if err := store.Delete(ctx, formID, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, err := store.Get(ctx, formID, key); err != nil || ok {
		t.Fatalf("Get after Delete: ok=%v err=%v", ok, err)
	}

	// DeleteForm purges indexed keys.
	for i := 0; i < 3; i++ {
		k := domain.IdempotencyKey(fmt.Sprintf("bulk-key-%012d", i))
		if err := store.Put(ctx, formID, k, rec); err != nil {
			t.Fatalf("Put bulk %d: %v", i, err)
		}
	}
	n, err := store.DeleteForm(ctx, formID)
	if err != nil {
		t.Fatalf("DeleteForm: %v", err)
	}
	if n != 3 {
		t.Fatalf("DeleteForm removed %d, want 3", n)
	}
	if _, ok, _ := store.Get(ctx, formID, domain.IdempotencyKey("bulk-key-000000000001")); ok {
		t.Fatalf("expected bulk key to be purged")
	}
}

func RunSubmissionRepo(t *testing.T, newRepo SubmissionRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	formID := NewFormID()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []domain.SubmissionID
	for i := 0; i < 5; i++ {
		s := domain.Submission{
			ID:     NewSubmissionID(),
			FormID: formID,
			Payload: domain.EncryptedPayload{
				Encrypted: true, Version: "1", Data: "ZGF0YQ==", EncryptedKey: "a2V5", IV: "aXY=",
			},
			ClientTimestamp: base.Add(time.Duration(i) * time.Minute),
			ReceivedAt:      base.Add(time.Duration(i) * time.Minute),
			Meta:            domain.SubmissionMeta{SDKVersion: "1.2.0", Region: "iad"},
		}
		if err := repo.SaveRecord(ctx, s); err != nil {
			t.Fatalf("SaveRecord %d: %v", i, err)
		}
		if err := repo.PrependIndex(ctx, formID, domain.IndexEntry{SubmissionID: s.ID, Timestamp: s.ReceivedAt}, 4); err != nil {
			t.Fatalf("PrependIndex %d: %v", i, err)
		}
		ids = append(ids, s.ID)
	}

	// Index is capped at 4 and newest-first.
	n, err := repo.IndexLen(ctx, formID)
	if err != nil {
		t.Fatalf("IndexLen: %v", err)
	}
	if n != 4 {
		t.Fatalf("IndexLen=%d, want 4", n)
	}
	entries, err := repo.ReadIndex(ctx, formID, 0, 10)
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	if len(entries) != 4 || entries[0].SubmissionID != ids[4] || entries[3].SubmissionID != ids[1] {
		t.Fatalf("unexpected index order: %+v", entries)
	}
	if !entries[0].Timestamp.Equal(base.Add(4 * time.Minute)) {
		t.Fatalf("timestamp=%v", entries[0].Timestamp)
	}
	page, err := repo.ReadIndex(ctx, formID, 1, 3)
	if err != nil || len(page) != 2 || page[0].SubmissionID != ids[3] {
		t.Fatalf("ReadIndex window: %+v err=%v", page, err)
	}

	// The evicted submission's record is still readable.
	got, err := repo.GetRecord(ctx, formID, ids[0])
	if err != nil {
		t.Fatalf("GetRecord evicted: %v", err)
	}
	if got.Payload.Data != "ZGF0YQ==" || got.Meta.SDKVersion != "1.2.0" || !got.ReceivedAt.Equal(base) {
		t.Fatalf("unexpected record: %+v", got)
	}

	if _, err := repo.GetRecord(ctx, formID, NewSubmissionID()); !errors.Is(err, submissionrepoport.ErrNotFound) {
		t.Fatalf("GetRecord missing err=%v, want ErrNotFound", err)
	}

	if err := repo.RemoveFromIndex(ctx, formID, ids[3]); err != nil {
		t.Fatalf("RemoveFromIndex: %v", err)
	}
	if err := repo.DeleteRecord(ctx, formID, ids[3]); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if err := repo.DeleteRecord(ctx, formID, ids[3]); !errors.Is(err, submissionrepoport.ErrNotFound) {
		t.Fatalf("DeleteRecord twice err=%v, want ErrNotFound", err)
	}
	entries, _ = repo.ReadIndex(ctx, formID, 0, 10)
	for _, e := range entries {
		if e.SubmissionID == ids[3] {
			t.Fatalf("deleted id still indexed")
		}
	}

	removed, err := repo.DeleteAll(ctx, formID)
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if removed != 4 {
		t.Fatalf("DeleteAll removed %d, want 4", removed)
	}
	if n, _ := repo.IndexLen(ctx, formID); n != 0 {
		t.Fatalf("IndexLen after DeleteAll=%d", n)
	}
	if _, err := repo.GetRecord(ctx, formID, ids[0]); !errors.Is(err, submissionrepoport.ErrNotFound) {
		t.Fatalf("GetRecord after DeleteAll err=%v", err)
	}
}

func RunDeliveryLog(t *testing.T, newStore DeliveryLogFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	subID := NewSubmissionID()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 12; i++ {
		if err := store.AppendAttempt(ctx, subID, domain.DeliveryAttempt{
			Status:    domain.AttemptFailed,
			Attempt:   i,
			Error:     "status 503",
			Timestamp: now.Add(time.Duration(i) * time.Second),
		}, domain.MaxDeliveryAttempts); err != nil {
			t.Fatalf("AppendAttempt %d: %v", i, err)
		}
	}
	attempts, err := store.ListAttempts(ctx, subID)
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(attempts) != domain.MaxDeliveryAttempts || attempts[0].Attempt != 12 || attempts[9].Attempt != 3 {
		t.Fatalf("unexpected attempt window: len=%d first=%+v", len(attempts), attempts)
	}
	if got, _ := store.ListAttempts(ctx, NewSubmissionID()); len(got) != 0 {
		t.Fatalf("expected empty log, got %d", len(got))
	}
	if err := store.DeleteAttempts(ctx, subID); err != nil {
		t.Fatalf("DeleteAttempts: %v", err)
	}
	if got, _ := store.ListAttempts(ctx, subID); len(got) != 0 {
		t.Fatalf("attempts after delete=%d", len(got))
	}
	if err := store.DeleteAttempts(ctx, NewSubmissionID()); err != nil {
		t.Fatalf("DeleteAttempts missing log: %v", err)
	}

	formID := NewFormID()
	var qids []string
	for i := 0; i < 3; i++ {
		q := domain.QuarantinedWebhook{
			ID:           uuid.NewString(),
			FormID:       formID,
			SubmissionID: NewSubmissionID(),
			URL:          "https://hooks.example.com/in",
			Secret:       "s3cret",
			LastError:    "status 503",
			FailedAt:     now,
			Retries:      3,
			Status:       domain.QuarantinePending,
		}
		q.Submission = domain.Submission{ID: q.SubmissionID, FormID: formID}
		if err := store.Quarantine(ctx, q, 2); err != nil {
			t.Fatalf("Quarantine %d: %v", i, err)
		}
		qids = append(qids, q.ID)
	}
	list, err := store.ListQuarantined(ctx, formID, 10)
	if err != nil {
		t.Fatalf("ListQuarantined: %v", err)
	}
	if len(list) != 2 || list[0].ID != qids[2] || list[1].ID != qids[1] {
		t.Fatalf("unexpected quarantine list: %+v", list)
	}

	got, err := store.GetQuarantined(ctx, formID, qids[2])
	if err != nil {
		t.Fatalf("GetQuarantined: %v", err)
	}
	if got.Secret != "s3cret" || got.Retries != 3 || got.Submission.ID != got.SubmissionID {
		t.Fatalf("unexpected quarantined: %+v", got)
	}
	got.Retries = 7
	got.Status = domain.QuarantineRetrying
	if err := store.UpdateQuarantined(ctx, got); err != nil {
		t.Fatalf("UpdateQuarantined: %v", err)
	}
	got, _ = store.GetQuarantined(ctx, formID, qids[2])
	if got.Retries != 7 || got.Status != domain.QuarantineRetrying {
		t.Fatalf("update not persisted: %+v", got)
	}

	if err := store.RemoveQuarantined(ctx, formID, qids[2]); err != nil {
		t.Fatalf("RemoveQuarantined: %v", err)
	}
	if _, err := store.GetQuarantined(ctx, formID, qids[2]); !errors.Is(err, deliverylogport.ErrNotFound) {
		t.Fatalf("GetQuarantined after remove err=%v", err)
	}
	list, _ = store.ListQuarantined(ctx, formID, 10)
	if len(list) != 1 || list[0].ID != qids[1] {
		t.Fatalf("unexpected list after remove: %+v", list)
	}
}

func RunFormRepo(t *testing.T, newRepo FormRepoFactory) {
	t.Helper()
	ctx := context.Background()

	f := domain.Form{
		ID:             NewFormID(),
		OwnerID:        domain.OwnerID("owner-" + uuid.NewString()[:8]),
		Status:         domain.FormActive,
		Tier:           domain.TierPro,
		AllowedOrigins: []string{"https://example.com"},
		WebhookURL:     "https://hooks.example.com/in",
		WebhookSecret:  "whsec",
	}
	repo, cleanup := newRepo(t, []domain.Form{f})
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	got, err := repo.Get(ctx, f.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.OwnerID != f.OwnerID || got.Status != f.Status || got.Tier != f.Tier || got.WebhookURL != f.WebhookURL || got.WebhookSecret != f.WebhookSecret {
		t.Fatalf("unexpected form: %+v", got)
	}
	if len(got.AllowedOrigins) != 1 || got.AllowedOrigins[0] != "https://example.com" {
		t.Fatalf("AllowedOrigins=%v", got.AllowedOrigins)
	}
	if _, err := repo.Get(ctx, NewFormID()); !errors.Is(err, formrepoport.ErrNotFound) {
		t.Fatalf("Get missing err=%v, want ErrNotFound", err)
	}

	if n, err := repo.AdjustSubmissionCount(ctx, f.ID, 2); err != nil || n != 2 {
		t.Fatalf("Adjust +2: n=%d err=%v", n, err)
	}
	if n, err := repo.AdjustSubmissionCount(ctx, f.ID, -5); err != nil || n != 0 {
		t.Fatalf("Adjust -5: n=%d err=%v, want floor at 0", n, err)
	}
	if _, err := repo.AdjustSubmissionCount(ctx, f.ID, 3); err != nil {
		t.Fatalf("Adjust +3: %v", err)
	}
	if err := repo.ResetSubmissionCount(ctx, f.ID); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	got, _ = repo.Get(ctx, f.ID)
	if got.SubmissionCount != 0 {
		t.Fatalf("SubmissionCount=%d after reset", got.SubmissionCount)
	}
}

func RunQuotaCounter(t *testing.T, newCounter QuotaCounterFactory) {
	t.Helper()
	ctx := context.Background()

	c, cleanup := newCounter(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	owner := domain.OwnerID("owner-" + uuid.NewString()[:8])
	jan := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	if n, err := c.Current(ctx, owner, jan); err != nil || n != 0 {
		t.Fatalf("Current empty: n=%d err=%v", n, err)
	}
	for i := 1; i <= 3; i++ {
		n, err := c.Increment(ctx, owner, jan)
		if err != nil || n != i {
			t.Fatalf("Increment %d: n=%d err=%v", i, n, err)
		}
	}
	if n, _ := c.Current(ctx, owner, jan); n != 3 {
		t.Fatalf("Current jan=%d, want 3", n)
	}
	if n, _ := c.Current(ctx, owner, feb); n != 0 {
		t.Fatalf("Current feb=%d, want 0 (new period)", n)
	}
}

func RunDeliveryQueue(t *testing.T, newQueue DeliveryQueueFactory, advance func(time.Duration)) {
	t.Helper()
	ctx := context.Background()

	q, cleanup := newQueue(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	formID := NewFormID()
	job := deliveryqueueport.Job{
		ID:     uuid.NewString(),
		URL:    "https://hooks.example.com/in",
		Secret: "whsec",
		Submission: domain.Submission{
			ID:      NewSubmissionID(),
			FormID:  formID,
			Payload: domain.EncryptedPayload{Version: "1", Data: "d", EncryptedKey: "k", IV: "i"},
		},
		EnqueuedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	claimed, err := q.Claim(ctx, 10, time.Minute)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	found := false
	for _, j := range claimed {
		if j.ID == job.ID {
			found = true
			if j.URL != job.URL || j.Secret != job.Secret || j.Submission.ID != job.Submission.ID || j.Submission.Payload.IV != "i" || j.Claims != 1 {
				t.Fatalf("unexpected claimed job: %+v", j)
			}
		}
	}
	if !found {
		t.Fatalf("job not claimed")
	}

	// Leased jobs are not handed out again until the lease expires.
	again, err := q.Claim(ctx, 10, time.Minute)
	if err != nil {
		t.Fatalf("Claim again: %v", err)
	}
	for _, j := range again {
		if j.ID == job.ID {
			t.Fatalf("leased job claimed twice")
		}
	}

	if advance != nil {
		advance(2 * time.Minute)
		reclaimed, err := q.Claim(ctx, 10, time.Minute)
		if err != nil {
			t.Fatalf("Claim after lease: %v", err)
		}
		ok := false
		for _, j := range reclaimed {
			if j.ID == job.ID {
				ok = j.Claims == 2
			}
		}
		if !ok {
			t.Fatalf("expected job to be reclaimed with Claims=2, got %+v", reclaimed)
		}
	}

	if err := q.Complete(ctx, job.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if advance != nil {
		advance(2 * time.Minute)
	}
	after, err := q.Claim(ctx, 10, time.Minute)
	if err != nil {
		t.Fatalf("Claim after Complete: %v", err)
	}
	for _, j := range after {
		if j.ID == job.ID {
			t.Fatalf("completed job claimed")
		}
	}
}
