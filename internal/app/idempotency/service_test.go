package idempotency_test

import (
	"context"
	"errors"
	"testing"
	"time"

	memclock "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/clock"
	memidempotency "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/idempotency"
	"github.com/jasonsutter87/veilforms-api/internal/app/apperr"
	"github.com/jasonsutter87/veilforms-api/internal/app/idempotency"
	"github.com/jasonsutter87/veilforms-api/internal/domain"
)

const testKey = domain.IdempotencyKey("retry-key-0000000001")

func newService(t *testing.T) (*idempotency.Service, *memidempotency.Store, *memclock.ManualClock) {
	t.Helper()
	store := memidempotency.NewStore()
	clk := memclock.NewManualClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	return idempotency.NewService(store, clk, nil), store, clk
}

func TestService_ValidateKey(t *testing.T) {
	t.Parallel()

	svc, _, _ := newService(t)
	for _, k := range []domain.IdempotencyKey{"short", "has spaces in it here!", domain.IdempotencyKey(string(make([]byte, 129)))} {
		err := svc.ValidateKey(k)
		if !apperr.HasCode(err, apperr.CodeInvalidIdempotencyKey) {
			t.Fatalf("key %q: err=%v", k, err)
		}
	}
	if err := svc.ValidateKey(testKey); err != nil {
		t.Fatalf("valid key: %v", err)
	}
}

func TestService_Check_ReplaysWithinWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _, clk := newService(t)
	svc.Store(ctx, testKey, "vf_form1", []byte(`{"success":true}`))

	clk.Advance(24 * time.Hour)
	res, err := svc.Check(ctx, testKey, "vf_form1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Exists || string(res.Response) != `{"success":true}` {
		t.Fatalf("res=%+v", res)
	}
	if res.Age != 24*time.Hour {
		t.Fatalf("age=%s", res.Age)
	}
}

func TestService_Check_ExpiredRecordIsAbsentAndRemoved(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, store, clk := newService(t)
	svc.Store(ctx, testKey, "vf_form1", []byte(`{}`))

	clk.Advance(25 * time.Hour)
	res, err := svc.Check(ctx, testKey, "vf_form1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Exists {
		t.Fatalf("expected miss after window, res=%+v", res)
	}
	if _, ok, _ := store.Get(ctx, "vf_form1", testKey); ok {
		t.Fatalf("expected expired record to be deleted")
	}
}

func TestService_Check_KeysAreScopedToForm(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _, _ := newService(t)
	svc.Store(ctx, testKey, "vf_form1", []byte(`{}`))

	res, err := svc.Check(ctx, testKey, "vf_form2")
	if err != nil || res.Exists {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestService_Check_FailsOpenOnStoreError(t *testing.T) {
	t.Parallel()

	svc, store, _ := newService(t)
	store.FailGet = errors.New("connection reset")

	res, err := svc.Check(context.Background(), testKey, "vf_form1")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.Exists {
		t.Fatalf("expected miss")
	}
}

func TestService_Store_SwallowsErrors(t *testing.T) {
	t.Parallel()

	svc, store, _ := newService(t)
	store.FailPut = errors.New("read-only replica")

	// Must not panic or surface anything.
	svc.Store(context.Background(), testKey, "vf_form1", []byte(`{}`))
}

func TestService_PurgeForm(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _, _ := newService(t)
	svc.Store(ctx, "retry-key-0000000001", "vf_form1", []byte(`{}`))
	svc.Store(ctx, "retry-key-0000000002", "vf_form1", []byte(`{}`))
	svc.Store(ctx, "retry-key-0000000003", "vf_form2", []byte(`{}`))

	n, err := svc.PurgeForm(ctx, "vf_form1")
	if err != nil {
		t.Fatalf("PurgeForm: %v", err)
	}
	if n != 2 {
		t.Fatalf("n=%d", n)
	}
	res, _ := svc.Check(ctx, "retry-key-0000000003", "vf_form2")
	if !res.Exists {
		t.Fatalf("other form's key was purged")
	}
}
