package itest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jasonsutter87/veilforms-api/internal/adapters/httpapi"
	memaudit "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/audit"
	memclock "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/clock"
	memdeliverylog "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/deliverylog"
	memdeliveryqueue "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/deliveryqueue"
	memformrepo "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/formrepo"
	memidempotency "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/idempotency"
	memquota "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/quota"
	memsubmissionrepo "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/submissionrepo"
	pgdeliveryqueue "github.com/jasonsutter87/veilforms-api/internal/adapters/postgres/deliveryqueue"
	pgformrepo "github.com/jasonsutter87/veilforms-api/internal/adapters/postgres/formrepo"
	pgidempotency "github.com/jasonsutter87/veilforms-api/internal/adapters/postgres/idempotency"
	postgres_testutil "github.com/jasonsutter87/veilforms-api/internal/adapters/postgres/testutil"
	redisdeliverylog "github.com/jasonsutter87/veilforms-api/internal/adapters/redis/deliverylog"
	redisidempotency "github.com/jasonsutter87/veilforms-api/internal/adapters/redis/idempotency"
	redisquota "github.com/jasonsutter87/veilforms-api/internal/adapters/redis/quota"
	redissubmissionrepo "github.com/jasonsutter87/veilforms-api/internal/adapters/redis/submissionrepo"
	redis_testutil "github.com/jasonsutter87/veilforms-api/internal/adapters/redis/testutil"
	"github.com/jasonsutter87/veilforms-api/internal/app/delivery"
	"github.com/jasonsutter87/veilforms-api/internal/app/idempotency"
	"github.com/jasonsutter87/veilforms-api/internal/app/ingest"
	"github.com/jasonsutter87/veilforms-api/internal/app/manage"
	"github.com/jasonsutter87/veilforms-api/internal/app/submissions"
	"github.com/jasonsutter87/veilforms-api/internal/domain"
	deliverylogport "github.com/jasonsutter87/veilforms-api/internal/ports/out/deliverylog"
	deliveryqueueport "github.com/jasonsutter87/veilforms-api/internal/ports/out/deliveryqueue"
	formrepoport "github.com/jasonsutter87/veilforms-api/internal/ports/out/formrepo"
	idempotencyport "github.com/jasonsutter87/veilforms-api/internal/ports/out/idempotency"
	quotaport "github.com/jasonsutter87/veilforms-api/internal/ports/out/quota"
	submissionrepoport "github.com/jasonsutter87/veilforms-api/internal/ports/out/submissionrepo"
)

type backend string

const (
	backendMemory   backend = "memory"
	backendRedis    backend = "redis"
	backendPostgres backend = "postgres"
)

func backendsFromEnv(t *testing.T) []backend {
	t.Helper()
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ITEST_BACKEND"))) {
	case "", "memory":
		return []backend{backendMemory}
	case "redis":
		return []backend{backendRedis}
	case "postgres":
		return []backend{backendPostgres}
	case "all":
		return []backend{backendMemory, backendRedis, backendPostgres}
	default:
		t.Fatalf("unknown ITEST_BACKEND value (expected memory|redis|postgres|all)")
		return nil
	}
}

type testServer struct {
	baseURL    string
	client     *http.Client
	clk        *memclock.ManualClock
	dispatcher *delivery.Dispatcher
	formID     domain.FormID
}

// newTestServer wires the full stack. The form accepts any origin and posts to webhookURL.
func newTestServer(t *testing.T, b backend, webhookURL, secret string) *testServer {
	t.Helper()

	clk := memclock.NewManualClock(time.Now().UTC().Truncate(time.Second))
	form := domain.Form{
		ID:            domain.FormID("vf_" + uuid.NewString()[:8]),
		OwnerID:       domain.OwnerID("owner-" + uuid.NewString()[:8]),
		Status:        domain.FormActive,
		Tier:          domain.TierTeam,
		WebhookURL:    webhookURL,
		WebhookSecret: secret,
	}

	var (
		forms     formrepoport.Repository
		idemStore idempotencyport.Store
		subRepo   submissionrepoport.Repository
		logStore  deliverylogport.Store
		counter   quotaport.Counter
		queue     deliveryqueueport.Queue
	)

	switch b {
	case backendMemory:
		forms = memformrepo.NewRepo(form)
		idemStore = memidempotency.NewStore()
		subRepo = memsubmissionrepo.NewRepo()
		logStore = memdeliverylog.NewStore()
		counter = memquota.NewCounter()
		queue = memdeliveryqueue.NewQueue(clk)
	case backendRedis:
		_, client := redis_testutil.NewClient(t)
		forms = memformrepo.NewRepo(form)
		idemStore = redisidempotency.NewStore(client, "itest")
		subRepo = redissubmissionrepo.NewRepo(client, "itest")
		logStore = redisdeliverylog.NewStore(client, "itest")
		counter = redisquota.NewCounter(client, "itest")
		queue = memdeliveryqueue.NewQueue(clk)
	case backendPostgres:
		pool := postgres_testutil.OpenMigratedPool(t)
		pgForms := pgformrepo.NewRepo(pool)
		if err := pgForms.Upsert(context.Background(), form); err != nil {
			t.Fatalf("Upsert form: %v", err)
		}
		forms = pgForms
		idemStore = pgidempotency.NewStore(pool)
		subRepo = memsubmissionrepo.NewRepo()
		logStore = memdeliverylog.NewStore()
		counter = memquota.NewCounter()
		queue = pgdeliveryqueue.NewQueue(pool, clk)
	default:
		t.Fatalf("unknown backend: %s", b)
	}

	auditLog := memaudit.NewRecorder()
	subs := submissions.NewService(subRepo, forms, nil)
	idem := idempotency.NewService(idemStore, clk, nil)
	engine := delivery.NewEngine(logStore, auditLog, clk, nil)
	engine.SetSleepForTest(func(context.Context, time.Duration) error { return nil })

	ingestSvc := ingest.NewService(ingest.Deps{
		Forms:       forms,
		Idempotency: idem,
		Submissions: subs,
		Scheduler:   delivery.NewQueueScheduler(queue, clk),
		Quota:       counter,
		Audit:       auditLog,
		Clock:       clk,
	})
	manageSvc := manage.NewService(forms, subs, idem, engine, auditLog, clk, nil)
	handler := httpapi.NewRouter(httpapi.NewServer(ingestSvc, manageSvc, nil))

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testServer{
		baseURL:    srv.URL,
		client:     srv.Client(),
		clk:        clk,
		dispatcher: delivery.NewDispatcher(queue, engine, delivery.DispatcherOptions{Workers: 8}, nil),
		formID:     form.ID,
	}
}

func (s *testServer) url(path string) string {
	if strings.HasPrefix(path, "/") {
		return s.baseURL + path
	}
	return s.baseURL + "/" + path
}

func (s *testServer) doJSON(t *testing.T, method string, path string, headers map[string]string, body any) (int, []byte, http.Header) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.url(path), r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, resp.Header
}

// drain runs the dispatcher until the queue is empty.
func (s *testServer) drain(t *testing.T) {
	t.Helper()
	for i := 0; i < 100; i++ {
		n, err := s.dispatcher.RunOnce(context.Background())
		if err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
		if n == 0 {
			return
		}
	}
	t.Fatalf("delivery queue did not drain")
}

func (s *testServer) submission(id string) map[string]any {
	return map[string]any{
		"formId":       string(s.formID),
		"submissionId": id,
		"payload": map[string]any{
			"encrypted":    true,
			"version":      "1",
			"data":         "ZGF0YQ==",
			"encryptedKey": "a2V5",
			"iv":           "aXY=",
		},
	}
}

func newSubmissionID() string {
	return uuid.NewString()
}
